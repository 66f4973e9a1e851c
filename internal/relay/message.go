package relay

// TypeAddItem is the only event kind carried over the relay today.
const TypeAddItem = "ADD_ITEM"

// ItemData is the payload of an ADD_ITEM event.
type ItemData struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Message is the wire format exchanged over the relay channel, one JSON text
// frame per event. Messages are immutable once sent.
type Message struct {
	Type string   `json:"type"`
	Data ItemData `json:"data"`
}

// AddItem builds an ADD_ITEM message.
func AddItem(name string, price float64, quantity int) Message {
	return Message{Type: TypeAddItem, Data: ItemData{Name: name, Price: price, Quantity: quantity}}
}
