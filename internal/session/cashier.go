package session

import (
	"log"

	"github.com/kim-el/voice-pos-system/internal/cart"
	"github.com/kim-el/voice-pos-system/internal/relay"
)

// Cashier is the consuming side: it subscribes a register to a relay
// endpoint so ADD_ITEM events merge into the open sale as they arrive.
// Commit, tender and cancel stay with the register's own API.
type Cashier struct {
	register *cart.Register
	client   *relay.Client
}

// NewCashier wires a register to a relay client. The client must not be
// connected yet; the receive handler is registered here.
func NewCashier(register *cart.Register, client *relay.Client) *Cashier {
	c := &Cashier{register: register, client: client}
	client.OnReceive(c.handle)
	return c
}

// Start connects the relay endpoint.
func (c *Cashier) Start() error { return c.client.Connect() }

// Stop closes the relay endpoint.
func (c *Cashier) Stop() error { return c.client.Close() }

// Register exposes the underlying register for the presentation layer.
func (c *Cashier) Register() *cart.Register { return c.register }

func (c *Cashier) handle(msg relay.Message) {
	if msg.Type != relay.TypeAddItem {
		log.Printf("cashier: ignoring message type %q", msg.Type)
		return
	}
	c.register.AddItem(msg.Data.Name, msg.Data.Price, msg.Data.Quantity)
}
