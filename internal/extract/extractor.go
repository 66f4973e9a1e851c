package extract

import (
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/kim-el/voice-pos-system/internal/menu"
)

// Item is one normalized order line produced by extraction.
type Item struct {
	Name     string
	Price    float64
	Quantity int
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	// Formatting glitches the model is known to produce inside json blocks.
	splitDecimalRe     = regexp.MustCompile(`(\d)\s+(\.\d+)`)
	trailingCommaArrRe = regexp.MustCompile(`}\s*,\s*]`)
	trailingCommaObjRe = regexp.MustCompile(`,\s*}`)

	structuredLineRe = regexp.MustCompile(`(?m)^-\s*([^,]+),\s*(\d+),\s*RM(\d+\.?\d*)\s*each`)
	quantityWordRe   = regexp.MustCompile(`\b(satu|dua|tiga|empat|lima|one|two|three|four|five|six|seven|eight|nine|ten|\d+)\b`)
	spaceRunRe       = regexp.MustCompile(`\s+`)
)

var wordToNum = map[string]int{
	"satu": 1, "dua": 2, "tiga": 3, "empat": 4, "lima": 5,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Extract parses a completed transcript into order items. It is pure and
// idempotent; parse failures never raise, they yield an empty result and are
// logged for diagnostics.
//
// Strategy selection: a fenced json block forces structured extraction with
// no fallback; otherwise "- name, qty, RMprice each" lines are parsed;
// otherwise the transcript is treated as free speech and matched against the
// vocabulary.
func Extract(transcript string, vocab *menu.Vocabulary) []Item {
	if strings.Contains(transcript, "```json") {
		return extractStructured(transcript)
	}
	if strings.Contains(transcript, "RM") && strings.Contains(transcript, "each") {
		return extractStructuredLines(transcript)
	}
	return extractFreeText(transcript, vocab)
}

// orderPayload is the json shape the model emits inside the fenced block.
// The unit price arrives under either "base_price" or "price".
type orderPayload struct {
	Items []struct {
		Name      string  `json:"name"`
		Quantity  int     `json:"quantity"`
		Price     float64 `json:"price"`
		BasePrice float64 `json:"base_price"`
	} `json:"items"`
}

func extractStructured(transcript string) []Item {
	blocks := fencedBlockRe.FindAllStringSubmatch(transcript, -1)
	if len(blocks) == 0 {
		return nil
	}
	// The last complete block supersedes earlier partial utterances.
	raw := blocks[len(blocks)-1][1]
	raw = splitDecimalRe.ReplaceAllString(raw, "$1$2")
	raw = splitDecimalRe.ReplaceAllString(raw, "$1$2")
	raw = trailingCommaArrRe.ReplaceAllString(raw, "}]")
	raw = trailingCommaObjRe.ReplaceAllString(raw, "}")

	var payload orderPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Printf("extract: malformed json block dropped: %v", err)
		return nil
	}
	items := make([]Item, 0, len(payload.Items))
	for _, it := range payload.Items {
		name := strings.TrimSpace(spaceRunRe.ReplaceAllString(it.Name, " "))
		if name == "" {
			continue
		}
		price := it.BasePrice
		if price == 0 {
			price = it.Price
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, Item{Name: name, Price: price, Quantity: qty})
	}
	return items
}

func extractStructuredLines(transcript string) []Item {
	var items []Item
	for _, m := range structuredLineRe.FindAllStringSubmatch(transcript, -1) {
		qty, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		items = append(items, Item{Name: strings.TrimSpace(m[1]), Price: price, Quantity: qty})
	}
	return items
}

func extractFreeText(transcript string, vocab *menu.Vocabulary) []Item {
	if vocab == nil || vocab.Len() == 0 {
		return nil
	}
	lower := strings.ToLower(transcript)

	var quantities []int
	for _, m := range quantityWordRe.FindAllString(lower, -1) {
		if n, ok := wordToNum[m]; ok {
			quantities = append(quantities, n)
			continue
		}
		if n, err := strconv.Atoi(m); err == nil {
			quantities = append(quantities, n)
		} else {
			quantities = append(quantities, 1)
		}
	}

	// Vocabulary insertion order assigns quantity expressions; deliberately
	// ambiguous when several items share one utterance without per-item cues.
	var items []Item
	qi := 0
	for _, entry := range vocab.Entries() {
		matched := false
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		qty := 1
		if qi < len(quantities) {
			qty = quantities[qi]
		}
		qi++
		if qty < 1 {
			qty = 1
		}
		items = append(items, Item{Name: entry.Name, Price: entry.Price, Quantity: qty})
	}
	return items
}
