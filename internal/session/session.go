package session

import (
	"context"
	"log"

	"github.com/kim-el/voice-pos-system/internal/extract"
	"github.com/kim-el/voice-pos-system/internal/menu"
	"github.com/kim-el/voice-pos-system/internal/relay"
	"github.com/kim-el/voice-pos-system/internal/transcript"
)

// Sender delivers relay messages to the other side of the channel.
type Sender interface {
	Send(msg relay.Message) error
}

// Session is the producing side of the pipeline for one capture session:
// model fragments accumulate into a transcript, and when the transcript
// completes, extracted order items are relayed as ADD_ITEM events.
type Session struct {
	acc     *transcript.Accumulator
	vocab   *menu.Vocabulary
	sender  Sender
	onOrder func([]extract.Item)
}

// New constructs a Session. A nil predicate selects the default completion
// check.
func New(vocab *menu.Vocabulary, sender Sender, pred transcript.CompletePredicate) *Session {
	return &Session{
		acc:    transcript.NewAccumulator(pred),
		vocab:  vocab,
		sender: sender,
	}
}

// OnOrder registers a listener invoked after an order's items were relayed.
func (s *Session) OnOrder(fn func([]extract.Item)) { s.onOrder = fn }

// Start consumes fragments until the channel closes or the context is
// canceled. It returns a stop function.
func (s *Session) Start(ctx context.Context, fragments <-chan string) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-fragments:
				if !ok {
					return
				}
				s.HandleFragment(frag)
			}
		}
	}()
	return cancel
}

// HandleFragment appends one fragment and, when the transcript completes,
// extracts and relays the order. Results derived from a transcript that was
// cleared mid-flight are discarded by generation check.
func (s *Session) HandleFragment(fragment string) {
	comp, ready := s.acc.Append(fragment)
	if !ready {
		return
	}
	items := extract.Extract(comp.Text, s.vocab)
	if s.acc.Generation() != comp.Generation {
		log.Printf("session: discarding stale extraction (generation %d)", comp.Generation)
		return
	}
	if len(items) == 0 {
		return
	}
	sent := 0
	for _, it := range items {
		if err := s.sender.Send(relay.AddItem(it.Name, it.Price, it.Quantity)); err != nil {
			log.Printf("session: relay of %q failed: %v", it.Name, err)
			continue
		}
		sent++
	}
	log.Printf("session: relayed %d/%d items", sent, len(items))
	if s.onOrder != nil {
		s.onOrder(items)
	}
}

// ClearTranscript cancels the pending partial order and invalidates any
// in-flight extraction for the discarded content.
func (s *Session) ClearTranscript() { s.acc.Clear() }

// Pending returns the current transcript buffer for display.
func (s *Session) Pending() string { return s.acc.Pending() }
