package notifsvc

import (
	"sync"

	"github.com/chantio/chantio/core"
)

// DummyNotifier records events instead of delivering them. Tests only.
type DummyNotifier struct {
	mu     sync.Mutex
	events []core.Event
}

var _ core.Notifier = (*DummyNotifier)(nil)

func NewDummyNotifier() *DummyNotifier {
	return &DummyNotifier{}
}

func (n *DummyNotifier) Notify(evt core.Event) {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
}

// Events returns a copy of everything notified so far.
func (n *DummyNotifier) Events() []core.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	evts := make([]core.Event, len(n.events))
	copy(evts, n.events)
	return evts
}

func (n *DummyNotifier) Reset() {
	n.mu.Lock()
	n.events = n.events[:0]
	n.mu.Unlock()
}
