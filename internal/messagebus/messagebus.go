// Package messagebus is a synchronous in-process publish/subscribe bus for
// collection notifications.
package messagebus

import (
	"sync"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
)

const (
	// TopicSitesChanged fires after every change of the derived views.
	TopicSitesChanged = "sitesChanged"
	// TopicSingleSite fires when exactly one site is searched; Site is set.
	TopicSingleSite = "singleSite"
)

type Event struct {
	Topic string
	Query string
	Site  *model.Site
}

type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus delivers events on the publishing goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every handler of ev.Topic. Handlers may publish or
// subscribe themselves; the handler list is snapshotted first.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	list := b.subs[ev.Topic]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.fn
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
