package messagebus

import (
	"reflect"
	"testing"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
)

func TestPublish_OrderAndTopicIsolation(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe(TopicSitesChanged, func(Event) { got = append(got, "a") })
	b.Subscribe(TopicSitesChanged, func(Event) { got = append(got, "b") })
	b.Subscribe(TopicSingleSite, func(Event) { got = append(got, "single") })

	b.Publish(Event{Topic: TopicSitesChanged})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v want [a b]", got)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	b := New()
	n := 0
	unsub := b.Subscribe(TopicSingleSite, func(ev Event) {
		if ev.Site == nil || ev.Site.ID != 7 {
			t.Fatalf("unexpected payload: %+v", ev)
		}
		n++
	})
	site := model.Site{ID: 7}
	b.Publish(Event{Topic: TopicSingleSite, Site: &site})
	unsub()
	b.Publish(Event{Topic: TopicSingleSite, Site: &site})
	if n != 1 {
		t.Fatalf("handler called %d times want 1", n)
	}
}

func TestPublish_HandlerMaySubscribe(t *testing.T) {
	b := New()
	calls := 0
	b.Subscribe(TopicSitesChanged, func(Event) {
		calls++
		b.Subscribe(TopicSitesChanged, func(Event) { calls++ })
	})
	b.Publish(Event{Topic: TopicSitesChanged})
	if calls != 1 {
		t.Fatalf("new subscriber must not run in the same round, calls=%d", calls)
	}
}
