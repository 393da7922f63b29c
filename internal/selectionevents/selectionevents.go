// Package selectionevents publishes single-site selections to Kafka.
package selectionevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/messagebus"
)

type Event struct {
	SiteID      int       `json:"site_id"`
	Description string    `json:"description,omitempty"`
	Query       string    `json:"query"`
	TS          time.Time `json:"ts"`
}

// Subscriber is the part of the message bus the publisher listens on.
type Subscriber interface {
	Subscribe(topic string, fn messagebus.Handler) (unsubscribe func())
}

type Publisher struct {
	topic  string
	logger *slog.Logger
	prod   sarama.AsyncProducer
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("selectionevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		prod:    prod,
		now:     time.Now,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("selection event marshal failed", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(strconv.Itoa(ev.SiteID)),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncSelectionEvent("sent")
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncSelectionEvent("error")
				p.logger.Warn("selection event produce failed", "err", err)
			}
		}
	}()

	return p
}

// Attach forwards every single-site notification of bus to Kafka.
func (p *Publisher) Attach(bus Subscriber) (detach func()) {
	return bus.Subscribe(messagebus.TopicSingleSite, func(ev messagebus.Event) {
		if ev.Site == nil {
			return
		}
		p.Publish(Event{
			SiteID:      ev.Site.ID,
			Description: ev.Site.Description.String(),
			Query:       ev.Query,
			TS:          p.now().UTC(),
		})
	})
}

// Publish enqueues ev without blocking; it is dropped when the queue is full
// or the publisher is closed.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncSelectionEvent("dropped")
		return
	}
	select {
	case p.events <- ev:
		observability.IncSelectionEvent("queued")
	default:
		observability.IncSelectionEvent("dropped")
	}
}

// Close drains the queue and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("selectionevents: close producer: %w", err)
	}
	return nil
}
