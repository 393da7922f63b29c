package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/invalidation"
	mylog "github.com/mohammed-shakir/site-viewer/internal/logger"
)

// Deleter removes cached keys.
type Deleter interface {
	Del(ctx context.Context, keys ...string) error
}

// Snapshot identifies the cached dataset: its origin and its cache key.
type Snapshot interface {
	Name() string
	Key() string
}

// Config selects the topic and group; zero timeouts take sarama-friendly
// defaults.
type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "sites-invalidation"
	}
	if c.GroupID == "" {
		c.GroupID = "site-viewer"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	return c
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	store  Deleter
	snap   Snapshot
	zlog   *zerolog.Logger
}

// New builds a consumer; audit records go to zl, which may be nil.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, store Deleter, snap Snapshot) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	return &Consumer{
		cfg:    cfg.withDefaults(),
		logger: logger,
		store:  store,
		snap:   snap,
		zlog:   mylog.FromContext(base, zl),
	}
}

// consumes invalidation events from kafka and processing them
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil || c.snap == nil {
		return errors.New("kafkaconsumer: missing dependencies (store/snapshot)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := claimLoop{c: c}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID, "key", c.snap.Key())

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne handles a single message. Undecodable and invalid events are
// skipped; a failed delete is returned so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.skip(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.skip(ctx, msg, "validate", err)
		return nil
	}
	if !ev.Matches(c.snap.Name()) {
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), nil)
		c.logger.Debug("invalidation for another dataset (skipping)", "source", ev.Source, "op", ev.Op)
		return nil
	}

	key := c.snap.Key()
	if err := c.store.Del(ctx, key); err != nil {
		obs.IncKafkaConsumerError("redis_del")
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), err)

		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "redis_del").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Str("key", key).
			Msg("kafka error")

		return fmt.Errorf("redis del: %w", err)
	}

	obs.ObserveInvalidation(ev.Op, 1, time.Since(start), nil)
	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Ints("site_ids", ev.SiteIDs).
		Str("key", key).
		Msg("snapshot invalidated")

	return nil
}

func (c *Consumer) skip(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	obs.IncKafkaConsumerError(kind)
	mylog.FromContext(ctx, c.zlog).Warn().
		Err(err).
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("invalidation event skipped")
}
