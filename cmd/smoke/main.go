// Command smoke checks the infrastructure the site server depends on:
// Redis, the sites document, the invalidation topic and the H3 mapping.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/geometry"
	"github.com/mohammed-shakir/site-viewer/internal/invalidation"
	h3mapper "github.com/mohammed-shakir/site-viewer/internal/mapper/h3"
	"github.com/mohammed-shakir/site-viewer/internal/sitesource"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func testRedis(ctx context.Context, addr string) error {
	fmt.Println("Redis test")
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if err := client.Set(ctx, "smoke:hello", "world", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, err := client.Get(ctx, "smoke:hello").Result()
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	fmt.Println("redis GET smoke:hello:", val)
	return nil
}

func testSites(ctx context.Context, sitesURL string) ([]model.Site, error) {
	fmt.Println("Sites document test")
	src, err := sitesource.NewHTTP(nil, &http.Client{Timeout: 10 * time.Second}, sitesURL)
	if err != nil {
		return nil, err
	}
	sites, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sites: %w", err)
	}
	fmt.Printf("decoded %d sites from %s\n", len(sites), src.Name())
	return sites, nil
}

func testKafka(brokers []string, topic, source string) error {
	fmt.Println("Kafka test")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	// An update event for the smoke-tested dataset; consumers drop its snapshot.
	ev := invalidation.Event{Version: 1, Op: "update", Source: source, TS: time.Now().UTC()}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	partition, offset, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic, Value: sarama.ByteEncoder(msgBytes),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("produced invalidation partition=%d offset=%d\n", partition, offset)
	return nil
}

func testH3(sites []model.Site, res int) error {
	fmt.Println("H3 test")
	m := h3mapper.New()
	for _, s := range sites {
		c, err := geometry.CenterOfSite(s)
		if err != nil {
			continue
		}
		cell, err := m.CellForPoint(c[0], c[1], res)
		if err != nil {
			return fmt.Errorf("site %d cell: %w", s.ID, err)
		}
		fmt.Printf("site %d center cell at res %d: %s\n", s.ID, res, cell)
		return nil
	}
	fmt.Println("no site with geometry, skipping")
	return nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	sitesURL := getenv("SITES_JSON_URL", "http://localhost:8080/data/sites.json")
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("INVALIDATION_TOPIC", "sites-invalidation")

	if err := testRedis(ctx, redisAddr); err != nil {
		fmt.Println("Redis error:", err)
		return
	}
	sites, err := testSites(ctx, sitesURL)
	if err != nil {
		fmt.Println("Sites error:", err)
		return
	}
	if err := testKafka(brokers, topic, sitesURL); err != nil {
		fmt.Println("Kafka error:", err)
		return
	}
	if err := testH3(sites, 9); err != nil {
		fmt.Println("H3 error:", err)
		return
	}
	fmt.Println("All tests completed")
}
