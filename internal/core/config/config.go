// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type SnapshotCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	// OpTimeout bounds each Redis call and doubles as the client's
	// read/write timeout.
	OpTimeout   time.Duration
	PoolSize    int
	DialTimeout time.Duration
}

// InvalidationCfg consumes dataset change events that drop the snapshot; it
// needs the snapshot to be enabled.
type InvalidationCfg struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	GroupID    string
	FromOldest bool
}

type SelectionEventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	SitesURL       string
	LoadTimeout    time.Duration
	SearchLiteral  bool
	QueryCacheSize int
	H3Res          int
	MetricsEnabled bool
	MetricsPath    string
	// PopularityHalfLife is the half-life of site popularity scores.
	PopularityHalfLife time.Duration
	Snapshot           SnapshotCfg
	Selection          SelectionEventsCfg
	Invalidation       InvalidationCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	brokers := splitCSV(getenv("KAFKA_BROKERS", "localhost:9092"))

	return Config{
		Addr:               getenv("ADDR", ":8090"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogConsole:         getbool("LOG_CONSOLE", false),
		LogSampleN:         getint("LOG_SAMPLE_N", 0),
		SitesURL:           getenv("SITES_JSON_URL", "http://localhost:8080/data/sites.json"),
		LoadTimeout:        getduration("LOAD_TIMEOUT", 30*time.Second),
		SearchLiteral:      getbool("SEARCH_LITERAL", false),
		QueryCacheSize:     getint("QUERY_CACHE_SIZE", 256),
		H3Res:              res,
		MetricsEnabled:     getbool("METRICS_ENABLED", true),
		MetricsPath:        getenv("METRICS_PATH", "/metrics"),
		PopularityHalfLife: getduration("POPULARITY_HALF_LIFE", 10*time.Minute),
		Snapshot: SnapshotCfg{
			Enabled:     getbool("SNAPSHOT_ENABLED", false),
			RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
			TTL:         getduration("SNAPSHOT_TTL", 10*time.Minute),
			OpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			PoolSize:    getint("REDIS_POOL_SIZE", 8),
			DialTimeout: getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		},
		Selection: SelectionEventsCfg{
			Enabled: getbool("SELECTION_EVENTS_ENABLED", false),
			Brokers: brokers,
			Topic:   getenv("KAFKA_TOPIC", "site-selection"),
			Queue:   getint("SELECTION_QUEUE", 1024),
		},
		Invalidation: InvalidationCfg{
			Enabled:    getbool("INVALIDATION_ENABLED", false),
			Brokers:    brokers,
			Topic:      getenv("INVALIDATION_TOPIC", "sites-invalidation"),
			GroupID:    getenv("KAFKA_GROUP_ID", "site-viewer"),
			FromOldest: getbool("INVALIDATION_FROM_OLDEST", false),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
