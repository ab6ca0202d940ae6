package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
)

type Kind string

const (
	Patient      Kind = "patient"
	Visit        Kind = "visit"
	Analysis     Kind = "analysis"
	Payment      Kind = "payment"
	Prescription Kind = "prescription"
	Detail       Kind = "detail"
	Operation    Kind = "operation"
)

var prefixes = map[Kind]string{
	Patient:      "PAT",
	Visit:        "VIS",
	Analysis:     "ANA",
	Payment:      "PAY",
	Prescription: "PRESC",
	Detail:       "DET",
	Operation:    "OP",
}

// Generator issues year-scoped human readable numbers such as PAY-2024-007
type Generator interface {
	Next(ctx context.Context, kind Kind) (string, error)
}

// Counter is an atomic increment-and-fetch primitive
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

type CounterGenerator struct {
	counter Counter
	now     func() time.Time
}

func NewGenerator(counter Counter) *CounterGenerator {
	return &CounterGenerator{counter: counter, now: time.Now}
}

// FromRepository adapts a SequenceRepository
func FromRepository(repo repository.SequenceRepository) *CounterGenerator {
	return NewGenerator(repo)
}

func (g *CounterGenerator) WithClock(now func() time.Time) *CounterGenerator {
	g.now = now
	return g
}

func (g *CounterGenerator) Next(ctx context.Context, kind Kind) (string, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return "", fmt.Errorf("unknown sequence kind %q", kind)
	}
	year := g.now().Year()

	seq, err := g.counter.Increment(ctx, Key(kind, year))
	if err != nil {
		return "", fmt.Errorf("failed to generate %s number: %w", kind, err)
	}
	return Format(prefix, year, seq), nil
}

// Key is the counter name for kind in year
func Key(kind Kind, year int) string {
	return fmt.Sprintf("%s_%d", kind, year)
}

// Format renders <PREFIX>-<YEAR>-<seq padded to 3 digits>
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}

// RedisCounter increments counters with INCR
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "cmc:seq:"}
}

func (c *RedisCounter) Increment(ctx context.Context, key string) (int64, error) {
	seq, err := c.client.Incr(ctx, c.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr %s: %w", key, err)
	}
	return seq, nil
}
