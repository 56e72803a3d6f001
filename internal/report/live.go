package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// liveRetention bounds how long a day's counters stay in redis.
const liveRetention = 72 * time.Hour

// Live counter field names.
const (
	FieldClassTotal      = "class:total"
	FieldTeacherCheckIn  = "teacher:check_in"
	FieldTeacherCheckOut = "teacher:check_out"
)

// Counters folds attendance events into per-institution, per-day tallies.
type Counters interface {
	Apply(ctx context.Context, eventType string, evt attendance.Event) error
	Live(ctx context.Context, institutionCode, date string) (map[string]int64, error)
}

// fields lists the counter increments an event contributes.
func fields(eventType string, evt attendance.Event) ([]string, error) {
	switch eventType {
	case attendance.EventClassMarked:
		return []string{FieldClassTotal, "class:" + evt.Status}, nil
	case attendance.EventTeacherCheckIn:
		return []string{FieldTeacherCheckIn}, nil
	case attendance.EventTeacherCheckOut:
		return []string{FieldTeacherCheckOut}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// RedisCounters stores tallies in a hash per institution and day.
type RedisCounters struct {
	client *redis.Client
}

// NewRedisCounters wraps client.
func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func liveKey(institutionCode, date string) string {
	return "attendance:live:" + institutionCode + ":" + date
}

// Apply increments the event's fields in one transaction.
func (r *RedisCounters) Apply(ctx context.Context, eventType string, evt attendance.Event) error {
	fs, err := fields(eventType, evt)
	if err != nil {
		return err
	}
	key := liveKey(evt.InstitutionCode, evt.Date)
	pipe := r.client.TxPipeline()
	for _, f := range fs {
		pipe.HIncrBy(ctx, key, f, 1)
	}
	pipe.Expire(ctx, key, liveRetention)
	_, err = pipe.Exec(ctx)
	return err
}

// Live reads the tallies for one day.
func (r *RedisCounters) Live(ctx context.Context, institutionCode, date string) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, liveKey(institutionCode, date)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for f, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("live counter %s: %w", f, err)
		}
		out[f] = n
	}
	return out, nil
}

// MemoryCounters is an in-process Counters for dev and tests.
type MemoryCounters struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
}

// NewMemoryCounters creates empty counters.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counts: make(map[string]map[string]int64)}
}

func (m *MemoryCounters) Apply(_ context.Context, eventType string, evt attendance.Event) error {
	fs, err := fields(eventType, evt)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := liveKey(evt.InstitutionCode, evt.Date)
	day, ok := m.counts[key]
	if !ok {
		day = make(map[string]int64)
		m.counts[key] = day
	}
	for _, f := range fs {
		day[f]++
	}
	return nil
}

func (m *MemoryCounters) Live(_ context.Context, institutionCode, date string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for f, n := range m.counts[liveKey(institutionCode, date)] {
		out[f] = n
	}
	return out, nil
}

// Fold consumes q until ctx ends, applying every event to c. Malformed
// messages are logged and skipped.
func Fold(ctx context.Context, q queue.Queue, c Counters) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		evt, err := attendance.ParseEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("type", msg.Type).Msg("skip malformed event")
			continue
		}
		if err := c.Apply(ctx, msg.Type, evt); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Error().Err(err).Str("type", msg.Type).Str("record_id", evt.RecordID).Msg("apply event failed")
			continue
		}
		log.Debug().Str("type", msg.Type).Str("record_id", evt.RecordID).Msg("event applied")
	}
	return nil
}
