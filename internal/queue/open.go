package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options selects and configures a backend for Open.
type Options struct {
	Key     string
	Redis   *redis.Client
	NATSURL string

	// Durable names the JetStream consumer; consumers sharing it split the work.
	Durable string

	// Size bounds the in-memory buffer.
	Size int
}

// Open builds the backend named by backend ("redis", "nats" or "memory").
// The returned close func is never nil.
func Open(backend string, opts Options) (Queue, func(), error) {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	switch backend {
	case "memory":
		size := opts.Size
		if size <= 0 {
			size = 256
		}
		return NewInMemory(size), func() {}, nil
	case "redis":
		if opts.Redis == nil {
			return nil, nil, fmt.Errorf("queue: redis backend needs a client")
		}
		return NewRedisQueue(opts.Redis, key), func() {}, nil
	case "nats":
		q, err := NewNATSQueue(opts.NATSURL, key, opts.Durable)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: connect nats: %w", err)
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("queue: unknown backend %q", backend)
	}
}
