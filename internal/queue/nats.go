package queue

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

const streamName = "ATTENDANCE"

// NATSQueue publishes to and consumes from a JetStream subject.
type NATSQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	durable string
}

// NewNATSQueue connects to url and makes sure the backing stream exists.
func NewNATSQueue(url, subject, durable string, opts ...nats.Option) (*NATSQueue, error) {
	if subject == "" {
		subject = DefaultKey
	}
	if durable == "" {
		durable = "attendance-worker"
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := js.StreamInfo(streamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, err
		}
		if _, err := js.AddStream(&nats.StreamConfig{Name: streamName, Subjects: []string{subject}}); err != nil {
			nc.Close()
			return nil, err
		}
	}
	return &NATSQueue{conn: nc, js: js, subject: subject, durable: sanitizeDurable(durable)}, nil
}

// Close drains the connection.
func (q *NATSQueue) Close() {
	if q == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}

// Publish enqueues a message on the stream.
func (q *NATSQueue) Publish(ctx context.Context, msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = q.js.Publish(q.subject, data, nats.Context(ctx))
	return err
}

// Consume delivers messages through a durable push consumer. A message is
// acked once the worker has received it from the channel.
func (q *NATSQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	var (
		mu       sync.RWMutex
		closing  bool
		inflight sync.WaitGroup
	)
	handler := func(m *nats.Msg) {
		mu.RLock()
		if closing {
			mu.RUnlock()
			_ = m.Nak()
			return
		}
		inflight.Add(1)
		mu.RUnlock()
		defer inflight.Done()

		msg, err := decode(m.Data)
		if err != nil {
			_ = m.Term()
			return
		}
		select {
		case out <- msg:
			_ = m.Ack()
		case <-ctx.Done():
			_ = m.Nak()
		}
	}
	sub, err := q.js.Subscribe(q.subject, handler, nats.Durable(q.durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		mu.Lock()
		closing = true
		mu.Unlock()
		_ = sub.Drain()
		inflight.Wait()
		close(out)
	}()
	return out, nil
}

// Durable names may not contain '.', '*' or '>'.
func sanitizeDurable(name string) string {
	return strings.NewReplacer(".", "-", "*", "-", ">", "-").Replace(name)
}
