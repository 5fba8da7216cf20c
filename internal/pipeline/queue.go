package pipeline

import (
	"context"
	"fmt"

	"netwatch/internal/model"
)

// Backpressure decides what a producer does when the pipeline queue is full
type Backpressure string

const (
	// BackpressureBlock makes the producer wait for room
	BackpressureBlock Backpressure = "block"
	// BackpressureDrop discards the incoming packet
	BackpressureDrop Backpressure = "drop"
)

// ParseBackpressure validates a configured policy name
func ParseBackpressure(s string) (Backpressure, error) {
	switch Backpressure(s) {
	case "", BackpressureBlock:
		return BackpressureBlock, nil
	case BackpressureDrop:
		return BackpressureDrop, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// Sink is what packet sources push into
type Sink interface {
	Enqueue(ctx context.Context, pkt *model.PacketDescriptor) error
}

// Queue is the bounded channel between a packet source and the consumer
type Queue struct {
	ch     chan *model.PacketDescriptor
	policy Backpressure
	onDrop func()
}

func NewQueue(size int, policy Backpressure, onDrop func()) *Queue {
	if size <= 0 {
		size = 1024
	}
	if policy == "" {
		policy = BackpressureBlock
	}
	return &Queue{
		ch:     make(chan *model.PacketDescriptor, size),
		policy: policy,
		onDrop: onDrop,
	}
}

// Enqueue hands a packet to the consumer according to the backpressure policy.
// It returns ctx.Err() if the context ends while blocked.
func (q *Queue) Enqueue(ctx context.Context, pkt *model.PacketDescriptor) error {
	if q.policy == BackpressureDrop {
		select {
		case q.ch <- pkt:
		default:
			if q.onDrop != nil {
				q.onDrop()
			}
		}
		return nil
	}

	select {
	case q.ch <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is the consumer side of the queue
func (q *Queue) C() <-chan *model.PacketDescriptor {
	return q.ch
}

// Close signals the consumer that no more packets will arrive.
// Only the producer side may call it, once.
func (q *Queue) Close() {
	close(q.ch)
}
