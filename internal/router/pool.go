package router

import (
	"context"
	"sync"

	"github.com/heraldbot/herald/pkg/message"
)

// DefaultWorkerCount is the worker pool size when none is configured.
const DefaultWorkerCount = 8

// envelope wraps an inbound message with its precomputed session key
// for the worker pool inbox.
type envelope struct {
	Message message.InboundMessage
	Key     SessionKey
}

// WorkerPool runs a fixed set of goroutines consuming from the inbox.
type WorkerPool struct {
	size int
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool with the given size.
// Sizes <= 0 fall back to DefaultWorkerCount.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount
	}
	return &WorkerPool{size: size}
}

// Start launches the workers. They exit when inbox closes.
func (p *WorkerPool) Start(ctx context.Context, inbox <-chan envelope, handler func(context.Context, envelope)) {
	for range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for env := range inbox {
				handler(ctx, env)
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
