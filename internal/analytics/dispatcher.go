// Package analytics records auth events (signups, logins, logouts,
// verifications, password resets) without blocking the request path.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kgdatatech/securestack/internal/model"
)

// EventSink is where dispatched events end up; satisfied by the
// Postgres analytics repository.
type EventSink interface {
	Insert(ctx context.Context, e *model.AnalyticsEvent) error
}

// Recorder accepts analytics events. Implementations must never block
// the caller.
type Recorder interface {
	Record(event model.AnalyticsEvent)
}

// NoopRecorder discards every event.
type NoopRecorder struct{}

func (NoopRecorder) Record(model.AnalyticsEvent) {}

// Config controls dispatcher buffering.
type Config struct {
	BufferSize  int
	SinkTimeout time.Duration
}

// Dispatcher forwards events to the analytics repository from a
// single background goroutine. Events are dropped, and counted, when
// the buffer is full; auth flows never wait on analytics.
type Dispatcher struct {
	repo      EventSink
	log       *slog.Logger
	ch        chan model.AnalyticsEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	sinkTimeout time.Duration
}

func NewDispatcher(cfg Config, repo EventSink, log *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		repo:        repo,
		log:         log,
		ch:          make(chan model.AnalyticsEvent, cfg.BufferSize),
		done:        make(chan struct{}),
		sinkTimeout: cfg.SinkTimeout,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

var _ Recorder = (*Dispatcher)(nil)

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.persist(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) persist(event model.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
	defer cancel()

	if err := d.repo.Insert(ctx, &event); err != nil {
		d.log.Warn("analytics event not persisted",
			"type", event.Type, "error", err)
	}
}

// Record enqueues an event. If the buffer is full the event is
// dropped and counted.
func (d *Dispatcher) Record(event model.AnalyticsEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

// Close drains pending events and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded due to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
