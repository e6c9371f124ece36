// Package poller runs one adaptive polling loop per rig, invoking the gt CLI
// on a fixed schedule that backs off under repeated failure and resets on
// success. Grounded on internal/eventbus.DecisionPoller's ticker/ctx/wg
// shape, generalized from a single fixed interval to per-rig adaptive
// backoff and demand-driven "poke now" coalescing.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs/invoker"
	"github.com/gastown/gt/internal/obs/model"
)

const (
	baseInterval  = 5 * time.Second
	maxInterval   = 60 * time.Second
	backoffFactor = 1.5
	killGrace     = 500 * time.Millisecond
)

// Snapshotter fetches one Snapshot for a rig. Implemented by the
// invoker-backed production fetcher; swappable in tests.
type Snapshotter interface {
	Snapshot(ctx context.Context, rig string) (model.Snapshot, error)
}

// InvokerSnapshotter adapts an *invoker.Invoker into a Snapshotter by
// shelling out to "gt status --rig <rig> --json" and decoding the result.
// The decode step lives in the diff package's world-model loader; this
// type only owns the invocation and raw-bytes hand-off.
type InvokerSnapshotter struct {
	Invoker *invoker.Invoker
	Decode  func(rig string, raw []byte, observedAt time.Time) (model.Snapshot, error)
}

func (s *InvokerSnapshotter) Snapshot(ctx context.Context, rig string) (model.Snapshot, error) {
	raw, err := s.Invoker.InvokeJSON(ctx, "status", []string{"--rig", rig})
	if err != nil {
		return model.Snapshot{}, err
	}
	return s.Decode(rig, raw, time.Now())
}

// Result is delivered on each successful or failed poll.
type Result struct {
	Rig      string
	Snapshot model.Snapshot
	Err      error
}

// Poller runs one adaptive loop per rig against a bounded worker pool.
type Poller struct {
	snap     Snapshotter
	sink     chan<- Result
	workers  chan struct{}
	interval time.Duration

	mu      sync.Mutex
	pokeChs map[string]chan struct{}
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Poller with a worker pool of size workers (spec default 8)
// and base poll interval (spec default 5s, capped growth at maxInterval).
func New(snap Snapshotter, sink chan<- Result, workers int, interval time.Duration) *Poller {
	if workers <= 0 {
		workers = 8
	}
	if interval <= 0 {
		interval = baseInterval
	}
	return &Poller{
		snap:     snap,
		sink:     sink,
		workers:  make(chan struct{}, workers),
		interval: interval,
		pokeChs:  make(map[string]chan struct{}),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Watch starts (or no-ops if already running) an adaptive poll loop for rig.
func (p *Poller) Watch(ctx context.Context, rig string) {
	p.mu.Lock()
	if _, ok := p.cancels[rig]; ok {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	poke := make(chan struct{}, 1)
	p.cancels[rig] = cancel
	p.pokeChs[rig] = poke
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(loopCtx, rig, poke)
}

// Unwatch stops the poll loop for rig and waits for killGrace before
// returning, matching the spec's graceful-stop window for in-flight polls.
func (p *Poller) Unwatch(rig string) {
	p.mu.Lock()
	cancel, ok := p.cancels[rig]
	delete(p.cancels, rig)
	delete(p.pokeChs, rig)
	p.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	time.Sleep(killGrace)
}

// PokeNow requests an immediate poll of rig, coalescing with any pending
// request that hasn't yet been picked up by the loop.
func (p *Poller) PokeNow(rig string) {
	p.mu.Lock()
	poke, ok := p.pokeChs[rig]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case poke <- struct{}{}:
	default:
	}
}

// Stop cancels every running loop and waits for them to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	rigs := make([]string, 0, len(p.cancels))
	for rig := range p.cancels {
		rigs = append(rigs, rig)
	}
	p.mu.Unlock()
	for _, rig := range rigs {
		p.Unwatch(rig)
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, rig string, poke <-chan struct{}) {
	defer p.wg.Done()

	interval := p.interval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poke:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		case <-timer.C:
		}

		select {
		case <-ctx.Done():
			return
		case p.workers <- struct{}{}:
		}

		ok := p.pollOnce(ctx, rig)
		<-p.workers

		if ok {
			interval = p.interval
		} else {
			interval = nextBackoff(interval)
		}

		if ctx.Err() != nil {
			return
		}
		timer.Reset(interval)
	}
}

func (p *Poller) pollOnce(ctx context.Context, rig string) bool {
	snap, err := p.snap.Snapshot(ctx, rig)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		log.Printf("poller: rig %s: %v", rig, err)
		select {
		case p.sink <- Result{Rig: rig, Err: err}:
		case <-ctx.Done():
		}
		return false
	}
	select {
	case p.sink <- Result{Rig: rig, Snapshot: snap}:
	case <-ctx.Done():
	}
	return true
}

func nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * backoffFactor)
	if next > maxInterval {
		return maxInterval
	}
	if next <= 0 {
		return baseInterval
	}
	return next
}
