package polling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/time7/tagsync/pkg/gateway"
	"github.com/time7/tagsync/pkg/identity"
	"github.com/time7/tagsync/pkg/logger"
)

// Status is the gateway connection state.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusError      Status = "error"
)

var (
	ErrAlreadyStarted  = errors.New("polling engine already started")
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// TagSource is the part of the gateway client the engine polls.
type TagSource interface {
	FetchActiveTags(ctx context.Context) ([]gateway.ScanRecord, error)
	FetchReaderStatus(ctx context.Context) (gateway.ReaderStatus, error)
}

// Snapshot is the externally visible engine state. Scans must not be modified.
type Snapshot struct {
	Status Status
	// Error holds the last cycle failure while Status is StatusError.
	Error           string
	Scans           []gateway.ScanRecord
	ReaderConnected bool
	UpdatedAt       time.Time
}

// GatewayLive reports whether the most recent published cycle succeeded.
func (s Snapshot) GatewayLive() bool {
	return s.Status == StatusLive
}

// Config configures an Engine.
type Config struct {
	Interval time.Duration
	Clock    Clock
	Logger   *zap.Logger
	// OnUpdate, if set, receives every published snapshot in publication
	// order. It may read engine state but must not call Start or Stop.
	OnUpdate func(Snapshot)
}

// run is one Start..Stop lifetime of the loop.
type run struct {
	ctx        context.Context
	generation uint64
	done       chan struct{}
	reset      chan time.Duration
	exited     chan struct{}
}

// Engine polls the gateway on a schedule and owns the liveness state.
type Engine struct {
	source   TagSource
	clock    Clock
	logger   *zap.Logger
	onUpdate func(Snapshot)

	// notifyMu is taken before mu and held across OnUpdate.
	notifyMu      sync.Mutex
	mu            sync.Mutex
	interval      time.Duration
	state         Snapshot
	current       *run
	generation    uint64
	nextSeq       uint64
	lastPublished uint64
}

// New creates an engine polling source every cfg.Interval.
func New(source TagSource, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, errors.New("polling: nil tag source")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("polling: %w", ErrInvalidInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	cfg.Logger = logger.OrNop(cfg.Logger)

	return &Engine{
		source:   source,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		onUpdate: cfg.OnUpdate,
		interval: cfg.Interval,
		state:    Snapshot{Status: StatusConnecting, Scans: []gateway.ScanRecord{}},
	}, nil
}

// Start enters the connecting state, fires one cycle immediately and then
// one per interval until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}

	e.generation++
	r := &run{
		ctx:        ctx,
		generation: e.generation,
		done:       make(chan struct{}),
		reset:      make(chan time.Duration, 1),
		exited:     make(chan struct{}),
	}
	e.current = r
	e.state.Status = StatusConnecting
	e.state.Error = ""
	e.state.UpdatedAt = e.clock.Now()
	interval := e.interval
	sched := newSchedule(e.clock, interval)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	e.logger.Info("polling started", zap.Duration("interval", interval))

	go e.loop(r, sched)
	return nil
}

// Stop disposes the schedule. Cycles still in flight finish their requests
// but their results are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	r := e.current
	if r == nil {
		e.mu.Unlock()
		return
	}
	e.retireLocked()
	close(r.done)
	e.mu.Unlock()

	<-r.exited
	e.logger.Info("polling stopped")
}

// SetInterval replaces the schedule with one at period d. It never fires an
// extra cycle.
func (e *Engine) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if d == e.interval {
		return nil
	}
	e.interval = d

	if r := e.current; r != nil {
		select {
		case r.reset <- d:
		default:
			// replace a pending change that the loop has not picked up yet
			select {
			case <-r.reset:
			default:
			}
			r.reset <- d
		}
	}
	return nil
}

// Interval returns the current polling period.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// GatewayLive reports whether the gateway answered the last published cycle.
func (e *Engine) GatewayLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GatewayLive()
}

// ReaderConnected returns the reader flag from the last successful cycle,
// regardless of the current gateway state.
func (e *Engine) ReaderConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ReaderConnected
}

func (e *Engine) loop(r *run, sched *schedule) {
	defer close(r.exited)
	defer func() { sched.dispose() }()

	e.launch(r)

	for {
		select {
		case <-r.done:
			return
		case <-r.ctx.Done():
			e.mu.Lock()
			if e.current == r {
				e.retireLocked()
			}
			e.mu.Unlock()
			return
		case <-sched.ticker.Chan():
			e.launch(r)
		case d := <-r.reset:
			sched.dispose()
			sched = newSchedule(e.clock, d)
			e.logger.Info("poll interval changed", zap.Duration("interval", d))
		}
	}
}

// retireLocked detaches the current run. Bumping the generation is what
// makes in-flight cycles of that run discard their results.
func (e *Engine) retireLocked() {
	e.current = nil
	e.generation++
}

func (e *Engine) launch(r *run) {
	e.mu.Lock()
	e.nextSeq++
	seq := e.nextSeq
	e.mu.Unlock()

	go e.cycle(r, seq)
}

// cycle fetches the scan list and reader status concurrently and publishes
// only once both have completed.
func (e *Engine) cycle(r *run, seq uint64) {
	var (
		rows   []gateway.ScanRecord
		reader gateway.ReaderStatus
		g      errgroup.Group
	)
	g.Go(func() error {
		var err error
		rows, err = e.source.FetchActiveTags(r.ctx)
		return err
	})
	g.Go(func() error {
		var err error
		reader, err = e.source.FetchReaderStatus(r.ctx)
		return err
	})
	err := g.Wait()

	if err == nil {
		rows = normalizeRecords(rows)
	}
	e.publish(r.generation, seq, rows, reader, err)
}

func (e *Engine) publish(generation, seq uint64, rows []gateway.ScanRecord, reader gateway.ReaderStatus, err error) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()

	if generation != e.generation || e.current == nil {
		e.mu.Unlock()
		e.logger.Debug("discarding cycle result after stop", zap.Uint64("seq", seq))
		return
	}
	if last := e.lastPublished; seq <= last {
		e.mu.Unlock()
		e.logger.Debug("discarding stale cycle result", zap.Uint64("seq", seq), zap.Uint64("published", last))
		return
	}
	e.lastPublished = seq
	e.state.UpdatedAt = e.clock.Now()

	if err != nil {
		prev := e.state.Status
		e.state.Status = StatusError
		e.state.Error = err.Error()
		if prev != StatusError {
			e.logger.Warn("gateway unreachable", zap.Error(err))
		}
	} else {
		if e.state.Status != StatusLive {
			e.logger.Info("gateway live", zap.Int("tags", len(rows)), zap.Bool("reader_connected", reader.Connected))
		}
		e.state.Status = StatusLive
		e.state.Error = ""
		e.state.Scans = rows
		e.state.ReaderConnected = reader.Connected
	}

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

func (e *Engine) snapshotLocked() Snapshot {
	s := e.state
	s.Scans = slices.Clone(e.state.Scans)
	return s
}

// notify hands s to OnUpdate. Callers hold notifyMu, never mu, so callbacks
// run in publication order and may read engine state.
func (e *Engine) notify(s Snapshot) {
	if e.onUpdate != nil {
		e.onUpdate(s)
	}
}

// normalizeRecords returns rows with every identifier in canonical form.
// This is the only place scan identifiers are normalized.
func normalizeRecords(rows []gateway.ScanRecord) []gateway.ScanRecord {
	out := make([]gateway.ScanRecord, len(rows))
	for i, rec := range rows {
		rec.TIDHex = identity.Normalize(rec.TIDHex)
		out[i] = rec
	}
	return out
}
