package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/events"
	"github.com/time7/tagsync/pkg/gateway"
	"github.com/time7/tagsync/pkg/identity"
	"github.com/time7/tagsync/pkg/logger"
	"github.com/time7/tagsync/pkg/storage"
)

// RegistryStore is the part of the registry the engine reads and writes.
type RegistryStore interface {
	RegisteredIDs(ctx context.Context) ([]string, error)
	UpsertProduct(ctx context.Context, p storage.ProductRecord) error
	UpdateProduct(ctx context.Context, p storage.ProductRecord) error
	AddPhoto(ctx context.Context, identifier string, photo storage.PhotoReference) error
}

// SnapshotCache persists the last good identifier set between runs.
type SnapshotCache interface {
	Save(ctx context.Context, ids []string) error
	Load(ctx context.Context) ([]string, error)
}

// Workflow is what interacting with a scan opens.
type Workflow int

const (
	WorkflowNone Workflow = iota
	WorkflowView
	WorkflowRegister
)

func (w Workflow) String() string {
	switch w {
	case WorkflowView:
		return "view"
	case WorkflowRegister:
		return "register"
	default:
		return "none"
	}
}

// Item is a scan classified against the registered set.
type Item struct {
	gateway.ScanRecord
	Registered bool
}

// Selection is the single open workflow and the scan it belongs to.
type Selection struct {
	Workflow Workflow
	Record   gateway.ScanRecord
}

// Option customises an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger.OrNop(l) }
}

// WithSnapshotCache enables warm starts from the last saved set.
func WithSnapshotCache(c SnapshotCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPublisher announces successful registrations.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// Engine classifies live scans against a cached snapshot of the registry.
type Engine struct {
	store     RegistryStore
	cache     SnapshotCache
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	set    atomic.Pointer[IdentifierSet]
	loaded atomic.Bool

	refreshMu sync.Mutex

	selMu    sync.Mutex
	selected *Selection
}

// New builds an engine with an empty identifier set. Call Mount to load it.
func New(store RegistryStore, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		publisher: &events.NoopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	empty := NewIdentifierSet(nil)
	e.set.Store(&empty)
	return e
}

// Mount performs the initial refresh.
func (e *Engine) Mount(ctx context.Context) error {
	return e.Refresh(ctx)
}

// NotifyRegistered refreshes after a registration made here or elsewhere.
func (e *Engine) NotifyRegistered(ctx context.Context) error {
	return e.Refresh(ctx)
}

// Refresh replaces the identifier set with a fresh read of the registry. On
// failure the previous set stays in place and the error is returned for the
// caller to log; it is never fatal.
func (e *Engine) Refresh(ctx context.Context) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	ids, err := e.store.RegisteredIDs(ctx)
	if err != nil {
		e.logger.Warn("registry refresh failed, keeping previous set", zap.Int("cached", e.Set().Len()), zap.Error(err))
		e.warmStart(ctx)
		return err
	}

	set := NewIdentifierSet(ids)
	e.set.Store(&set)
	e.loaded.Store(true)
	e.logger.Debug("registry refreshed", zap.Int("registered", set.Len()))

	if e.cache != nil {
		if err := e.cache.Save(ctx, set.Slice()); err != nil {
			e.logger.Warn("saving registry snapshot failed", zap.Error(err))
		}
	}
	return nil
}

// warmStart loads the cached snapshot if the registry was never read.
func (e *Engine) warmStart(ctx context.Context) {
	if e.cache == nil || e.loaded.Load() {
		return
	}
	ids, err := e.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("loading registry snapshot failed", zap.Error(err))
		}
		return
	}
	set := NewIdentifierSet(ids)
	e.set.Store(&set)
	e.logger.Info("using cached registry snapshot", zap.Int("registered", set.Len()))
}

// Set returns the current identifier snapshot.
func (e *Engine) Set() IdentifierSet {
	return *e.set.Load()
}

// Registered reports whether tid is in the current snapshot.
func (e *Engine) Registered(tid string) bool {
	return e.Set().Contains(identity.Normalize(tid))
}

// Classify marks each scan as registered or not. The whole batch is judged
// against one snapshot.
func (e *Engine) Classify(scans []gateway.ScanRecord) []Item {
	set := e.Set()
	items := make([]Item, len(scans))
	for i, rec := range scans {
		items[i] = Item{ScanRecord: rec, Registered: set.Contains(identity.Normalize(rec.TIDHex))}
	}
	return items
}

// Select opens the workflow for rec, replacing any open one. Unauthenticated
// tags are display-only: nothing opens and the current selection is kept.
func (e *Engine) Select(rec gateway.ScanRecord) Workflow {
	if !rec.Auth {
		return WorkflowNone
	}

	wf := WorkflowRegister
	if e.Registered(rec.TIDHex) {
		wf = WorkflowView
	}

	rec.TIDHex = identity.Normalize(rec.TIDHex)
	e.selMu.Lock()
	e.selected = &Selection{Workflow: wf, Record: rec}
	e.selMu.Unlock()
	return wf
}

// Open returns the open workflow, if any.
func (e *Engine) Open() (Selection, bool) {
	e.selMu.Lock()
	defer e.selMu.Unlock()
	if e.selected == nil {
		return Selection{}, false
	}
	return *e.selected, true
}

// Close closes the open workflow.
func (e *Engine) Close() {
	e.selMu.Lock()
	e.selected = nil
	e.selMu.Unlock()
}

// Register writes a new product. A store failure is returned as is and the
// register workflow stays open so the input can be retried.
func (e *Engine) Register(ctx context.Context, p storage.ProductRecord) error {
	p.TID = identity.Normalize(p.TID)
	if err := e.store.UpsertProduct(ctx, p); err != nil {
		e.logger.Error("registration failed", zap.String("tid", p.TID), zap.Error(err))
		return err
	}
	e.logger.Info("product registered", zap.String("tid", p.TID), zap.String("epc", p.EPC))

	e.closeIf(p.TID)
	_ = e.Refresh(ctx)

	if err := e.publisher.PublishRegistration(ctx, events.NewRegistrationEvent(p.TID, p.EPC, e.now())); err != nil {
		e.logger.Warn("publishing registration failed", zap.String("tid", p.TID), zap.Error(err))
	}
	return nil
}

// Edit updates an existing product. Store failures, including
// storage.ErrNotFound, are returned to the caller.
func (e *Engine) Edit(ctx context.Context, p storage.ProductRecord) error {
	p.TID = identity.Normalize(p.TID)
	if err := e.store.UpdateProduct(ctx, p); err != nil {
		e.logger.Error("product edit failed", zap.String("tid", p.TID), zap.Error(err))
		return err
	}
	e.logger.Info("product updated", zap.String("tid", p.TID))
	return nil
}

// AddPhoto attaches a photo to a registered product. Unregistered tags get
// storage.ErrNotFound without touching the store.
func (e *Engine) AddPhoto(ctx context.Context, tid, photoURL string) error {
	tid = identity.Normalize(tid)
	if !e.Registered(tid) {
		return storage.ErrNotFound
	}
	err := e.store.AddPhoto(ctx, tid, storage.PhotoReference{PhotoURL: photoURL, CreatedAt: e.now().UTC()})
	if err != nil {
		e.logger.Error("adding photo failed", zap.String("tid", tid), zap.Error(err))
		return err
	}
	e.logger.Info("photo added", zap.String("tid", tid))
	return nil
}

func (e *Engine) closeIf(tid string) {
	e.selMu.Lock()
	defer e.selMu.Unlock()
	if e.selected != nil && identity.Equal(e.selected.Record.TIDHex, tid) {
		e.selected = nil
	}
}
