package search

//go:generate mockgen -destination=mock_store.go -package=search github.com/time7/tagsync/pkg/search Store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/identity"
	"github.com/time7/tagsync/pkg/logger"
	"github.com/time7/tagsync/pkg/storage"
)

// Store is the registry read surface the resolver needs.
type Store interface {
	FindProduct(ctx context.Context, field storage.Field, value string) (storage.ProductRecord, error)
	LatestPhoto(ctx context.Context, identifier string) (storage.PhotoReference, error)
}

// Result is the published outcome of a search.
type Result struct {
	Query     string
	Product   *storage.ProductRecord
	Photo     *storage.PhotoReference
	NotFound  bool
	Err       error
	Searching bool
}

// ShowNotFound reports whether a "no match" message should be displayed.
func (r Result) ShowNotFound() bool {
	return r.NotFound && !r.Searching
}

// Option customises a Resolver.
type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger.OrNop(l) }
}

// Resolver turns free text into at most one product.
type Resolver struct {
	store  Store
	logger *zap.Logger

	mu         sync.Mutex
	generation uint64
	state      Result
}

// New builds a resolver reading from store.
func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type lookup struct {
	field storage.Field
	value string
}

// plan lists the exact-match lookups for q in the order they are tried.
// Canonical-case variants are skipped when they equal the typed query.
func plan(q string) []lookup {
	canonical := identity.Normalize(q)
	steps := []lookup{{storage.FieldTID, q}}
	if canonical != q {
		steps = append(steps, lookup{storage.FieldTID, canonical})
	}
	steps = append(steps, lookup{storage.FieldEPC, q})
	if canonical != q {
		steps = append(steps, lookup{storage.FieldEPC, canonical})
	}
	return steps
}

// Search resolves query and publishes the outcome unless a newer search has
// started in the meantime. An empty query resets the published state.
func (r *Resolver) Search(ctx context.Context, query string) Result {
	q := strings.TrimSpace(query)

	r.mu.Lock()
	r.generation++
	gen := r.generation
	if q == "" {
		r.state = Result{}
		r.mu.Unlock()
		return Result{}
	}
	r.state = Result{Query: q, Searching: true}
	r.mu.Unlock()

	res := r.resolve(ctx, q)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		r.logger.Debug("dropping superseded search", zap.String("query", q))
		return res
	}
	r.state = res
	return res
}

// State returns the last published result.
func (r *Resolver) State() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) resolve(ctx context.Context, q string) Result {
	for _, step := range plan(q) {
		p, err := r.store.FindProduct(ctx, step.field, step.value)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Warn("search failed", zap.String("query", q), zap.String("field", string(step.field)), zap.Error(err))
			return Result{Query: q, Err: err}
		}

		return Result{Query: q, Product: &p, Photo: r.latestPhoto(ctx, p.TID)}
	}
	return Result{Query: q, NotFound: true}
}

// latestPhoto degrades to no photo on any failure.
func (r *Resolver) latestPhoto(ctx context.Context, tid string) *storage.PhotoReference {
	ph, err := r.store.LatestPhoto(ctx, tid)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("photo lookup failed", zap.String("tid", tid), zap.Error(err))
		}
		return nil
	}
	return &ph
}

// Lookup fetches the product for a scanned tag, as the view workflow needs
// it. It does not touch the published search state.
func (r *Resolver) Lookup(ctx context.Context, tid string) (storage.ProductRecord, *storage.PhotoReference, error) {
	tid = strings.TrimSpace(tid)
	candidates := []string{tid}
	if canonical := identity.Normalize(tid); canonical != tid {
		candidates = append(candidates, canonical)
	}

	for _, value := range candidates {
		p, err := r.store.FindProduct(ctx, storage.FieldTID, value)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return storage.ProductRecord{}, nil, err
		}
		return p, r.latestPhoto(ctx, p.TID), nil
	}
	return storage.ProductRecord{}, nil, storage.ErrNotFound
}
