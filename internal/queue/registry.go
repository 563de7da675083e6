package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devtoolbox/backend/internal/models"
	"github.com/google/uuid"
)

// ErrTooManyBatches is returned by Create when the registry is full.
var ErrTooManyBatches = errors.New("too many active batches")

// NotifierFactory builds the notifier for a newly created batch.
type NotifierFactory func(batchID string) Notifier

// Registry tracks live batches by id.
type Registry struct {
	mu         sync.RWMutex
	batches    map[string]*registered
	converter  Converter
	previews   Previewer
	notifiers  NotifierFactory
	onClose    func(batchID string)
	defaults   Settings
	maxBatches int
}

type registered struct {
	batch      *Batch
	lastAccess time.Time
}

// BatchInfo is the listing view of a batch.
type BatchInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Settings   Settings  `json:"settings" msgpack:"settings"`
	Entries    int       `json:"entries" msgpack:"entries"`
	Running    bool      `json:"running" msgpack:"running"`
	CreatedAt  time.Time `json:"createdAt" msgpack:"createdAt"`
	LastAccess time.Time `json:"lastAccess" msgpack:"lastAccess"`
}

// NewRegistry creates a registry. maxBatches <= 0 means unlimited.
func NewRegistry(converter Converter, previews Previewer, defaults Settings, maxBatches int) *Registry {
	if defaults.Format == "" {
		defaults.Format = models.DefaultFormat
	}
	return &Registry{
		batches:    make(map[string]*registered),
		converter:  converter,
		previews:   previews,
		defaults:   defaults,
		maxBatches: maxBatches,
	}
}

// SetCloseHook installs f to run after a batch is closed by Delete,
// CleanupIdle or CloseAll.
func (r *Registry) SetCloseHook(f func(batchID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = f
}

func (r *Registry) closeBatch(b *Batch) {
	b.Close()
	r.mu.RLock()
	hook := r.onClose
	r.mu.RUnlock()
	if hook != nil {
		hook(b.ID)
	}
}

// SetNotifierFactory installs the notifier builder used for new batches.
func (r *Registry) SetNotifierFactory(f NotifierFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers = f
}

// Defaults returns the settings applied to batches created without overrides.
func (r *Registry) Defaults() Settings {
	return r.defaults
}

// Create registers a new batch. Zero fields in settings take the registry
// defaults.
func (r *Registry) Create(settings Settings) (*Batch, error) {
	if settings.Format == "" {
		settings.Format = r.defaults.Format
	}
	if settings.Quality == 0 {
		settings.Quality = r.defaults.Quality
	}
	if len(settings.Sizes) == 0 {
		settings.Sizes = r.defaults.Sizes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxBatches > 0 && len(r.batches) >= r.maxBatches {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyBatches, r.maxBatches)
	}

	id := uuid.New().String()
	var notifier Notifier
	if r.notifiers != nil {
		notifier = r.notifiers(id)
	}
	b := NewBatch(id, settings, r.converter, r.previews, notifier)
	r.batches[id] = &registered{batch: b, lastAccess: time.Now()}
	fmt.Printf("[Registry] Created batch %s (format %s)\n", shortID(id), settings.Format)
	return b, nil
}

// Get returns the batch and marks it as recently used.
func (r *Registry) Get(id string) (*Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.batches[id]
	if !ok {
		return nil, false
	}
	reg.lastAccess = time.Now()
	return reg.batch, true
}

// Delete closes the batch and forgets it.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	reg, ok := r.batches[id]
	if ok {
		delete(r.batches, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.closeBatch(reg.batch)
	fmt.Printf("[Registry] Deleted batch %s\n", shortID(id))
	return true
}

// List returns every batch, oldest first.
func (r *Registry) List() []BatchInfo {
	r.mu.RLock()
	out := make([]BatchInfo, 0, len(r.batches))
	for _, reg := range r.batches {
		out = append(out, BatchInfo{
			ID:         reg.batch.ID,
			Settings:   reg.batch.Settings,
			CreatedAt:  reg.batch.Created,
			LastAccess: reg.lastAccess,
		})
	}
	r.mu.RUnlock()

	// Batch locks are taken after releasing the registry lock.
	for i := range out {
		if b, ok := r.peek(out[i].ID); ok {
			out[i].Entries = b.Len()
			out[i].Running = b.Running()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) peek(id string) (*Batch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.batches[id]
	if !ok {
		return nil, false
	}
	return reg.batch, true
}

// CleanupIdle closes batches not accessed within maxAge. Batches with a
// ConvertAll loop in progress are kept. It returns the number removed.
func (r *Registry) CleanupIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var stale []*Batch
	for id, reg := range r.batches {
		if reg.lastAccess.Before(cutoff) && !reg.batch.Running() {
			stale = append(stale, reg.batch)
			delete(r.batches, id)
		}
	}
	r.mu.Unlock()

	for _, b := range stale {
		r.closeBatch(b)
		fmt.Printf("[Registry] Cleaned up idle batch %s\n", shortID(b.ID))
	}
	return len(stale)
}

// Len returns the number of live batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}

// MaxBatches returns the configured cap (0 for unlimited).
func (r *Registry) MaxBatches() int {
	return r.maxBatches
}

// CloseAll tears down every batch; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	batches := r.batches
	r.batches = make(map[string]*registered)
	r.mu.Unlock()

	for _, reg := range batches {
		r.closeBatch(reg.batch)
	}
}
