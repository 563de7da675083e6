// Package queue holds batches of uploaded files and drives each entry
// through the conversion endpoint, tracking per-entry status.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for ids that do not name a live entry.
	ErrNotFound = errors.New("entry not found")
	// ErrBusy is returned when a conversion for the entry is already running.
	ErrBusy = errors.New("entry is already converting")
	// ErrNotConverted is returned when downloading an entry without a result.
	ErrNotConverted = errors.New("entry has not been converted")
	// ErrClosed is returned by a batch after Close.
	ErrClosed = errors.New("batch is closed")
)

// Converter is the conversion endpoint contract: one payload in, one out.
type Converter interface {
	Convert(ctx context.Context, name string, data []byte, opts convert.Options) (*convert.Result, error)
}

// Previewer issues and revokes preview handles for uploaded content.
type Previewer interface {
	CreatePreview(name string, data []byte) (string, error)
	ReleasePreview(id string) error
}

// Summary aggregates one ConvertAll run.
type Summary struct {
	Total     int `json:"total"`
	Converted int `json:"converted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Settings are the conversion parameters shared by every entry of a batch.
type Settings struct {
	Format  models.Format `json:"format" msgpack:"format"`
	Quality int           `json:"quality,omitempty" msgpack:"quality,omitempty"`
	Width   int           `json:"width,omitempty" msgpack:"width,omitempty"`
	Height  int           `json:"height,omitempty" msgpack:"height,omitempty"`
	Sizes   []int         `json:"sizes,omitempty" msgpack:"sizes,omitempty"`
}

func (s Settings) options() convert.Options {
	return convert.Options{
		Format:  s.Format,
		Quality: s.Quality,
		Width:   s.Width,
		Height:  s.Height,
		Sizes:   s.Sizes,
	}
}

// Batch is an ordered set of entries. Entries for different ids may convert
// concurrently; the batch lock is never held across a converter call.
type Batch struct {
	ID       string    `json:"id"`
	Settings Settings  `json:"settings"`
	Created  time.Time `json:"createdAt"`

	mu        sync.RWMutex
	entries   map[string]*models.Entry
	order     []string
	closed    bool
	running   bool // a ConvertAll loop is active
	converter Converter
	previews  Previewer
	notifier  Notifier
}

// NewBatch creates an empty batch. previews and notifier may be nil.
func NewBatch(id string, settings Settings, converter Converter, previews Previewer, notifier Notifier) *Batch {
	if settings.Format == "" {
		settings.Format = models.DefaultFormat
	}
	return &Batch{
		ID:        id,
		Settings:  settings,
		Created:   time.Now(),
		entries:   make(map[string]*models.Entry),
		converter: converter,
		previews:  previews,
		notifier:  notifier,
	}
}

// Enqueue appends one pending entry per upload, in order, and returns the
// created entries.
func (b *Batch) Enqueue(uploads []models.Upload) ([]models.Entry, error) {
	created := make([]*models.Entry, 0, len(uploads))
	for _, u := range uploads {
		e := &models.Entry{
			ID:          uuid.New().String(),
			Name:        u.Name,
			ContentType: u.ContentType,
			Size:        int64(len(u.Data)),
			Format:      b.Settings.Format,
			Status:      models.EntryStatusPending,
			CreatedAt:   time.Now(),
			Source:      u.Data,
		}
		if b.previews != nil {
			previewID, err := b.previews.CreatePreview(u.Name, u.Data)
			if err != nil {
				fmt.Printf("[Batch %s] Warning: no preview for %s: %v\n", shortID(b.ID), u.Name, err)
			}
			e.PreviewID = previewID
		}
		created = append(created, e)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.releasePreviews(created)
		return nil, ErrClosed
	}
	for _, e := range created {
		b.entries[e.ID] = e
		b.order = append(b.order, e.ID)
	}
	snapshots := make([]models.Entry, len(created))
	events := make([]Event, len(created))
	for i, e := range created {
		snapshots[i] = *e
		events[i] = entryEvent(EventEntryAdded, b.ID, e, "")
	}
	b.mu.Unlock()

	for _, ev := range events {
		b.notify(ev)
	}
	return snapshots, nil
}

// ConvertOne converts a single entry. Converted entries are left untouched
// and nil is returned; an entry that is already converting yields ErrBusy.
// A conversion failure marks the entry failed and is returned wrapped.
func (b *Batch) ConvertOne(ctx context.Context, id string) error {
	b.mu.Lock()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	switch e.Status {
	case models.EntryStatusConverted:
		b.mu.Unlock()
		return nil
	case models.EntryStatusConverting:
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	e.Status = models.EntryStatusConverting
	e.Progress = 0
	e.Error = ""
	name, source := e.Name, e.Source
	started := entryEvent(EventEntryConverting, b.ID, e, "")
	b.mu.Unlock()

	b.notify(started)

	result, convErr := b.runConverter(ctx, name, source)

	b.mu.Lock()
	current, live := b.entries[id]
	if !live || current != e {
		b.mu.Unlock()
		// Removed while converting: the result has nowhere to go.
		fmt.Printf("[Batch %s] Discarding result for removed entry %s\n", shortID(b.ID), shortID(id))
		return nil
	}
	now := time.Now()
	e.CompletedAt = &now
	var done Event
	if convErr != nil {
		e.Status = models.EntryStatusFailed
		e.Progress = 0
		e.Error = convErr.Error()
		done = entryEvent(EventEntryFailed, b.ID, e, fmt.Sprintf("Conversion of %s failed: %v", name, convErr))
	} else {
		e.Status = models.EntryStatusConverted
		e.Progress = 100
		e.Result = result.Data
		e.ResultContentType = result.ContentType
		e.ResultSize = int64(len(result.Data))
		done = entryEvent(EventEntryConverted, b.ID, e, fmt.Sprintf("Image converted to %s", e.Format))
	}
	b.mu.Unlock()

	b.notify(done)
	if convErr != nil {
		return fmt.Errorf("converting %s: %w", name, convErr)
	}
	return nil
}

// runConverter calls the endpoint, turning a panic into an ordinary failure.
func (b *Batch) runConverter(ctx context.Context, name string, source []byte) (result *convert.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Batch %s] PANIC recovered converting %s: %v\n", shortID(b.ID), name, r)
			result, err = nil, fmt.Errorf("%w: converter panicked: %v", convert.ErrProcessing, r)
		}
	}()

	result, err = b.converter.Convert(ctx, name, source, b.Settings.options())
	if err == nil && result == nil {
		err = fmt.Errorf("%w: converter returned no result", convert.ErrProcessing)
	}
	return result, err
}

// ConvertAll converts every entry that is not yet converted, one at a time
// in insertion order. Failures do not stop the loop; only ctx does.
func (b *Batch) ConvertAll(ctx context.Context) (Summary, error) {
	ids, err := b.claimRun()
	if err != nil {
		return Summary{}, err
	}
	return b.runAll(ctx, ids)
}

// StartConvertAll claims the batch for a ConvertAll run and performs it in
// the background. ErrBusy and ErrClosed are returned synchronously; done,
// if non-nil, receives the outcome of the run.
func (b *Batch) StartConvertAll(ctx context.Context, done func(Summary, error)) error {
	ids, err := b.claimRun()
	if err != nil {
		return err
	}
	go func() {
		sum, err := b.runAll(ctx, ids)
		if done != nil {
			done(sum, err)
		}
	}()
	return nil
}

// claimRun sets the running flag and snapshots the entry order.
func (b *Batch) claimRun() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.running {
		return nil, ErrBusy
	}
	b.running = true
	return append([]string(nil), b.order...), nil
}

func (b *Batch) runAll(ctx context.Context, ids []string) (Summary, error) {
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	var sum Summary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		status, ok := b.status(id)
		if !ok {
			continue // removed since the snapshot
		}
		sum.Total++
		if !status.CanStart() {
			sum.Skipped++
			continue
		}

		err := b.ConvertOne(ctx, id)
		switch {
		case errors.Is(err, ErrBusy):
			sum.Skipped++
		case err != nil:
			sum.Failed++
		default:
			if s, ok := b.status(id); ok && s == models.EntryStatusConverted {
				sum.Converted++
			} else {
				sum.Skipped++
			}
		}
	}

	s := sum
	b.notify(Event{
		Type:      EventBatchSummary,
		BatchID:   b.ID,
		Summary:   &s,
		Message:   fmt.Sprintf("%d of %d converted, %d failed", sum.Converted, sum.Total, sum.Failed),
		Timestamp: time.Now().UnixMilli(),
	})
	fmt.Printf("[Batch %s] Convert all finished: %d converted, %d failed, %d skipped\n",
		shortID(b.ID), sum.Converted, sum.Failed, sum.Skipped)
	return sum, nil
}

// Remove drops an entry and releases its preview. An in-flight conversion
// for the entry finishes in the background and its result is discarded.
func (b *Batch) Remove(id string) error {
	b.mu.Lock()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(b.entries, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	removed := entryEvent(EventEntryRemoved, b.ID, e, "")
	b.mu.Unlock()

	b.releasePreviews([]*models.Entry{e})
	b.notify(removed)
	return nil
}

// DownloadOne returns the converted bytes of an entry.
func (b *Batch) DownloadOne(id string) (*models.Download, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Status != models.EntryStatusConverted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConverted, id, e.Status)
	}
	return downloadOf(e), nil
}

// DownloadAll returns every converted entry in insertion order, silently
// skipping the rest.
func (b *Batch) DownloadAll() []models.Download {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.Download
	for _, id := range b.order {
		if e := b.entries[id]; e.Status == models.EntryStatusConverted {
			out = append(out, *downloadOf(e))
		}
	}
	return out
}

func downloadOf(e *models.Entry) *models.Download {
	ct := e.ResultContentType
	if ct == "" {
		ct = e.Format.ContentType()
	}
	return &models.Download{
		EntryID:     e.ID,
		Filename:    e.OutputName(),
		ContentType: ct,
		Data:        e.Result,
	}
}

// Get returns a snapshot of one entry.
func (b *Batch) Get(id string) (models.Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return models.Entry{}, false
	}
	return *e, true
}

// Preview returns the preview handle of an entry. The handle is empty when
// no preview could be stored.
func (b *Batch) Preview(id string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.PreviewID, nil
}

// Entries returns snapshots of all entries in insertion order.
func (b *Batch) Entries() []models.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.entries[id])
	}
	return out
}

// Len returns the number of live entries.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Running reports whether a ConvertAll loop is active.
func (b *Batch) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Close tears the batch down: every entry is dropped and its preview
// released. Conversions still in flight are discarded on arrival.
func (b *Batch) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	released := make([]*models.Entry, 0, len(b.order))
	for _, id := range b.order {
		released = append(released, b.entries[id])
	}
	b.entries = make(map[string]*models.Entry)
	b.order = nil
	b.mu.Unlock()

	b.releasePreviews(released)
}

func (b *Batch) status(id string) (models.EntryStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return "", false
	}
	return e.Status, true
}

func (b *Batch) releasePreviews(entries []*models.Entry) {
	if b.previews == nil {
		return
	}
	for _, e := range entries {
		if e.PreviewID == "" {
			continue
		}
		if err := b.previews.ReleasePreview(e.PreviewID); err != nil {
			fmt.Printf("[Batch %s] Warning: failed to release preview %s: %v\n", shortID(b.ID), e.PreviewID, err)
		}
	}
}

func (b *Batch) notify(e Event) {
	if b.notifier != nil {
		b.notifier.Notify(e)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
