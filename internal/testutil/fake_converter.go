package testutil

import (
	"context"
	"sync"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
)

// FakeConverter is a programmable conversion endpoint. Results are the
// input prefixed with "converted:". Calls can be held on Gate and observed
// on Started.
type FakeConverter struct {
	// Gate, when set, blocks every call until a value is received or the
	// channel is closed.
	Gate chan struct{}
	// Started, when set, receives the entry name as each call begins.
	Started chan string

	mu          sync.Mutex
	failures    map[string]error
	panics      map[string]bool
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

// NewFakeConverter returns a converter that always succeeds.
func NewFakeConverter() *FakeConverter {
	return &FakeConverter{
		failures: make(map[string]error),
		panics:   make(map[string]bool),
		calls:    make(map[string]int),
	}
}

// FailOn makes conversions of name return err.
func (f *FakeConverter) FailOn(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = err
}

// PanicOn makes conversions of name panic.
func (f *FakeConverter) PanicOn(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[name] = true
}

// Heal clears every configured failure.
func (f *FakeConverter) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
	f.panics = make(map[string]bool)
}

func (f *FakeConverter) Convert(ctx context.Context, name string, data []byte, opts convert.Options) (*convert.Result, error) {
	f.mu.Lock()
	f.calls[name]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	failure := f.failures[name]
	shouldPanic := f.panics[name]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Started != nil {
		f.Started <- name
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if shouldPanic {
		panic("fake converter panic for " + name)
	}
	if failure != nil {
		return nil, failure
	}

	format := opts.Format
	if format == "" {
		format = models.DefaultFormat
	}
	out := append([]byte("converted:"), data...)
	return &convert.Result{
		Data:        out,
		ContentType: format.ContentType(),
		Filename:    models.ReplaceExtension(name, format.Extension()),
	}, nil
}

// Calls returns how often name was converted.
func (f *FakeConverter) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls returns the number of conversions across all names.
func (f *FakeConverter) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxInFlight reports the highest number of overlapping calls observed.
func (f *FakeConverter) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}
