package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted lamp samples.
type FakeReader struct {
	// Samples contains scripted lamp states to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLED records indicator levels for assertions. It is safe for
// concurrent use because the indicator driver runs on its own goroutine.
type FakeLED struct {
	mu sync.Mutex

	// levels records every value passed to Set, in order.
	levels []bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeLED creates an indicator test double.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the indicator level.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels = append(f.levels, on)
	return nil
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Levels returns a copy of every recorded level.
func (f *FakeLED) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.levels))
	copy(out, f.levels)
	return out
}

// Level returns the most recent level, or false if Set was never called.
func (f *FakeLED) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}
