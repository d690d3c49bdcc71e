package logic

// DefaultWindowSamples is the number of samples aggregated per window.
// At the default 100ms sampling period one window spans five seconds.
const DefaultWindowSamples = 50

// Sampler accumulates boolean lamp samples into fixed-size windows,
// counting illuminated samples and dark-to-illuminated edges. The previous
// sample carries across window boundaries so an edge landing exactly on a
// boundary is counted once, in the window it begins.
type Sampler struct {
	windowSamples int
	count         int
	illuminated   int
	edges         int
	last          bool
}

// NewSampler creates a Sampler that completes a window every windowSamples
// samples. Non-positive values fall back to DefaultWindowSamples. The line
// is assumed dark before the first sample.
func NewSampler(windowSamples int) *Sampler {
	if windowSamples <= 0 {
		windowSamples = DefaultWindowSamples
	}
	return &Sampler{windowSamples: windowSamples}
}

// WindowSamples returns the number of samples per window.
func (s *Sampler) WindowSamples() int {
	return s.windowSamples
}

// Add records one sample. When the sample completes a window, Add returns
// that window's stats and true, and the counters reset for the next window.
func (s *Sampler) Add(on bool) (WindowStats, bool) {
	if on {
		s.illuminated++
		if !s.last {
			s.edges++
		}
	}
	s.last = on
	s.count++
	if s.count < s.windowSamples {
		return WindowStats{}, false
	}
	stats := WindowStats{Illuminated: s.illuminated, Edges: s.edges}
	s.count = 0
	s.illuminated = 0
	s.edges = 0
	return stats, true
}
