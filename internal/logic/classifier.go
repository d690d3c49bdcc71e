package logic

// Band is an inclusive range of per-window counts.
type Band struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether n falls within the band.
func (b Band) Contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

// Signature describes the lamp pattern of one gate state over a window:
// how many samples are illuminated (duty) and how many rising edges occur
// (flash frequency, since one flash produces one edge per cycle).
type Signature struct {
	State       GateState `json:"state"`
	Illuminated Band      `json:"illuminated"`
	Edges       Band      `json:"edges"`
}

// DefaultSignatures returns the pattern table for a 50-sample window.
// Closed: lamp dark. Opening: one long slow pulse. Open: lamp solid.
// NoMains: 2Hz flash at half duty. BatteryLow: 3Hz flash at half duty.
// Edge bands allow roughly 20% slack because flash oscillators are not
// crystal-exact and 10Hz sampling quantizes the counts. NoMains and
// BatteryLow deliberately share the 12-edge boundary; a window landing
// exactly there matches both and therefore classifies as Unknown.
func DefaultSignatures() []Signature {
	return []Signature{
		{State: StateClosed, Illuminated: Band{Min: 0, Max: 2}, Edges: Band{Min: 0, Max: 1}},
		{State: StateOpening, Illuminated: Band{Min: 5, Max: 45}, Edges: Band{Min: 1, Max: 2}},
		{State: StateOpen, Illuminated: Band{Min: 48, Max: 50}, Edges: Band{Min: 0, Max: 1}},
		{State: StateNoMains, Illuminated: Band{Min: 20, Max: 30}, Edges: Band{Min: 8, Max: 12}},
		{State: StateBatteryLow, Illuminated: Band{Min: 20, Max: 30}, Edges: Band{Min: 12, Max: 18}},
	}
}

// Classifier maps window statistics onto gate states by signature matching.
// It is pure: no cross-window memory, total over all WindowStats values.
type Classifier struct {
	signatures []Signature
}

// NewClassifier creates a classifier from the given signature table.
// An empty table falls back to DefaultSignatures.
func NewClassifier(signatures []Signature) *Classifier {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Classifier{signatures: signatures}
}

// Classify returns the state whose signature uniquely matches stats.
// A window matching no signature, or more than one, is Unknown: an
// ambiguous pattern may be a mid-window transition artifact, and the
// system must never guess between adjacent flash rates.
func (c *Classifier) Classify(stats WindowStats) GateState {
	matched := StateUnknown
	matches := 0
	for _, sig := range c.signatures {
		if sig.Illuminated.Contains(stats.Illuminated) && sig.Edges.Contains(stats.Edges) {
			matched = sig.State
			matches++
		}
	}
	if matches != 1 {
		return StateUnknown
	}
	return matched
}
