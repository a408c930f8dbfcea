package midi

import (
	"encoding/json"
	"sort"
)

const microsPerMinute = 60000000

// TempoChange is one tempo meta event fixed at an absolute tick.
// Seconds is filled in after the whole file is decoded.
type TempoChange struct {
	Tick             uint64  `json:"tick"`
	Seconds          float64 `json:"seconds"`
	MicrosPerQuarter uint32  `json:"microsPerQuarter"`
}

// BPM returns the tempo in beats per minute.
func (t TempoChange) BPM() float64 {
	return microsPerMinute / float64(t.MicrosPerQuarter)
}

// TempoMap is the ascending by tick sequence of tempo changes in a
// file. It always carries an entry at tick zero: when a file does not
// set an initial tempo, the default of 500000 microseconds per quarter
// note (120 BPM) fills in.
type TempoMap struct {
	changes []TempoChange
	gen     uint64
}

func NewTempoMap() *TempoMap {
	return &TempoMap{
		changes: []TempoChange{{Tick: 0, MicrosPerQuarter: defaultMicrosPerQuarter}},
	}
}

// Add records a tempo change, keeping the sequence ordered by tick. A
// change at an already known tick replaces the earlier value.
func (m *TempoMap) Add(tick uint64, microsPerQuarter uint32) {
	m.gen++
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Tick >= tick })
	if i < len(m.changes) && m.changes[i].Tick == tick {
		m.changes[i].MicrosPerQuarter = microsPerQuarter
		return
	}
	m.changes = append(m.changes, TempoChange{})
	copy(m.changes[i+1:], m.changes[i:])
	m.changes[i] = TempoChange{Tick: tick, MicrosPerQuarter: microsPerQuarter}
}

// At returns the change in effect at tick.
func (m *TempoMap) At(tick uint64) TempoChange {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Tick > tick })
	return m.changes[i-1]
}

// Changes returns the ordered change sequence, including the implicit
// initial default when the file set none.
func (m *TempoMap) Changes() []TempoChange {
	return m.changes
}

func (m *TempoMap) Len() int { return len(m.changes) }

func (m *TempoMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.changes)
}

// TimeSignatureChange is one time signature meta event. Seconds is
// filled in after the whole file is decoded.
type TimeSignatureChange struct {
	Tick                    uint64  `json:"tick"`
	Seconds                 float64 `json:"seconds"`
	Numerator               uint8   `json:"numerator"`
	Denominator             uint16  `json:"denominator"`
	MetronomeClocks         uint8   `json:"metronomeClocks"`
	ThirtySecondsPerQuarter uint8   `json:"thirtySecondsPerQuarter"`
}

// defaultTimeSignature is the 4/4 assumed before any change is seen.
var defaultTimeSignature = TimeSignatureChange{
	Numerator:               4,
	Denominator:             4,
	MetronomeClocks:         24,
	ThirtySecondsPerQuarter: 8,
}

// TimeSignatureMap is the ascending by tick sequence of time signature
// changes in a file.
type TimeSignatureMap struct {
	changes []TimeSignatureChange
}

func NewTimeSignatureMap() *TimeSignatureMap {
	return &TimeSignatureMap{}
}

// Add records a change, keeping the sequence ordered by tick. A change
// at an already known tick replaces the earlier value.
func (m *TimeSignatureMap) Add(c TimeSignatureChange) {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Tick >= c.Tick })
	if i < len(m.changes) && m.changes[i].Tick == c.Tick {
		m.changes[i] = c
		return
	}
	m.changes = append(m.changes, TimeSignatureChange{})
	copy(m.changes[i+1:], m.changes[i:])
	m.changes[i] = c
}

// At returns the signature in effect at tick, 4/4 before any change.
func (m *TimeSignatureMap) At(tick uint64) TimeSignatureChange {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Tick > tick })
	if i == 0 {
		return defaultTimeSignature
	}
	return m.changes[i-1]
}

func (m *TimeSignatureMap) Changes() []TimeSignatureChange { return m.changes }

func (m *TimeSignatureMap) Len() int { return len(m.changes) }

func (m *TimeSignatureMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.changes)
}

// TickClock converts tick positions into elapsed seconds by integrating
// the piecewise constant tempo function of a TempoMap. Repeated calls
// with non decreasing ticks resolve in amortized constant time; a lower
// tick or a tempo map edit restarts the integration from tick zero.
// Not safe for concurrent use.
type TickClock struct {
	tempo           *TempoMap
	ticksPerQuarter float64 // metrical timing
	ticksPerSecond  float64 // SMPTE timing

	gen     uint64  // tempo map generation the cache was built against
	idx     int     // tempo change in effect at pos
	pos     uint64  // tick position integrated so far
	elapsed float64 // seconds at pos
}

func NewTickClock(h Header, tempo *TempoMap) *TickClock {
	c := &TickClock{tempo: tempo}
	if h.TimeFormat == TimeCodeTF {
		c.ticksPerSecond = float64(h.FramesPerSecond) * float64(h.TicksPerFrame)
	} else {
		c.ticksPerQuarter = float64(h.TicksPerQuarterNote)
	}
	return c
}

// SecondsAt returns the elapsed seconds at the given tick position.
func (c *TickClock) SecondsAt(tick uint64) float64 {
	if c.ticksPerSecond > 0 {
		// SMPTE timing is fixed per tick and ignores tempo.
		return float64(tick) / c.ticksPerSecond
	}

	if c.gen != c.tempo.gen || tick < c.pos {
		c.idx, c.pos, c.elapsed = 0, 0, 0
		c.gen = c.tempo.gen
	}

	changes := c.tempo.changes
	for c.idx+1 < len(changes) && changes[c.idx+1].Tick <= tick {
		next := changes[c.idx+1].Tick
		c.elapsed += c.interval(changes[c.idx].MicrosPerQuarter, next-c.pos)
		c.pos = next
		c.idx++
	}
	c.elapsed += c.interval(changes[c.idx].MicrosPerQuarter, tick-c.pos)
	c.pos = tick
	return c.elapsed
}

// BeatsAt returns the elapsed quarter notes at the given tick position,
// or zero under SMPTE timing where beats are undefined.
func (c *TickClock) BeatsAt(tick uint64) float64 {
	if c.ticksPerSecond > 0 {
		return 0
	}
	return float64(tick) / c.ticksPerQuarter
}

func (c *TickClock) interval(microsPerQuarter uint32, ticks uint64) float64 {
	return float64(microsPerQuarter) * float64(ticks) / c.ticksPerQuarter / 1e6
}
