package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricalHeader(tpq uint16) Header {
	return Header{TimeFormat: MetricalTF, TicksPerQuarterNote: tpq}
}

func TestTempoMapSeed(t *testing.T) {
	m := NewTempoMap()

	require.Equal(t, 1, m.Len())
	c := m.At(0)
	assert.Equal(t, uint64(0), c.Tick)
	assert.Equal(t, uint32(defaultMicrosPerQuarter), c.MicrosPerQuarter)
	assert.InDelta(t, 120.0, c.BPM(), 1e-9)
}

func TestTempoMapAddKeepsOrder(t *testing.T) {
	m := NewTempoMap()
	m.Add(960, 400000)
	m.Add(480, 250000)

	changes := m.Changes()
	require.Len(t, changes, 3)
	assert.Equal(t, uint64(0), changes[0].Tick)
	assert.Equal(t, uint64(480), changes[1].Tick)
	assert.Equal(t, uint64(960), changes[2].Tick)
}

func TestTempoMapAddReplacesSameTick(t *testing.T) {
	m := NewTempoMap()
	m.Add(0, 400000)

	require.Equal(t, 1, m.Len())
	assert.Equal(t, uint32(400000), m.At(0).MicrosPerQuarter)
}

func TestTempoMapAt(t *testing.T) {
	m := NewTempoMap()
	m.Add(480, 250000)

	assert.Equal(t, uint32(500000), m.At(0).MicrosPerQuarter)
	assert.Equal(t, uint32(500000), m.At(479).MicrosPerQuarter)
	assert.Equal(t, uint32(250000), m.At(480).MicrosPerQuarter)
	assert.Equal(t, uint32(250000), m.At(10000).MicrosPerQuarter)
}

func TestTickClockZero(t *testing.T) {
	clock := NewTickClock(metricalHeader(480), NewTempoMap())
	assert.Equal(t, 0.0, clock.SecondsAt(0))
	assert.Equal(t, 0.0, clock.BeatsAt(0))
}

func TestTickClockConstantTempo(t *testing.T) {
	tests := []struct {
		tpq   uint16
		tempo uint32
		tick  uint64
		want  float64
	}{
		{480, 500000, 480, 0.5},
		{480, 500000, 960, 1.0},
		{96, 500000, 96, 0.5},
		{480, 250000, 480, 0.25},
		{960, 1000000, 240, 0.25},
	}
	for _, tt := range tests {
		m := NewTempoMap()
		m.Add(0, tt.tempo)
		clock := NewTickClock(metricalHeader(tt.tpq), m)

		got := clock.SecondsAt(tt.tick)
		assert.InDelta(t, tt.want, got, 1e-9, "tpq %d tempo %d tick %d", tt.tpq, tt.tempo, tt.tick)

		want := float64(tt.tick) * float64(tt.tempo) / float64(tt.tpq) / 1e6
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestTickClockMultiSegment(t *testing.T) {
	m := NewTempoMap()
	m.Add(480, 250000)
	clock := NewTickClock(metricalHeader(480), m)

	// 480 ticks at 500000 then 480 ticks at 250000.
	assert.InDelta(t, 0.5, clock.SecondsAt(480), 1e-9)
	assert.InDelta(t, 0.625, clock.SecondsAt(720), 1e-9)
	assert.InDelta(t, 0.75, clock.SecondsAt(960), 1e-9)
	assert.InDelta(t, 2.0, clock.BeatsAt(960), 1e-9)
}

func TestTickClockMonotonic(t *testing.T) {
	m := NewTempoMap()
	m.Add(100, 250000)
	m.Add(400, 800000)
	m.Add(1000, 120000)
	clock := NewTickClock(metricalHeader(480), m)

	prev := 0.0
	for tick := uint64(0); tick <= 2000; tick += 37 {
		got := clock.SecondsAt(tick)
		assert.GreaterOrEqual(t, got, prev, "tick %d", tick)
		prev = got
	}
}

func TestTickClockRewind(t *testing.T) {
	m := NewTempoMap()
	m.Add(480, 250000)
	clock := NewTickClock(metricalHeader(480), m)

	forward := clock.SecondsAt(960)
	assert.InDelta(t, 0.5, clock.SecondsAt(480), 1e-9)
	assert.InDelta(t, forward, clock.SecondsAt(960), 1e-9)
}

func TestTickClockTracksMapEdits(t *testing.T) {
	m := NewTempoMap()
	clock := NewTickClock(metricalHeader(480), m)

	assert.InDelta(t, 1.0, clock.SecondsAt(960), 1e-9)

	m.Add(480, 250000)
	assert.InDelta(t, 0.75, clock.SecondsAt(960), 1e-9)
}

func TestTickClockSMPTE(t *testing.T) {
	h := Header{TimeFormat: TimeCodeTF, FramesPerSecond: 25, TicksPerFrame: 40}
	m := NewTempoMap()
	m.Add(0, 250000) // must not affect time code files
	clock := NewTickClock(h, m)

	assert.InDelta(t, 1.0, clock.SecondsAt(1000), 1e-9)
	assert.InDelta(t, 0.5, clock.SecondsAt(500), 1e-9)
	assert.Equal(t, 0.0, clock.BeatsAt(1000))
}

func TestTimeSignatureMapDefault(t *testing.T) {
	var m TimeSignatureMap

	ts := m.At(0)
	assert.Equal(t, uint8(4), ts.Numerator)
	assert.Equal(t, uint16(4), ts.Denominator)
}

func TestTimeSignatureMapAt(t *testing.T) {
	var m TimeSignatureMap
	m.Add(TimeSignatureChange{Tick: 960, Numerator: 3, Denominator: 4})

	assert.Equal(t, uint8(4), m.At(0).Numerator)
	assert.Equal(t, uint8(3), m.At(960).Numerator)
	assert.Equal(t, uint8(3), m.At(5000).Numerator)
}

func TestFileSecondsAtMatchesClock(t *testing.T) {
	var tb trackBuilder
	tb.meta(0, metaTempo, tempo500000...)
	tb.meta(480, metaTempo, 0x03, 0xD0, 0x90) // 250000
	tb.event(0, 0x90, 60, 100)
	tb.event(480, 0x80, 60, 0)
	tb.endOfTrack()

	f, err := Decode(smfFile(0, 1, 480, mtrk(tb.buf)))
	require.NoError(t, err)

	clock := NewTickClock(f.Header, f.TempoMap)
	for tick := uint64(0); tick <= 1920; tick += 120 {
		assert.InDelta(t, clock.SecondsAt(tick), f.SecondsAt(tick), 1e-9, "tick %d", tick)
	}
	assert.InDelta(t, 0.75, f.SecondsAt(960), 1e-9)
	assert.InDelta(t, 2.0, f.BeatsAt(960), 1e-9)
}
