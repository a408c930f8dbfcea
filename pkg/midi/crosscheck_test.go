package midi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Decode a file produced by an independent writer instead of the hand
// assembled fixtures the other tests use.
func TestDecodeGomidiFile(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("Keys"))
	tr.Add(0, smf.MetaMeter(3, 4))
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, gomidi.NoteOn(2, 60, 100))
	tr.Add(480, gomidi.NoteOff(2, 60))
	tr.Add(0, gomidi.NoteOn(2, 64, 80))
	tr.Add(240, gomidi.NoteOff(2, 64))
	tr.Close(0)
	require.NoError(t, sm.Add(tr))

	var buf bytes.Buffer
	_, err := sm.WriteTo(&buf)
	require.NoError(t, err)

	f, err := Decode(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, MetricalTF, f.Header.TimeFormat)
	assert.Equal(t, uint16(480), f.Header.TicksPerQuarterNote)

	require.Len(t, f.Tracks, 1)
	assert.Equal(t, "Keys", f.Tracks[0].Name)

	require.Equal(t, 1, f.TempoMap.Len())
	assert.Equal(t, uint32(500000), f.TempoMap.At(0).MicrosPerQuarter)

	require.Equal(t, 1, f.TimeSignatures.Len())
	assert.Equal(t, uint8(3), f.TimeSignatures.At(0).Numerator)
	assert.Equal(t, uint16(4), f.TimeSignatures.At(0).Denominator)

	notes := f.ResolvedNotes()
	require.Len(t, notes, 2)

	assert.Equal(t, uint8(60), notes[0].Pitch)
	assert.Equal(t, uint8(100), notes[0].Velocity)
	assert.InDelta(t, 0.0, notes[0].Seconds, 1e-9)
	assert.InDelta(t, 0.5, notes[0].Duration, 1e-9)

	assert.Equal(t, uint8(64), notes[1].Pitch)
	assert.InDelta(t, 0.5, notes[1].Seconds, 1e-9)
	assert.InDelta(t, 0.25, notes[1].Duration, 1e-9)

	// Both writers place the notes on wire channel two.
	for _, n := range notes {
		assert.Equal(t, 2, n.Channel%16)
	}
}

func TestDecodeGomidiMultiTrack(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(96)

	var lead smf.Track
	lead.Add(0, smf.MetaTempo(100))
	lead.Add(0, gomidi.NoteOn(0, 72, 110))
	lead.Add(96, gomidi.NoteOff(0, 72))
	lead.Close(0)
	require.NoError(t, sm.Add(lead))

	var bass smf.Track
	bass.Add(48, gomidi.NoteOn(1, 36, 90))
	bass.Add(96, gomidi.NoteOff(1, 36))
	bass.Close(0)
	require.NoError(t, sm.Add(bass))

	var buf bytes.Buffer
	_, err := sm.WriteTo(&buf)
	require.NoError(t, err)

	f, err := Decode(buf.Bytes())
	require.NoError(t, err)

	require.Len(t, f.Tracks, 2)

	notes := f.ResolvedNotes()
	require.Len(t, notes, 2)

	// 100 BPM puts a quarter note at 0.6 seconds.
	assert.Equal(t, uint8(72), notes[0].Pitch)
	assert.InDelta(t, 0.6, notes[0].Duration, 1e-9)

	assert.Equal(t, uint8(36), notes[1].Pitch)
	assert.InDelta(t, 0.3, notes[1].Seconds, 1e-9)
	assert.InDelta(t, 0.6, notes[1].Duration, 1e-9)
}
