package midi

import "sort"

// File is the decoded form of one Standard MIDI File. A File is self
// contained: nothing in it aliases the input bytes or any other decode
// result.
type File struct {
	Header         Header            `json:"header"`
	Tracks         []*Track          `json:"tracks"`
	Notes          []*NoteEvent      `json:"notes"`
	TempoMap       *TempoMap         `json:"tempoMap"`
	TimeSignatures *TimeSignatureMap `json:"timeSignatures"`
}

func newFile(h Header) *File {
	return &File{
		Header:         h,
		TempoMap:       NewTempoMap(),
		TimeSignatures: NewTimeSignatureMap(),
	}
}

// finalize computes the post decode views: the seconds position of
// every tempo and time signature change, and the global chronological
// note order. Ties keep track order.
func (f *File) finalize(clock *TickClock) {
	for i := range f.TempoMap.changes {
		f.TempoMap.changes[i].Seconds = clock.SecondsAt(f.TempoMap.changes[i].Tick)
	}
	for i := range f.TimeSignatures.changes {
		f.TimeSignatures.changes[i].Seconds = clock.SecondsAt(f.TimeSignatures.changes[i].Tick)
	}
	sort.SliceStable(f.Notes, func(i, j int) bool {
		return f.Notes[i].Seconds < f.Notes[j].Seconds
	})
}

// SecondsAt converts any tick position into elapsed seconds. Unlike a
// TickClock it is stateless and safe for concurrent readers.
func (f *File) SecondsAt(tick uint64) float64 {
	if f.Header.TimeFormat == TimeCodeTF {
		return float64(tick) / (float64(f.Header.FramesPerSecond) * float64(f.Header.TicksPerFrame))
	}
	c := f.TempoMap.At(tick)
	return c.Seconds + float64(c.MicrosPerQuarter)*float64(tick-c.Tick)/float64(f.Header.TicksPerQuarterNote)/1e6
}

// BeatsAt converts a tick position into elapsed quarter notes, zero
// under SMPTE timing.
func (f *File) BeatsAt(tick uint64) float64 {
	if f.Header.TimeFormat == TimeCodeTF {
		return 0
	}
	return float64(tick) / float64(f.Header.TicksPerQuarterNote)
}

// ResolvedNotes returns the notes that sound: note ons whose terminator
// was found. Hanging notes and the terminator markers themselves are
// filtered out.
func (f *File) ResolvedNotes() []*NoteEvent {
	out := make([]*NoteEvent, 0, len(f.Notes)/2)
	for _, n := range f.Notes {
		if n.Velocity > 0 && n.Resolved {
			out = append(out, n)
		}
	}
	return out
}

// Duration returns the elapsed seconds when the last note stops
// sounding.
func (f *File) Duration() float64 {
	var max float64
	for _, n := range f.Notes {
		end := n.Seconds
		if n.Resolved {
			end += n.Duration
		}
		if end > max {
			max = end
		}
	}
	return max
}

// BpmMap builds the simplified tempo timeline with the given minimum
// BPM change and the rounding precision derived from it. See
// BuildBpmMap.
func (f *File) BpmMap(threshold float64) []BpmMapEntry {
	return BuildBpmMap(f.TempoMap, BpmMapOptions{Threshold: threshold, Precision: -1})
}
