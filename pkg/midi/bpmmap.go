package midi

import (
	"math"
	"strconv"
	"strings"
)

// BpmMapEntry is one point of the simplified tempo timeline handed to
// animation and display layers.
type BpmMapEntry struct {
	Seconds          float64 `json:"seconds"`
	BPM              float64 `json:"bpm"`
	MicrosPerQuarter uint32  `json:"microsPerQuarter"`
}

// BpmMapOptions control how BuildBpmMap filters a tempo map.
type BpmMapOptions struct {
	// Threshold is the minimum absolute BPM distance from the last kept
	// entry for a change to be kept. The first entry is always kept.
	Threshold float64

	// Precision is the number of decimal places BPM values are rounded
	// to before comparing and reporting. A negative Precision derives
	// it from the decimal digits of Threshold, so a threshold of 0.5
	// rounds to one decimal place.
	Precision int
}

// BuildBpmMap downsamples a finished tempo map into entries whose BPM
// differs from the previously kept entry by at least the threshold.
func BuildBpmMap(m *TempoMap, opts BpmMapOptions) []BpmMapEntry {
	prec := opts.Precision
	if prec < 0 {
		prec = decimalDigits(opts.Threshold)
	}
	pow := math.Pow(10, float64(prec))

	changes := m.Changes()
	out := make([]BpmMapEntry, 0, len(changes))
	var lastKept float64
	for i, c := range changes {
		bpm := math.Round(c.BPM()*pow) / pow
		if i > 0 && math.Abs(bpm-lastKept) < opts.Threshold {
			continue
		}
		out = append(out, BpmMapEntry{
			Seconds:          c.Seconds,
			BPM:              bpm,
			MicrosPerQuarter: c.MicrosPerQuarter,
		})
		lastKept = bpm
	}
	return out
}

// decimalDigits counts the digits after the decimal point in the
// shortest representation of v.
func decimalDigits(v float64) int {
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
