package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/spf13/pflag"

	"github.com/Garik-/miditime/pkg/midi"
)

var (
	fJSON          = pflag.Bool("json", false, "print the decoded file as JSON")
	fThreshold     = pflag.Float64("threshold", 0.5, "minimum BPM step between kept tempo map entries")
	fNotes         = pflag.Int("notes", 10, "number of notes to print, -1 for all")
	fHalveDivision = pflag.Bool("halve-division", false, "halve the tick division of files written at a doubled rate")
	fDebug         = pflag.Bool("debug", false, "enable decoder debug logging")
)

func mainE() error {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] file.mid\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 1 {
		pflag.Usage()
		return fmt.Errorf("expected one midi file, got %d arguments", len(args))
	}

	logger, err := newLogger(*fDebug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	f, err := midi.NewDecoder(midi.Options{
		HalveDivision: *fHalveDivision,
		Logger:        logger,
	}).Decode(data)
	if err != nil {
		return err
	}

	if *fJSON {
		out, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(out))
		return err
	}

	dump(f, len(data))
	return nil
}

func dump(f *midi.File, size int) {
	h := f.Header
	fmt.Printf("format %d, %s timing", h.Format, h.TimeFormat)
	if h.TimeFormat == midi.MetricalTF {
		fmt.Printf(", %d ticks per quarter\n", h.TicksPerQuarterNote)
	} else {
		fmt.Printf(", %d fps x %d ticks per frame\n", h.FramesPerSecond, h.TicksPerFrame)
	}

	resolved := f.ResolvedNotes()
	fmt.Printf("%s, %d tracks, %d notes, %s\n\n",
		humanize.Bytes(uint64(size)), len(f.Tracks), len(resolved), formatSeconds(f.Duration()))

	for _, tr := range f.Tracks {
		fmt.Printf("track %d %q\n", tr.Index, tr.Name)
		for _, ch := range tr.Channels {
			fmt.Printf("  channel %d program %d %q: %d notes\n",
				ch.Number, ch.Program, ch.Instrument, len(ch.Notes))
		}
	}

	fmt.Printf("\ntempo map, %d changes:\n", f.TempoMap.Len())
	for _, c := range f.TempoMap.Changes() {
		fmt.Printf("  %8.3fs  %8.2f BPM  (%d us/quarter at tick %d)\n",
			c.Seconds, c.BPM(), c.MicrosPerQuarter, c.Tick)
	}

	if f.TimeSignatures.Len() > 0 {
		fmt.Printf("\ntime signatures:\n")
		for _, c := range f.TimeSignatures.Changes() {
			fmt.Printf("  %8.3fs  %d/%d\n", c.Seconds, c.Numerator, c.Denominator)
		}
	}

	entries := f.BpmMap(*fThreshold)
	fmt.Printf("\nbpm map, threshold %v, %d entries:\n", *fThreshold, len(entries))
	for _, e := range entries {
		fmt.Printf("  %8.3fs  %8.2f BPM\n", e.Seconds, e.BPM)
	}

	max := *fNotes
	if max < 0 || max > len(resolved) {
		max = len(resolved)
	}
	fmt.Printf("\nnotes, first %d of %d:\n", max, len(resolved))
	for _, n := range resolved[:max] {
		fmt.Printf("  %8.3fs  %-4s ch %2d  vel %3d  %.3fs  (tick %d)\n",
			n.Seconds, midi.NoteName(n.Pitch), n.Channel, n.Velocity, n.Duration, n.Tick)
	}
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

func main() {
	if err := mainE(); err != nil {
		log.Fatal(err)
	}
}
