package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/spf13/pflag"

	"github.com/Garik-/miditime/pkg/midi"
)

const defaultParallel = 10

var (
	fList          = pflag.StringP("list", "l", "", "path to a list of midi files,\nfind . -type f -name \"*.mid\" > midi_list.txt")
	fParallel      = pflag.IntP("parallel", "p", defaultParallel, "number of files decoded in parallel, must be > 0")
	fHalveDivision = pflag.Bool("halve-division", false, "halve the tick division of files written at a doubled rate")
	fDebug         = pflag.Bool("debug", false, "enable decoder debug logging")
)

func readList(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, scanner.Err()
}

func mainE() error {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [file.mid ...]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	paths := pflag.Args()
	if *fList != "" {
		listed, err := readList(*fList)
		if err != nil {
			return err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 || *fParallel <= 0 {
		pflag.Usage()
		return fmt.Errorf("nothing to scan")
	}

	if *fDebug {
		if err := enableDebugLogging(); err != nil {
			return err
		}
	}
	defer scanLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results := midi.DecodeAll(ctx, paths, *fParallel, midi.Options{
		HalveDivision: *fHalveDivision,
		Logger:        scanLog,
	})

	var failed, notes, hanging int
	var totalBytes int64
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("fail  %s: %s\n", r.Path, r.Err)
			continue
		}
		if fi, err := os.Stat(r.Path); err == nil {
			totalBytes += fi.Size()
		}
		resolved := r.File.ResolvedNotes()
		var presses int
		for _, n := range r.File.Notes {
			if n.Velocity > 0 {
				presses++
			}
		}
		notes += len(resolved)
		hanging += presses - len(resolved)
		fmt.Printf("ok    %s: %d tracks, %d notes, %s\n",
			r.Path, len(r.File.Tracks), len(resolved), formatSeconds(r.File.Duration()))
	}

	fmt.Printf("\nscanned %d files (%s) in %s, %d failed, %d notes, %d hanging\n",
		len(results), humanize.Bytes(uint64(totalBytes)),
		formatSeconds(time.Since(start).Seconds()), failed, notes, hanging)

	return ctx.Err()
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	return durafmt.Parse(d.Round(time.Millisecond)).LimitFirstN(2).String()
}

func main() {
	if err := mainE(); err != nil {
		log.Fatal(err)
	}
}
