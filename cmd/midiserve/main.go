package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Garik-/miditime/pkg/midi"
)

type contextKey struct{}

func (contextKey) String() string {
	return "midiserve context key"
}

// server ties the request handlers to the shared library state.
type server struct {
	lib       *library
	log       *zap.Logger
	threshold float64
}

func getServer(ctx context.Context) *server {
	val := ctx.Value(contextKey{})
	if val == nil {
		panic("missing context key")
	}
	s, ok := val.(*server)
	if !ok {
		panic("context key has wrong value")
	}
	return s
}

func (s *server) logResponse(r *http.Request, status int) {
	if status >= 400 {
		s.log.Warn(http.StatusText(status),
			zap.Int("status", status),
			zap.Stringer("url", r.URL))
		return
	}
	s.log.Info(http.StatusText(status),
		zap.Int("status", status),
		zap.Stringer("url", r.URL))
}

func (s *server) serveJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logResponse(r, http.StatusInternalServerError)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logResponse(r, http.StatusOK)
	hdr := w.Header()
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	hdr.Set("Cache-Control", "no-cache")
	w.Write(data)
}

// file returns the current decode, answering 503 itself while the
// library has nothing servable.
func (s *server) file(w http.ResponseWriter, r *http.Request) (*midi.File, bool) {
	f, err := s.lib.snapshot()
	if err != nil {
		s.logResponse(r, http.StatusServiceUnavailable)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	if f == nil {
		s.logResponse(r, http.StatusServiceUnavailable)
		http.Error(w, "file not loaded yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return f, true
}

func serveFile(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	if f, ok := s.file(w, r); ok {
		s.serveJSON(w, r, f)
	}
}

func serveNotes(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	if f, ok := s.file(w, r); ok {
		s.serveJSON(w, r, f.ResolvedNotes())
	}
}

func serveTempo(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	f, ok := s.file(w, r)
	if !ok {
		return
	}
	s.serveJSON(w, r, struct {
		TempoMap       *midi.TempoMap         `json:"tempoMap"`
		TimeSignatures *midi.TimeSignatureMap `json:"timeSignatures"`
	}{f.TempoMap, f.TimeSignatures})
}

func serveBpm(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	f, ok := s.file(w, r)
	if !ok {
		return
	}
	threshold := s.threshold
	if q := r.URL.Query().Get("threshold"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || v < 0 {
			s.logResponse(r, http.StatusBadRequest)
			http.Error(w, fmt.Sprintf("bad threshold %q", q), http.StatusBadRequest)
			return
		}
		threshold = v
	}
	s.serveJSON(w, r, f.BpmMap(threshold))
}

func serveNotFound(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	s.logResponse(r, http.StatusNotFound)
	http.Error(w, fmt.Sprintf("page not found: %q", r.URL), http.StatusNotFound)
}

func mainE() error {
	fHost := pflag.String("host", "localhost", "host to serve from")
	fPort := pflag.Int("port", 9013, "port to serve from")
	fFile := pflag.StringP("file", "f", "", "midi file to serve and watch for changes")
	fThreshold := pflag.Float64("threshold", 0.5, "default bpm map threshold")
	fHalveDivision := pflag.Bool("halve-division", false, "halve the tick division of files written at a doubled rate")
	fDebug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()
	if args := pflag.Args(); len(args) != 0 {
		return fmt.Errorf("unexpected argument: %q", args[0])
	}
	if *fFile == "" {
		return errors.New("missing -file")
	}

	logger, err := newLogger(*fDebug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	path, err := filepath.Abs(*fFile)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	ctx := context.Background()

	srv := &server{
		lib:       &library{},
		log:       logger,
		threshold: *fThreshold,
	}
	w := &watcher{
		path: path,
		lib:  srv.lib,
		log:  logger.Named("watch"),
		decoder: midi.NewDecoder(midi.Options{
			HalveDivision: *fHalveDivision,
			Logger:        logger,
		}),
	}
	go func() {
		if err := w.run(ctx); err != nil {
			logger.Fatal("watch", zap.Error(err))
		}
	}()

	ctx = context.WithValue(ctx, contextKey{}, srv)
	mx := chi.NewMux()
	mx.Get("/api/file", serveFile)
	mx.Get("/api/notes", serveNotes)
	mx.Get("/api/tempo", serveTempo)
	mx.Get("/api/bpm", serveBpm)
	mx.Get("/socket", serveSocket)
	mx.NotFound(serveNotFound)

	s := http.Server{
		Handler:     mx,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	l, err := net.Listen("tcp", net.JoinHostPort(*fHost, strconv.Itoa(*fPort)))
	if err != nil {
		return err
	}
	root := url.URL{Scheme: "http", Host: l.Addr().String(), Path: "/"}
	logger.Info("serving",
		zap.Stringer("url", &root),
		zap.String("file", path))
	return s.Serve(l)
}

func main() {
	if err := mainE(); err != nil {
		log.Fatal(err)
	}
}
