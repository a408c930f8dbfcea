package main

import (
	"sync"

	"github.com/Garik-/miditime/pkg/midi"
)

// update is the message pushed to websocket clients when the served
// file is decoded again.
type update struct {
	Version  uint64  `json:"version"`
	State    string  `json:"state"`
	Error    string  `json:"error,omitempty"`
	Tracks   int     `json:"tracks,omitempty"`
	Notes    int     `json:"notes,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// library holds the latest decode of the served file and fans updates
// out to listeners. A listener that cannot keep up is closed and
// dropped rather than allowed to stall the others.
type library struct {
	lock      sync.RWMutex
	file      *midi.File
	err       error
	version   uint64
	listeners []chan<- update
}

func (s *library) set(f *midi.File, err error) {
	s.lock.Lock()
	s.file = f
	s.err = err
	s.version++
	u := s.updateLocked()

	ls := s.listeners
	var pos int
	for _, l := range ls {
		select {
		case l <- u:
			ls[pos] = l
			pos++
		default:
			close(l)
		}
	}
	s.listeners = ls[:pos]
	for ; pos < len(ls); pos++ {
		ls[pos] = nil
	}
	s.lock.Unlock()
}

func (s *library) snapshot() (*midi.File, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.file, s.err
}

// addListener registers ch and returns the state it missed.
func (s *library) addListener(ch chan<- update) update {
	if ch == nil {
		panic("nil channel")
	}
	s.lock.Lock()
	u := s.updateLocked()
	s.listeners = append(s.listeners, ch)
	s.lock.Unlock()
	return u
}

func (s *library) removeListener(ch chan<- update) {
	s.lock.Lock()
	for i, l := range s.listeners {
		if l == ch {
			s.listeners[i] = s.listeners[len(s.listeners)-1]
			s.listeners[len(s.listeners)-1] = nil
			s.listeners = s.listeners[:len(s.listeners)-1]
			close(ch)
			break
		}
	}
	s.lock.Unlock()
}

func (s *library) updateLocked() update {
	u := update{Version: s.version}
	switch {
	case s.err != nil:
		u.State = "fail"
		u.Error = s.err.Error()
	case s.file == nil:
		u.State = "loading"
	default:
		u.State = "ok"
		u.Tracks = len(s.file.Tracks)
		u.Notes = len(s.file.ResolvedNotes())
		u.Duration = s.file.Duration()
	}
	return u
}
