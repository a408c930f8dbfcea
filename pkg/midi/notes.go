package midi

import (
	"fmt"

	"go.uber.org/zap"
)

// Track is one MTrk chunk's decoded identity, indexed in file order
// counting MTrk chunks only.
type Track struct {
	Index    int        `json:"index"`
	Name     string     `json:"name,omitempty"`
	Channels []*Channel `json:"channels"`
}

// Channel is one of the sixteen logical channels of a track, created
// lazily when an event first references it. Index is unique across the
// whole file: trackIndex*16 + Number.
type Channel struct {
	Index      int          `json:"index"`
	Number     uint8        `json:"number"`
	Instrument string       `json:"instrument,omitempty"`
	Program    uint8        `json:"program"`
	Notes      []*NoteEvent `json:"notes"`
}

// NoteEvent is a note on or, when Velocity is zero, a note off.
// Duration and DurationBeats stay unset until the matching terminator
// is decoded; Resolved tells the two states apart, since a zero length
// note is valid.
type NoteEvent struct {
	Tick          uint64  `json:"tick"`
	Seconds       float64 `json:"seconds"`
	Beats         float64 `json:"beats"`
	Channel       int     `json:"channel"`
	Pitch         uint8   `json:"pitch"`
	Velocity      uint8   `json:"velocity"`
	Duration      float64 `json:"duration"`
	DurationBeats float64 `json:"durationBeats"`
	Resolved      bool    `json:"resolved"`
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns a readable name such as C4 for a pitch, with middle
// C (pitch 60) in octave four.
func NoteName(pitch uint8) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch)/12-1)
}

// noteAssembler pairs terminators with open notes. Open notes live on
// one stack per channel and pitch, so a terminator always resolves the
// nearest preceding unterminated note on.
type noteAssembler struct {
	open map[uint32][]*NoteEvent
	log  *zap.Logger
}

func newNoteAssembler(log *zap.Logger) noteAssembler {
	return noteAssembler{
		open: make(map[uint32][]*NoteEvent),
		log:  log,
	}
}

func openKey(channel int, pitch uint8) uint32 {
	return uint32(channel)<<8 | uint32(pitch)
}

func (a *noteAssembler) add(ev *NoteEvent) {
	key := openKey(ev.Channel, ev.Pitch)
	a.open[key] = append(a.open[key], ev)
}

// terminate resolves the newest open note matching the terminator's
// channel and pitch. Terminators with no open note are logged and
// ignored.
func (a *noteAssembler) terminate(ev *NoteEvent) {
	key := openKey(ev.Channel, ev.Pitch)
	stack := a.open[key]
	if len(stack) == 0 {
		a.log.Debug("unmatched note off",
			zap.Int("channel", ev.Channel),
			zap.Uint8("pitch", ev.Pitch),
			zap.Uint64("tick", ev.Tick))
		return
	}
	on := stack[len(stack)-1]
	a.open[key] = stack[:len(stack)-1]

	on.Duration = ev.Seconds - on.Seconds
	on.DurationBeats = ev.Beats - on.Beats
	on.Resolved = true
}

// hangingCount is the number of note ons still waiting for a terminator.
func (a *noteAssembler) hangingCount() int {
	n := 0
	for _, stack := range a.open {
		n += len(stack)
	}
	return n
}

func (fd *fileDecoder) channel(st *trackState, number uint8) *Channel {
	if ch := st.channels[number]; ch != nil {
		return ch
	}
	ch := &Channel{
		Index:  st.track.Index*16 + int(number),
		Number: number,
	}
	st.channels[number] = ch
	st.track.Channels = append(st.track.Channels, ch)
	return ch
}

func (fd *fileDecoder) noteOn(st *trackState, channel, pitch, velocity uint8) {
	ch := fd.channel(st, channel)
	ev := fd.newNoteEvent(st, ch, pitch, velocity)
	ch.Notes = append(ch.Notes, ev)
	fd.file.Notes = append(fd.file.Notes, ev)
	fd.assembler.add(ev)
}

// noteOff appends a terminator to the global list only; the channel
// lists hold the sounding notes.
func (fd *fileDecoder) noteOff(st *trackState, channel, pitch uint8) {
	ch := fd.channel(st, channel)
	ev := fd.newNoteEvent(st, ch, pitch, 0)
	fd.file.Notes = append(fd.file.Notes, ev)
	fd.assembler.terminate(ev)
}

func (fd *fileDecoder) newNoteEvent(st *trackState, ch *Channel, pitch, velocity uint8) *NoteEvent {
	return &NoteEvent{
		Tick:     st.tick,
		Seconds:  fd.clock.SecondsAt(st.tick),
		Beats:    fd.clock.BeatsAt(st.tick),
		Channel:  ch.Index,
		Pitch:    pitch,
		Velocity: velocity,
	}
}
