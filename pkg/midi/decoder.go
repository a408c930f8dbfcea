package midi

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

type timeFormat int

const (
	// MetricalTF divisions count ticks per quarter note.
	MetricalTF timeFormat = iota + 1
	// TimeCodeTF divisions count SMPTE frames per second and ticks per frame.
	TimeCodeTF
)

func (t timeFormat) String() string {
	switch t {
	case MetricalTF:
		return "metrical"
	case TimeCodeTF:
		return "timecode"
	}
	return "unknown"
}

var (
	headerChunkID = [4]byte{0x4D, 0x54, 0x68, 0x64} // MThd
	trackChunkID  = [4]byte{0x4D, 0x54, 0x72, 0x6B} // MTrk

	// ErrNotMidiFile reports that the data does not start with a valid MThd chunk.
	ErrNotMidiFile = errors.New("not a midi file")
	// ErrTruncatedData reports that a read would run past the end of the data.
	ErrTruncatedData = errors.New("truncated data")
	// ErrInvalidEventStream reports track bytes that cannot be decoded as events.
	ErrInvalidEventStream = errors.New("invalid event stream")
)

const (
	headerChunkSize = 6

	defaultMicrosPerQuarter = 500000

	// cancelCheckInterval is how many events are decoded between two
	// looks at the context inside a single track.
	cancelCheckInterval = 1024
)

// Meta event subtypes the decoder gives meaning to. Everything else is
// skipped by its declared length.
const (
	metaTrackName      = 0x03
	metaInstrumentName = 0x04
	metaChannelPrefix  = 0x20
	metaTempo          = 0x51
	metaTimeSignature  = 0x58
)

// Header is the decoded MThd chunk.
type Header struct {
	Format     uint16     `json:"format"`
	TrackCount uint16     `json:"trackCount"` // as declared, informational
	TimeFormat timeFormat `json:"timeFormat"`

	// Metrical timing.
	TicksPerQuarterNote uint16 `json:"ticksPerQuarterNote,omitempty"`

	// SMPTE timing.
	FramesPerSecond uint8 `json:"framesPerSecond,omitempty"`
	TicksPerFrame   uint8 `json:"ticksPerFrame,omitempty"`
}

// Decoder decodes Standard MIDI Files into File values. A Decoder is
// stateless between calls and safe to reuse across goroutines.
type Decoder struct {
	opts Options
	log  *zap.Logger
}

func NewDecoder(opts Options) *Decoder {
	return &Decoder{
		opts: opts,
		log:  opts.logger().Named("midi"),
	}
}

// Decode parses data as a complete Standard MIDI File.
func Decode(data []byte) (*File, error) {
	return NewDecoder(Options{}).Decode(data)
}

func (d *Decoder) Decode(data []byte) (*File, error) {
	return d.DecodeContext(context.Background(), data)
}

// DecodeContext parses data as a complete Standard MIDI File. The
// context is checked at every track boundary and between batches of
// events inside a track; once it is done the partial result is dropped
// and ctx.Err() is returned.
func (d *Decoder) DecodeContext(ctx context.Context, data []byte) (*File, error) {
	fd := &fileDecoder{
		cur:  newCursor(data),
		opts: d.opts,
		log:  d.log,
	}
	return fd.decode(ctx)
}

// fileDecoder carries the state of one decode pass over one file.
type fileDecoder struct {
	cur  *cursor
	opts Options
	log  *zap.Logger

	file      *File
	clock     *TickClock
	assembler noteAssembler
	events    int
}

// trackState is the per track slice of the decode state: a cursor over
// the chunk body, the running status, the accumulated tick position and
// the channel prefix naming context.
type trackState struct {
	cur           *cursor
	track         *Track
	channels      [16]*Channel
	runningStatus byte
	tick          uint64
	channelPrefix uint8
}

func (fd *fileDecoder) decode(ctx context.Context) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hdr, err := fd.parseHeader()
	if err != nil {
		return nil, err
	}

	fd.file = newFile(hdr)
	fd.clock = NewTickClock(hdr, fd.file.TempoMap)
	fd.assembler = newNoteAssembler(fd.log)

	if err := fd.scanChunks(ctx); err != nil {
		return nil, err
	}

	fd.file.finalize(fd.clock)

	if int(hdr.TrackCount) != len(fd.file.Tracks) {
		fd.log.Debug("track count mismatch",
			zap.Uint16("declared", hdr.TrackCount),
			zap.Int("decoded", len(fd.file.Tracks)))
	}
	fd.log.Debug("decoded",
		zap.Uint16("format", hdr.Format),
		zap.Int("tracks", len(fd.file.Tracks)),
		zap.Int("notes", len(fd.file.Notes)),
		zap.Int("tempoChanges", fd.file.TempoMap.Len()),
		zap.Int("hanging", fd.assembler.hangingCount()))

	return fd.file, nil
}

func (fd *fileDecoder) parseHeader() (Header, error) {
	var h Header

	id, err := fd.cur.readID()
	if err != nil {
		return h, err
	}
	if id != headerChunkID {
		return h, fmt.Errorf("%w: bad signature %q", ErrNotMidiFile, id[:])
	}

	size, err := fd.cur.readUint32()
	if err != nil {
		return h, err
	}
	if size != headerChunkSize {
		return h, fmt.Errorf("%w: expected header size to be %d, was %d", ErrNotMidiFile, headerChunkSize, size)
	}

	if h.Format, err = fd.cur.readUint16(); err != nil {
		return h, err
	}
	if h.Format > 2 {
		return h, fmt.Errorf("%w: format %d", ErrNotMidiFile, h.Format)
	}
	if h.TrackCount, err = fd.cur.readUint16(); err != nil {
		return h, err
	}

	division, err := fd.cur.readUint16()
	if err != nil {
		return h, err
	}
	if division&0x8000 == 0 {
		h.TimeFormat = MetricalTF
		h.TicksPerQuarterNote = division & 0x7FFF
		if fd.opts.HalveDivision {
			h.TicksPerQuarterNote /= 2
		}
		if h.TicksPerQuarterNote == 0 {
			return h, fmt.Errorf("%w: zero tick division", ErrNotMidiFile)
		}
	} else {
		h.TimeFormat = TimeCodeTF
		h.FramesPerSecond = uint8(-int8(division >> 8))
		h.TicksPerFrame = uint8(division)
		if h.TicksPerFrame == 0 {
			return h, fmt.Errorf("%w: zero ticks per frame", ErrNotMidiFile)
		}
	}

	return h, nil
}

// scanChunks walks the chunk sequence after the header. MTrk bodies are
// decoded; anything else is a vendor chunk, skipped by its declared
// length without disturbing track numbering.
func (fd *fileDecoder) scanChunks(ctx context.Context) error {
	index := 0
	for fd.cur.remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := fd.cur.readID()
		if err != nil {
			return err
		}
		size, err := fd.cur.readUint32()
		if err != nil {
			return err
		}

		if id != trackChunkID {
			fd.log.Debug("skipping foreign chunk",
				zap.ByteString("id", id[:]),
				zap.Uint32("size", size))
			if err := fd.cur.skip(int(size)); err != nil {
				break
			}
			continue
		}

		body, err := fd.cur.readBytes(int(size))
		if err != nil {
			return err
		}
		if err := fd.decodeTrack(ctx, index, body); err != nil {
			return err
		}
		index++
	}
	return nil
}

func (fd *fileDecoder) decodeTrack(ctx context.Context, index int, body []byte) error {
	st := &trackState{
		cur:   newCursor(body),
		track: &Track{Index: index},
	}
	fd.file.Tracks = append(fd.file.Tracks, st.track)

	for st.cur.remaining() > 0 {
		fd.events++
		if fd.events%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fd.decodeEvent(st); err != nil {
			return fmt.Errorf("track %d: %w", index, err)
		}
	}
	return nil
}

func (fd *fileDecoder) decodeEvent(st *trackState) error {
	delta, err := st.cur.varLen()
	if err != nil {
		return err
	}
	st.tick += uint64(delta)

	statusByte, err := st.cur.readByte()
	if err != nil {
		return err
	}

	status := statusByte
	if statusByte&0x80 == 0 {
		// Running status: the byte just read is the first data byte.
		if st.runningStatus == 0 {
			return fmt.Errorf("%w: data byte %#02x with no running status at offset %d",
				ErrInvalidEventStream, statusByte, st.cur.offset()-1)
		}
		status = st.runningStatus
		st.cur.seek(st.cur.offset() - 1)
	} else if status < 0xF0 {
		st.runningStatus = status
	} else {
		// Meta and sysex events cancel running status.
		st.runningStatus = 0
	}

	channel := status & 0x0F

	switch status & 0xF0 {
	case 0x80: // note off
		pitch, err := st.cur.uint7()
		if err != nil {
			return err
		}
		// The release velocity byte carries no meaning here.
		if _, err := st.cur.readByte(); err != nil {
			return err
		}
		fd.noteOff(st, channel, pitch)

	case 0x90: // note on, velocity zero doubles as a note off
		pitch, err := st.cur.uint7()
		if err != nil {
			return err
		}
		velocity, err := st.cur.uint7()
		if err != nil {
			return err
		}
		if velocity == 0 {
			fd.noteOff(st, channel, pitch)
		} else {
			fd.noteOn(st, channel, pitch, velocity)
		}

	case 0xA0, 0xB0, 0xE0: // key pressure, controller, pitch bend
		if err := st.cur.skip(2); err != nil {
			return err
		}

	case 0xC0: // program change
		program, err := st.cur.uint7()
		if err != nil {
			return err
		}
		fd.channel(st, channel).Program = program

	case 0xD0: // channel pressure
		if err := st.cur.skip(1); err != nil {
			return err
		}

	case 0xF0:
		switch status {
		case 0xFF:
			return fd.decodeMeta(st)
		case 0xF0, 0xF7: // sysex, skipped by declared length
			if _, err := st.cur.varBytes(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: status %#02x at offset %d", ErrInvalidEventStream, status, st.cur.offset()-1)
		}

	default:
		return fmt.Errorf("%w: status %#02x at offset %d", ErrInvalidEventStream, status, st.cur.offset()-1)
	}

	return nil
}

func (fd *fileDecoder) decodeMeta(st *trackState) error {
	sub, err := st.cur.readByte()
	if err != nil {
		return err
	}
	payload, err := st.cur.varBytes()
	if err != nil {
		return err
	}

	switch sub {
	case metaTrackName:
		st.track.Name = metaText(payload)
		fd.log.Debug("track name",
			zap.Int("track", st.track.Index),
			zap.String("name", st.track.Name))

	case metaInstrumentName:
		fd.channel(st, st.channelPrefix).Instrument = metaText(payload)

	case metaChannelPrefix:
		if len(payload) < 1 {
			fd.log.Warn("empty channel prefix meta",
				zap.Int("track", st.track.Index),
				zap.Uint64("tick", st.tick))
			break
		}
		st.channelPrefix = payload[0] & 0x0F

	case metaTempo:
		micros, err := newCursor(payload).readUint24()
		if err != nil || micros == 0 {
			fd.log.Warn("bad tempo meta",
				zap.Int("track", st.track.Index),
				zap.Uint64("tick", st.tick),
				zap.Int("len", len(payload)))
			break
		}
		fd.file.TempoMap.Add(st.tick, micros)

	case metaTimeSignature:
		if len(payload) < 4 {
			fd.log.Warn("short time signature meta",
				zap.Int("track", st.track.Index),
				zap.Uint64("tick", st.tick),
				zap.Int("len", len(payload)))
			break
		}
		fd.file.TimeSignatures.Add(TimeSignatureChange{
			Tick:                    st.tick,
			Numerator:               payload[0],
			Denominator:             uint16(1) << (payload[1] & 0x0F),
			MetronomeClocks:         payload[2],
			ThirtySecondsPerQuarter: payload[3],
		})
	}

	return nil
}

// metaText converts a meta event payload into a string. Names in the
// wild predate Unicode, so anything that is not already valid UTF-8 is
// read as Latin-1.
func metaText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
