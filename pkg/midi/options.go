package midi

import "go.uber.org/zap"

// Options configure a Decoder.
type Options struct {
	// HalveDivision halves the header's metrical tick division before
	// decoding, correcting files written with a doubled tick rate.
	HalveDivision bool

	// Logger receives decode diagnostics. Nil keeps the decoder silent.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
