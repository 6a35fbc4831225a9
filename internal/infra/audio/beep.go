// Package audio plays completion beeps on the system audio device.
package audio

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/domain/cue"
)

const (
	channelCount   = 2
	bytesPerSample = 2 // signed 16-bit little endian
)

// BeepConfig configures BeepSink.
type BeepConfig struct {
	SampleRate    int     `mapstructure:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000"`
	Frequency     float64 `mapstructure:"frequency" default:"880" validate:"gte=20,lte=20000"`
	Volume        float64 `mapstructure:"volume" default:"0.3" validate:"gt=0,lte=1"`
	StepMs        int     `mapstructure:"step_ms" default:"150" validate:"gte=10,lte=5000"`
	SessionMs     int     `mapstructure:"session_ms" default:"400" validate:"gte=10,lte=5000"`
	SessionRepeat int     `mapstructure:"session_repeat" default:"3" validate:"gte=1,lte=10"`
	GapMs         int     `mapstructure:"gap_ms" default:"150" validate:"gte=0,lte=5000"`
	File          string  `mapstructure:"file"` // Optional WAV played for the session cue instead of tones
}

// Output plays raw PCM and blocks until it has finished or ctx is done.
type Output interface {
	Play(ctx context.Context, pcm []byte) error
}

// BeepSink plays a short tone for a step cue and a repeated long tone (or a
// WAV file) for a session cue.
type BeepSink struct {
	config  BeepConfig
	out     Output
	step    []byte
	session []byte
}

// NewBeepSink creates a beep sink on the system audio device.
func NewBeepSink(settings map[string]any) (*BeepSink, error) {
	var config BeepConfig
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return newBeepSink(config, &deviceOutput{sampleRate: config.SampleRate})
}

func newBeepSink(config BeepConfig, out Output) (*BeepSink, error) {
	s := &BeepSink{config: config, out: out}

	s.step = Tone(config.SampleRate, config.Frequency, config.Volume, ms(config.StepMs))

	if config.File != "" {
		data, err := os.ReadFile(config.File)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read sound file")
		}
		pcm, err := ExtractPCM(data)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid sound file %s", config.File)
		}
		s.session = pcm
	} else {
		long := Tone(config.SampleRate, config.Frequency, config.Volume, ms(config.SessionMs))
		gap := Silence(config.SampleRate, ms(config.GapMs))
		for i := 0; i < config.SessionRepeat; i++ {
			if i > 0 {
				s.session = append(s.session, gap...)
			}
			s.session = append(s.session, long...)
		}
	}

	zlog.Debug().Msgf("audio: beep sink ready: rate=%d freq=%.0f step=%dB session=%dB", config.SampleRate, config.Frequency, len(s.step), len(s.session))
	return s, nil
}

// Name implements cue.Sink.
func (s *BeepSink) Name() string { return "beep" }

// Deliver implements cue.Sink.
func (s *BeepSink) Deliver(ctx context.Context, c cue.Cue) error {
	if c.Kind == cue.KindSession {
		return s.out.Play(ctx, s.session)
	}
	return s.out.Play(ctx, s.step)
}

// Tone renders a sine wave as interleaved stereo signed 16-bit PCM with short
// linear fades so the edges do not click.
func Tone(sampleRate int, frequency, volume float64, d time.Duration) []byte {
	frames := int(int64(sampleRate) * int64(d) / int64(time.Second))
	fade := sampleRate / 200 // 5ms
	if fade*2 > frames {
		fade = frames / 2
	}

	buf := make([]byte, frames*channelCount*bytesPerSample)
	for i := 0; i < frames; i++ {
		amp := volume
		switch {
		case i < fade:
			amp *= float64(i) / float64(fade)
		case i >= frames-fade:
			amp *= float64(frames-1-i) / float64(fade)
		}
		v := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
		for ch := 0; ch < channelCount; ch++ {
			off := (i*channelCount + ch) * bytesPerSample
			binary.LittleEndian.PutUint16(buf[off:], uint16(v))
		}
	}
	return buf
}

// Silence renders d of silent PCM in the Tone format.
func Silence(sampleRate int, d time.Duration) []byte {
	frames := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return make([]byte, frames*channelCount*bytesPerSample)
}

// ExtractPCM strips the RIFF header of a WAV file and returns its data chunk.
func ExtractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("data chunk not found in WAV")
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
