package audio

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	zlog "github.com/rs/zerolog/log"
)

// The audio device allows a single context per process. It is opened on the
// first cue so that a server without sound hardware starts normally.
var (
	deviceOnce sync.Once
	deviceCtx  *oto.Context
	deviceRate int
	deviceErr  error
)

func openDevice(sampleRate int) (*oto.Context, error) {
	deviceOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			deviceErr = errors.Wrap(err, "failed to open audio device")
			zlog.Warn().Msgf("audio: device unavailable: %v", err)
			return
		}
		<-ready
		deviceCtx = ctx
		deviceRate = sampleRate
		zlog.Debug().Msgf("audio: device opened: rate=%d channels=%d", sampleRate, channelCount)
	})
	if deviceErr != nil {
		return nil, deviceErr
	}
	if deviceRate != sampleRate {
		return nil, errors.Newf("audio device already opened at %d Hz", deviceRate)
	}
	return deviceCtx, nil
}

// deviceOutput plays PCM on the system audio device.
type deviceOutput struct {
	sampleRate int
}

// Play implements Output.
func (o *deviceOutput) Play(ctx context.Context, pcm []byte) error {
	dev, err := openDevice(o.sampleRate)
	if err != nil {
		return err
	}

	player := dev.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	// Wait for playback to complete or be interrupted.
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			_ = player.Close()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return player.Close()
}
