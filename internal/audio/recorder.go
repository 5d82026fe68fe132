package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is what whisper expects.
const SampleRate = 16000

type RecorderConfig struct {
	SilenceRMS      float64       // frames below this count as silence
	SilenceDuration time.Duration // trailing silence that ends an utterance
	MaxLength       time.Duration // hard cap on one recording
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SilenceRMS:      0.015,
		SilenceDuration: 600 * time.Millisecond,
		MaxLength:       10 * time.Second,
	}
}

type Recorder struct {
	cfg RecorderConfig
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = def.SilenceRMS
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = def.SilenceDuration
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto captures from the default input until the speaker goes quiet
// after talking, or MaxLength passes. Leading silence is discarded, so a
// recording of nobody talking comes back empty.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	const frameSize = 320 // 20ms
	frameDur := time.Second * frameSize / SampleRate

	buf := make([]float32, frameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silenceFrames int
	)

	maxFrames := int(r.cfg.MaxLength / frameDur)
	silenceFramesMax := int(r.cfg.SilenceDuration / frameDur)

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}

		if frameRMS(buf) > r.cfg.SilenceRMS {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}
		if speaking {
			silenceFrames++
			if silenceFrames >= silenceFramesMax {
				break
			}
			out = append(out, buf...)
		}
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}

// Peak is the largest absolute sample.
func Peak(pcm []float32) float64 {
	var p float64
	for _, x := range pcm {
		if a := math.Abs(float64(x)); a > p {
			p = a
		}
	}
	return p
}
