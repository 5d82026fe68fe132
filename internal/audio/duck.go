package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var (
	sinkInputRe = regexp.MustCompile(`(?m)^Sink Input #(\d+)[ \t]*$`)
	volumeRe    = regexp.MustCompile(`(?m)^\s*Volume:.*?(\d+)\s*%`)
	appNameRe   = regexp.MustCompile(`(?m)^\s*application\.name = "([^"]*)"`)
)

// sinkInput is one PulseAudio playback stream.
type sinkInput struct {
	id     int
	volume int
	app    string
}

type fade struct {
	id       int
	from, to int
}

// DuckConfig controls how far and how fast other streams are lowered.
type DuckConfig struct {
	SelfNames []string // application.name values that are never touched
	Factor    float64  // target = current * Factor
	MinVolume int      // percent floor for ducked streams
	Fade      time.Duration
}

func DefaultDuckConfig() DuckConfig {
	return DuckConfig{
		SelfNames: []string{"echo", "espeak-ng", "ALSA plug-in [echo]"},
		Factor:    0.3,
		MinVolume: 10,
		Fade:      250 * time.Millisecond,
	}
}

// pactlFunc runs pactl with args and returns its stdout.
type pactlFunc func(ctx context.Context, args ...string) ([]byte, error)

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers every sink input except our own while the assistant speaks,
// and restores them afterwards. It implements speech.Ducker.
type Ducker struct {
	cfg   DuckConfig
	pactl pactlFunc

	mu    sync.Mutex
	saved map[int]int // sink input id -> volume before ducking; nil when not ducked
}

func NewDucker(cfg DuckConfig) *Ducker {
	cfg.MinVolume = max(0, min(cfg.MinVolume, maxVolume))
	if cfg.Factor <= 0 || cfg.Factor > 1 {
		cfg.Factor = DefaultDuckConfig().Factor
	}
	return &Ducker{cfg: cfg, pactl: runPactl}
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saved != nil {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	saved := make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		target := math.Round(float64(in.volume) * d.cfg.Factor)
		target = math.Min(math.Max(target, float64(d.cfg.MinVolume)), maxVolume)
		saved[in.id] = in.volume
		fades = append(fades, fade{id: in.id, from: in.volume, to: int(target)})
	}

	d.saved = saved
	return d.fade(ctx, fades)
}

// Unduck restores ducked streams. Streams that appeared meanwhile are left
// alone.
func (d *Ducker) Unduck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saved == nil {
		return nil
	}
	saved := d.saved
	d.saved = nil

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		if orig, ok := saved[in.id]; ok {
			fades = append(fades, fade{id: in.id, from: in.volume, to: orig})
		}
	}
	return d.fade(ctx, fades)
}

// list returns the sink inputs that are not ours.
func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	var others []sinkInput
	for _, in := range parseSinkInputs(string(out)) {
		if !slices.Contains(d.cfg.SelfNames, in.app) {
			others = append(others, in)
		}
	}
	return others, nil
}

// fade moves every stream linearly to its target over cfg.Fade in 10ms
// steps. A zero duration jumps straight there.
func (d *Ducker) fade(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const step = 10 * time.Millisecond
	steps := max(1, int(d.cfg.Fade/step))
	if d.cfg.Fade <= 0 {
		steps = 1
	}

	tick := time.NewTicker(max(d.cfg.Fade/time.Duration(steps), time.Millisecond))
	defer tick.Stop()

	for i := 1; i <= steps; i++ {
		if d.cfg.Fade > 0 {
			select {
			case <-tick.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setVolume(ctx, f.id, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = max(0, min(percent, maxVolume))
	if _, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)); err != nil {
		return fmt.Errorf("set volume of sink input %d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads the id, first volume percentage and
// application.name of every "Sink Input #N" block of `pactl list`.
func parseSinkInputs(text string) []sinkInput {
	heads := sinkInputRe.FindAllStringSubmatchIndex(text, -1)

	var inputs []sinkInput
	for i, h := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1][0]
		}
		block := text[h[1]:end]

		id, err := strconv.Atoi(text[h[2]:h[3]])
		if err != nil {
			continue
		}
		in := sinkInput{id: id}
		if m := volumeRe.FindStringSubmatch(block); m != nil {
			in.volume, _ = strconv.Atoi(m[1])
		}
		if m := appNameRe.FindStringSubmatch(block); m != nil {
			in.app = strings.TrimSpace(m[1])
		}
		if in.volume == 0 && in.app == "" {
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs
}
