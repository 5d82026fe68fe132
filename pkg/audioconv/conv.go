// Package audioconv turns recorded or uploaded clips into the 16 kHz mono
// float samples whisper wants.
package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	MaxSamples int // 0 = unlimited
}

type format int

const (
	formatUnknown format = iota
	formatWAV
	formatMP3
	formatOgg
)

func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(ctx, f, filepath.Base(path), opt)
}

// Decode reads the whole clip and picks a decoder from the name's extension,
// falling back to the leading magic bytes.
func Decode(ctx context.Context, r io.Reader, name string, opt Options) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var x []float32
	switch detect(name, data) {
	case formatWAV:
		x, err = decodeWAV(bytes.NewReader(data))
	case formatMP3:
		x, err = decodeMP3(bytes.NewReader(data))
	case formatOgg:
		x, err = decodeOggVorbis(bytes.NewReader(data))
		if err != nil {
			var opusErr error
			if x, opusErr = decodeOggOpus(bytes.NewReader(data)); opusErr != nil {
				return nil, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus: %w", err, opusErr)
			}
			err = nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return nil, err
	}

	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func detect(name string, data []byte) format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return formatWAV
	case ".mp3":
		return formatMP3
	case ".ogg", ".oga", ".opus":
		return formatOgg
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return formatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return formatOgg
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	}
	return formatUnknown
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := normalize(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return resample(mono(x, ch), sr, TargetRate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always yields interleaved stereo
	x := mono(normalize(ints, 16), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return resample(x, sr, TargetRate), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, f, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f == nil || f.Channels <= 0 || f.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return resample(mono(pcm, f.Channels), f.SampleRate, TargetRate), nil
}

func decodeOggOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz
	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, normalize(buf[:n*ch], 16)...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm48) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return resample(mono(pcm48, ch), 48000, TargetRate), nil
}

// normalize scales signed integer samples of the given bit depth into
// [-1, 1].
func normalize[T int | int16](data []T, bits int) []float32 {
	full := float64(int64(1) << (bits - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(math.Max(-1, math.Min(float64(v)/full, 1)))
	}
	return out
}

// mono averages interleaved frames down to one channel.
func mono(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between rates by linear interpolation. Good enough for
// speech recognition input.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	step := float64(from) / float64(to)
	out := make([]float32, int(math.Ceil(float64(len(in))/step)))
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
