package whisper

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// targetSampleRate is the only rate whisper.cpp accepts.
const targetSampleRate = 16000

// ErrUnsupportedFormat is returned when an upload cannot be decoded locally.
var ErrUnsupportedFormat = errors.New("unsupported audio format for local decoding")

// decodeMono16k decodes a WAV or MP3 upload into mono float32 samples at
// 16 kHz in [-1, 1]. The extension picks the decoder; files without a known
// extension are sniffed by their magic bytes.
func decodeMono16k(audio stt.Audio) ([]float32, error) {
	switch audio.Ext() {
	case ".wav":
		return decodeWAV(bytes.NewReader(audio.Data))
	case ".mp3":
		return decodeMP3(bytes.NewReader(audio.Data))
	}

	switch {
	case bytes.HasPrefix(audio.Data, []byte("RIFF")):
		return decodeWAV(bytes.NewReader(audio.Data))
	case bytes.HasPrefix(audio.Data, []byte("ID3")),
		len(audio.Data) > 1 && audio.Data[0] == 0xFF && audio.Data[1]&0xE0 == 0xE0:
		return decodeMP3(bytes.NewReader(audio.Data))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, audio.Ext())
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav pcm: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("wav file has no samples")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	channels, rate := 1, int(dec.SampleRate)
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}

	samples := intsToFloat32(buf.Data, bitDepth)
	samples = downmix(samples, channels)
	return resample(samples, rate, targetSampleRate), nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit little-endian stereo.
func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read mp3 pcm: %w", err)
	}
	if len(raw) < 4 {
		return nil, errors.New("mp3 file has no samples")
	}

	samples := pcm16ToFloat32(raw)
	samples = downmix(samples, 2)
	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return resample(samples, rate, targetSampleRate), nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(max(-1, min(1, float64(v)*scale)))
	}
	return out
}

// pcm16ToFloat32 converts 16-bit signed little-endian PCM to float32. A
// trailing odd byte is ignored.
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// downmix averages interleaved frames into a single channel.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between rates with linear interpolation.
func resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range n {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
