// Package audio holds the WAV codec and the pitch/energy extraction used by
// the voice flow.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth       = 16
	pcmFormat      = 1
	monoChannels   = 1
	int16FullScale = 1 << (bitDepth - 1)
)

// ErrInvalidWAV is returned for files the decoder does not accept.
var ErrInvalidWAV = errors.New("invalid wav file")

// WriteWAV writes 16-bit mono PCM samples to path, replacing any existing file.
func WriteWAV(path string, samples []int, sampleRate int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, monoChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: monoChannels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return enc.Close()
}

// ReadWAV loads a PCM wav file as mono samples scaled to [-1, 1].
// Multi-channel input is downmixed by averaging.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav decode: %w", err)
	}

	chans := int(d.NumChans)
	if chans < 1 {
		chans = 1
	}
	full := float64(int16FullScale)
	if d.BitDepth > 0 {
		full = float64(int(1) << (int(d.BitDepth) - 1))
	}

	out := make([]float64, len(buf.Data)/chans)
	for i := range out {
		sum := 0
		for c := 0; c < chans; c++ {
			sum += buf.Data[i*chans+c]
		}
		out[i] = float64(sum) / float64(chans) / full
	}
	return out, int(d.SampleRate), nil
}

// PCM16 converts signed little-endian 16-bit bytes to samples.
// A trailing odd byte is ignored.
func PCM16(raw []byte) []int {
	out := make([]int, len(raw)/2)
	for i := range out {
		out[i] = int(int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8))
	}
	return out
}
