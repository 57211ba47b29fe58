package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/maastricht-university/truth-detector/scoring"
)

// ErrNoVoicedFrames means the pitch tracker found nothing to average.
var ErrNoVoicedFrames = errors.New("no voiced frames detected")

// PitchOptions mirror the usual piptrack defaults.
type PitchOptions struct {
	NFFT      int
	Hop       int
	FMin      float64
	FMax      float64
	Threshold float64
}

// DefaultPitchOptions: n_fft 2048, hop 512, 150-4000 Hz, threshold 0.1.
func DefaultPitchOptions() PitchOptions {
	return PitchOptions{NFFT: 2048, Hop: 512, FMin: 150, FMax: 4000, Threshold: 0.1}
}

// Piptrack returns one row of pitch candidates (Hz) per STFT frame.
// Entries that are not thresholded spectral peaks are 0.
func Piptrack(samples []float64, sampleRate int, opt PitchOptions) [][]float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}
	n := opt.NFFT
	bins := n/2 + 1
	window := hann(n)
	fft := fourier.NewFFT(n)
	padded := centerPad(samples, n/2)

	binHz := float64(sampleRate) / float64(n)
	frame := make([]float64, n)
	coeff := make([]complex128, bins)
	mag := make([]float64, bins)

	var out [][]float64
	for start := 0; start+n <= len(padded); start += opt.Hop {
		for i := range frame {
			frame[i] = padded[start+i] * window[i]
		}
		coeff = fft.Coefficients(coeff, frame)
		ref := 0.0
		for i, c := range coeff {
			mag[i] = cmplx.Abs(c)
			ref = math.Max(ref, mag[i])
		}

		row := make([]float64, bins)
		for i := 1; i < bins; i++ {
			f := float64(i) * binHz
			if f < opt.FMin || f >= opt.FMax {
				continue
			}
			if !peak(mag, i, ref*opt.Threshold) {
				continue
			}
			row[i] = (float64(i) + parabolicShift(mag, i)) * binHz
		}
		out = append(out, row)
	}
	return out
}

// RMS returns the root-mean-square energy per centred frame.
func RMS(samples []float64, frameLength, hop int) []float64 {
	if len(samples) == 0 {
		return nil
	}
	padded := centerPad(samples, frameLength/2)
	var out []float64
	for start := 0; start+frameLength <= len(padded); start += hop {
		sum := 0.0
		for _, v := range padded[start : start+frameLength] {
			sum += v * v
		}
		out = append(out, math.Sqrt(sum/float64(frameLength)))
	}
	return out
}

// Extract computes the features the voice classifier consumes.
func Extract(samples []float64, sampleRate int) (scoring.VoiceFeatures, error) {
	opt := DefaultPitchOptions()
	var voiced []float64
	for _, row := range Piptrack(samples, sampleRate, opt) {
		for _, p := range row {
			if p > 0 {
				voiced = append(voiced, p)
			}
		}
	}
	if len(voiced) == 0 {
		return scoring.VoiceFeatures{}, ErrNoVoicedFrames
	}
	return scoring.VoiceFeatures{
		MeanPitchHz: stat.Mean(voiced, nil),
		MeanEnergy:  stat.Mean(RMS(samples, opt.NFFT, opt.Hop), nil),
	}, nil
}

// peak reports a local maximum over frequency that clears the floor.
// The last bin compares against itself on the right.
func peak(mag []float64, i int, floor float64) bool {
	v := mag[i]
	if v <= floor {
		return false
	}
	left := mag[i-1]
	if left <= floor {
		left = 0
	}
	right := v
	if i+1 < len(mag) {
		right = mag[i+1]
		if right <= floor {
			right = 0
		}
	}
	return v > left && v >= right
}

func parabolicShift(mag []float64, i int) float64 {
	if i+1 >= len(mag) {
		return 0
	}
	avg := 0.5 * (mag[i+1] - mag[i-1])
	curv := 2*mag[i] - mag[i+1] - mag[i-1]
	if math.Abs(curv) < math.SmallestNonzeroFloat64 {
		curv = 1
	}
	return avg / curv
}

// hann is the periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func centerPad(samples []float64, pad int) []float64 {
	out := make([]float64, len(samples)+2*pad)
	copy(out[pad:], samples)
	return out
}
