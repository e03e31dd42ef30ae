package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// NumMFCC is the number of cepstral coefficients kept per frame.
	NumMFCC = 13
	// NumMels is the mel filter bank size.
	NumMels = 40
	// HopLength is the STFT hop in samples.
	HopLength = 512
	// FFTSize is the STFT window size in samples.
	FFTSize = 2048
)

// ErrUnsupportedFeature is returned for feature types other than mfcc or mel.
var ErrUnsupportedFeature = errors.New("unsupported feature type")

const logFloor = 1e-10

// Extractor computes framed spectral features from mono waveforms. The FFT
// plan, window and mel bank are built once and reused, so a single Extractor
// should be shared across calls. Extraction itself is read-only and safe for
// concurrent use.
type Extractor struct {
	sampleRate int
	fft        *fourier.FFT
	window     []float64
	melBank    [][]float64
	dct        [][]float64
}

// NewExtractor builds an extractor for SampleRate audio.
func NewExtractor() *Extractor {
	return &Extractor{
		sampleRate: SampleRate,
		fft:        fourier.NewFFT(FFTSize),
		window:     hannWindow(FFTSize),
		melBank:    melFilterBank(NumMels, FFTSize, SampleRate),
		dct:        dctMatrix(NumMFCC, NumMels),
	}
}

// ExtractMFCC returns MFCC features with shape (frames, NumMFCC).
func (e *Extractor) ExtractMFCC(samples []float64) [][]float64 {
	melEnergy := e.melEnergies(samples)

	mfcc := make([][]float64, len(melEnergy))
	logMel := make([]float64, NumMels)
	for t, frame := range melEnergy {
		for m, v := range frame {
			logMel[m] = math.Log(v + logFloor)
		}
		row := make([]float64, NumMFCC)
		for k := 0; k < NumMFCC; k++ {
			var acc float64
			for m := 0; m < NumMels; m++ {
				acc += e.dct[k][m] * logMel[m]
			}
			row[k] = acc
		}
		mfcc[t] = row
	}
	return mfcc
}

// ExtractMel returns a log-power mel spectrogram with shape (frames, NumMels),
// in dB relative to the loudest bin.
func (e *Extractor) ExtractMel(samples []float64) [][]float64 {
	melEnergy := e.melEnergies(samples)

	ref := logFloor
	for _, frame := range melEnergy {
		for _, v := range frame {
			if v > ref {
				ref = v
			}
		}
	}
	refDB := 10 * math.Log10(ref)

	out := make([][]float64, len(melEnergy))
	for t, frame := range melEnergy {
		row := make([]float64, NumMels)
		for m, v := range frame {
			if v < logFloor {
				v = logFloor
			}
			row[m] = 10*math.Log10(v) - refDB
		}
		out[t] = row
	}
	return out
}

// Extract dispatches on featureType ("mfcc" or "mel").
func (e *Extractor) Extract(samples []float64, featureType string) ([][]float64, error) {
	switch strings.ToLower(featureType) {
	case "mfcc":
		return e.ExtractMFCC(samples), nil
	case "mel":
		return e.ExtractMel(samples), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFeature, featureType)
	}
}

// melEnergies computes the per-frame mel filter bank energies. Frames are
// centered: the signal is padded by FFTSize/2 on both sides, giving
// 1 + len/HopLength frames for any input.
func (e *Extractor) melEnergies(samples []float64) [][]float64 {
	half := FFTSize / 2
	padded := make([]float64, len(samples)+FFTSize)
	copy(padded[half:], samples)

	numFrames := 1 + len(samples)/HopLength
	numBins := half + 1

	energies := make([][]float64, numFrames)
	frame := make([]float64, FFTSize)
	power := make([]float64, numBins)
	coeffs := make([]complex128, numBins)

	for t := 0; t < numFrames; t++ {
		start := t * HopLength
		for i := 0; i < FFTSize; i++ {
			frame[i] = padded[start+i] * e.window[i]
		}
		coeffs = e.fft.Coefficients(coeffs, frame)
		for i, c := range coeffs {
			power[i] = real(c)*real(c) + imag(c)*imag(c)
		}

		row := make([]float64, NumMels)
		for m, filter := range e.melBank {
			var acc float64
			for i, w := range filter {
				if w != 0 {
					acc += w * power[i]
				}
			}
			row[m] = acc
		}
		energies[t] = row
	}
	return energies
}

// Flatten converts a (frames, coeffs) matrix into the 1-D vector fed to the
// classifiers. Row-major, frame order preserved.
func Flatten(features [][]float64) []float64 {
	if len(features) == 0 {
		return nil
	}
	out := make([]float64, 0, len(features)*len(features[0]))
	for _, row := range features {
		out = append(out, row...)
	}
	return out
}

func hannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return window
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank builds numMels triangular filters spanning 0..sampleRate/2.
func melFilterBank(numMels, fftSize, sampleRate int) [][]float64 {
	numBins := fftSize/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	// numMels+2 equally spaced points on the mel scale.
	binFreqs := make([]float64, numMels+2)
	for i := range binFreqs {
		hz := melToHz(maxMel * float64(i) / float64(numMels+1))
		binFreqs[i] = hz
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		lower, center, upper := binFreqs[m], binFreqs[m+1], binFreqs[m+2]
		filter := make([]float64, numBins)
		for i := 0; i < numBins; i++ {
			freq := float64(i) * float64(sampleRate) / float64(fftSize)
			switch {
			case freq >= lower && freq <= center && center > lower:
				filter[i] = (freq - lower) / (center - lower)
			case freq > center && freq <= upper && upper > center:
				filter[i] = (upper - freq) / (upper - center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix builds an orthonormal DCT-II matrix of shape (numCoeffs, size).
func dctMatrix(numCoeffs, size int) [][]float64 {
	matrix := make([][]float64, numCoeffs)
	for k := 0; k < numCoeffs; k++ {
		row := make([]float64, size)
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}
		for n := 0; n < size; n++ {
			row[n] = scale * math.Cos(math.Pi*float64(k)*(2*float64(n)+1)/(2*float64(size)))
		}
		matrix[k] = row
	}
	return matrix
}
