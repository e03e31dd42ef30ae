package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// DecodeWAV reads a RIFF/WAVE file and returns mono samples resampled to the
// requested rate. PCM16 and IEEE float32 encodings are supported; multi-channel
// input is downmixed by averaging.
func DecodeWAV(path string, targetRate int) ([]float64, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeWAVBytes(payload, targetRate)
}

func decodeWAVBytes(payload []byte, targetRate int) ([]float64, error) {
	if len(payload) < 44 {
		return nil, errors.New("wav: file too short")
	}
	if string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		return nil, errors.New("wav: not a RIFF/WAVE file")
	}

	var (
		format      uint16
		channels    int
		sampleRate  int
		bitsPerSamp int
		data        []byte
	)

	// Walk chunks; fmt must precede data.
	offset := 12
	for offset+8 <= len(payload) {
		chunkID := string(payload[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(payload[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(payload) {
			chunkSize = len(payload) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("wav: malformed fmt chunk")
			}
			format = binary.LittleEndian.Uint16(payload[body : body+2])
			channels = int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			bitsPerSamp = int(binary.LittleEndian.Uint16(payload[body+14 : body+16]))
		case "data":
			data = payload[body : body+chunkSize]
		}
		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
		if data != nil && sampleRate != 0 {
			break
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if data == nil {
		return nil, errors.New("wav: missing data chunk")
	}

	var samples []float64
	switch {
	case format == 1 && bitsPerSamp == 16:
		samples = decodePCM16(data, channels)
	case format == 3 && bitsPerSamp == 32:
		samples = decodeFloat32(data, channels)
	default:
		return nil, fmt.Errorf("wav: unsupported encoding (format=%d bits=%d)", format, bitsPerSamp)
	}

	if sampleRate != targetRate {
		samples = resampleLinear(samples, sampleRate, targetRate)
	}
	return samples, nil
}

func decodePCM16(data []byte, channels int) []float64 {
	frameBytes := 2 * channels
	n := len(data) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[i*frameBytes+2*c:]))
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

func decodeFloat32(data []byte, channels int) []float64 {
	frameBytes := 4 * channels
	n := len(data) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint32(data[i*frameBytes+4*c:])
			sum += float64(math.Float32frombits(bits))
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

// resampleLinear converts between sample rates by linear interpolation. Good
// enough for speech at the rates involved here.
func resampleLinear(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// WriteWAV writes mono samples as a PCM16 WAV file.
func WriteWAV(w io.Writer, samples []float64, sampleRate int) error {
	dataSize := len(samples) * 2

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	buf := make([]byte, dataSize)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}
	_, err := w.Write(buf)
	return err
}
