package pipeline

import (
	"encoding/binary"
	"errors"
	"math"
)

var errBadWAV = errors.New("not a PCM WAV clip")

const maxWaveformChunks = 50

// analyzeWAV decodes a PCM WAV clip and returns its duration in seconds
// (two decimals) plus a per-chunk loudness series normalized to 0..100.
// The clip is split into min(50, seconds+2) chunks so short clips still get
// a couple of bars and long ones stay bounded.
func analyzeWAV(data []byte) (float64, []int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, nil, errBadWAV
	}

	var (
		sampleRate    uint32
		bitsPerSample uint16
		numChannels   uint16
		blockAlign    uint16
		pcm           []byte
	)

	// Walk the RIFF chunks; only "fmt " and "data" matter.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return 0, nil, errBadWAV
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return 0, nil, errBadWAV
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM only
				return 0, nil, errBadWAV
			}
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			blockAlign = binary.LittleEndian.Uint16(data[body+12 : body+14])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if pcm == nil || sampleRate == 0 || blockAlign == 0 || numChannels == 0 {
		return 0, nil, errBadWAV
	}
	if bitsPerSample != 8 && bitsPerSample != 16 {
		return 0, nil, errBadWAV
	}

	frames := len(pcm) / int(blockAlign)
	if frames == 0 {
		return 0, nil, errBadWAV
	}
	seconds := float64(frames) / float64(sampleRate)

	chunkCount := int(seconds) + 2
	if chunkCount > maxWaveformChunks {
		chunkCount = maxWaveformChunks
	}
	chunkFrames := frames / chunkCount
	if chunkFrames == 0 {
		chunkFrames = 1
	}

	sampleAt := func(frame int) float64 {
		// First channel only; loudness does not need the full mix.
		base := frame * int(blockAlign)
		if bitsPerSample == 8 {
			return float64(int(pcm[base]) - 128)
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[base : base+2])))
	}

	var loudness []float64
	for i := 0; i < chunkCount && i*chunkFrames < frames; i++ {
		start := i * chunkFrames
		end := start + chunkFrames
		// The remainder folds into the last chunk.
		if i == chunkCount-1 || end > frames {
			end = frames
		}
		var sum float64
		for f := start; f < end; f++ {
			s := sampleAt(f)
			sum += s * s
		}
		loudness = append(loudness, math.Sqrt(sum/float64(end-start)))
	}

	var max float64
	for _, v := range loudness {
		if v > max {
			max = v
		}
	}
	volume := make([]int, len(loudness))
	if max > 0 {
		for i, v := range loudness {
			volume[i] = int(v / max * 100)
		}
	}

	return math.Round(seconds*100) / 100, volume, nil
}
