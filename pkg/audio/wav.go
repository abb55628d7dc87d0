// Package audio handles the RIFF/WAVE container used for synthesized speech:
// building headers, repairing the length fields of a header captured from
// a stream, and generating placeholder audio.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of a canonical PCM WAV header.
const HeaderSize = 44

// Offsets of the two length-dependent header fields.
const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

// ErrShortHeader is returned when a header is smaller than HeaderSize.
var ErrShortHeader = errors.New("audio: WAV header too short")

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewHeader returns a PCM header describing dataSize bytes of audio.
func NewHeader(sampleRate, channels, bitsPerSample, dataSize int) WAVHeader {
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(HeaderSize - 8 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: uint16(bitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}
}

// Bytes serializes h in little-endian order.
func (h WAVHeader) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	// Writing a fixed-size struct to a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// ParseHeader decodes the first HeaderSize bytes of data.
func ParseHeader(data []byte) (WAVHeader, error) {
	var h WAVHeader
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: need %d bytes, got %d", ErrShortHeader, HeaderSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("audio: read WAV header: %w", err)
	}
	return h, nil
}

// PatchHeader returns a copy of header with the overall RIFF size set to
// len(header)+payloadLen-8 and the data size set to payloadLen.
func PatchHeader(header []byte, payloadLen int) ([]byte, error) {
	if len(header) < HeaderSize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrShortHeader, HeaderSize, len(header))
	}
	out := append([]byte(nil), header...)
	binary.LittleEndian.PutUint32(out[riffSizeOffset:], uint32(len(header)+payloadLen-8))
	binary.LittleEndian.PutUint32(out[dataSizeOffset:], uint32(payloadLen))
	return out, nil
}

// Assemble prepends a repaired copy of header to payload. A nil header
// returns payload unchanged.
func Assemble(header, payload []byte) ([]byte, error) {
	if header == nil {
		return payload, nil
	}
	patched, err := PatchHeader(header, len(payload))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(patched)+len(payload))
	out = append(out, patched...)
	return append(out, payload...), nil
}

// EncodeWAV encodes mono PCM-16 samples into a WAV container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}

	h := NewHeader(sampleRate, 1, 16, len(samples)*2)
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("audio: write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("audio: write samples: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the chunk markers and that both length fields agree
// with the size of data.
func Validate(data []byte) error {
	h, err := ParseHeader(data)
	if err != nil {
		return err
	}
	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return errors.New("audio: missing RIFF marker")
	case string(h.Format[:]) != "WAVE":
		return errors.New("audio: missing WAVE marker")
	case string(h.Subchunk1ID[:]) != "fmt ":
		return errors.New("audio: missing fmt chunk")
	case string(h.Subchunk2ID[:]) != "data":
		return errors.New("audio: missing data chunk")
	}
	if int(h.ChunkSize) != len(data)-8 {
		return fmt.Errorf("audio: RIFF size %d does not match file size %d", h.ChunkSize, len(data))
	}
	if int(h.Subchunk2Size) != len(data)-HeaderSize {
		return fmt.Errorf("audio: data size %d does not match payload %d", h.Subchunk2Size, len(data)-HeaderSize)
	}
	return nil
}

// Duration returns the playback length of data in seconds.
func Duration(data []byte) (float64, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return 0, err
	}
	if h.ByteRate == 0 {
		return 0, errors.New("audio: zero byte rate")
	}
	return float64(h.Subchunk2Size) / float64(h.ByteRate), nil
}
