package synth

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

const wavHeaderSize = 44

// writeWAVHeader writes a 44-byte RIFF/WAV header for signed 16-bit LE mono PCM.
// dataSize may be a placeholder that WAVWriter.Close patches later.
func writeWAVHeader(w io.Writer, sampleRate, dataSize uint32) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)

	h := struct {
		RiffID      [4]byte
		RiffSize    uint32
		WaveID      [4]byte
		FmtID       [4]byte
		FmtSize     uint32
		AudioFormat uint16
		NumChannels uint16
		SampleRate  uint32
		ByteRate    uint32
		BlockAlign  uint16
		BitsPerSamp uint16
		DataID      [4]byte
		DataSize    uint32
	}{
		RiffID:      [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:    36 + dataSize,
		WaveID:      [4]byte{'W', 'A', 'V', 'E'},
		FmtID:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:     16,
		AudioFormat: audioFormat,
		NumChannels: numChannels,
		SampleRate:  sampleRate,
		ByteRate:    sampleRate * numChannels * bitsPerSample / 8,
		BlockAlign:  numChannels * bitsPerSample / 8,
		BitsPerSamp: bitsPerSample,
		DataID:      [4]byte{'d', 'a', 't', 'a'},
		DataSize:    dataSize,
	}
	return binary.Write(w, binary.LittleEndian, &h)
}

// PCMWriter consumes rendered blocks.
type PCMWriter interface {
	WritePCM(samples []float32) error
}

// WAVWriter records rendered audio to a 16-bit mono WAV file.
type WAVWriter struct {
	f       *os.File
	rate    uint32
	scratch []byte
	written uint32
}

// CreateWAV creates path and writes a placeholder header.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := writeWAVHeader(f, uint32(sampleRate), 0); err != nil {
		f.Close()
		return nil, err
	}
	return &WAVWriter{f: f, rate: uint32(sampleRate)}, nil
}

func (w *WAVWriter) WritePCM(samples []float32) error {
	need := len(samples) * 2
	if cap(w.scratch) < need {
		w.scratch = make([]byte, need)
	}
	b := w.scratch[:need]
	for i, s := range samples {
		v := int16(math.Round(clamp(float64(s), -1, 1) * math.MaxInt16))
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	n, err := w.f.Write(b)
	w.written += uint32(n)
	return err
}

// Close patches the RIFF and data sizes and closes the file.
func (w *WAVWriter) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	if err := writeWAVHeader(f, w.rate, w.written); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
