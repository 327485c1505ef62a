package synth

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWAVWriter_PatchesSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := CreateWAV(path, 8000)
	require.NoError(t, err)

	require.NoError(t, w.WritePCM([]float32{0, 1, -1, 0.5}))
	require.NoError(t, w.WritePCM(make([]float32, 96)))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, b, wavHeaderSize+200)

	require.Equal(t, "RIFF", string(b[0:4]))
	require.Equal(t, "WAVE", string(b[8:12]))
	require.Equal(t, uint32(36+200), binary.LittleEndian.Uint32(b[4:8]))
	require.Equal(t, uint32(8000), binary.LittleEndian.Uint32(b[24:28]))
	require.Equal(t, uint32(200), binary.LittleEndian.Uint32(b[40:44]))

	sample := func(i int) int16 { return int16(binary.LittleEndian.Uint16(b[wavHeaderSize+2*i:])) }
	require.Equal(t, int16(0), sample(0))
	require.Equal(t, int16(32767), sample(1))
	require.Equal(t, int16(-32767), sample(2))
	require.Equal(t, int16(16384), sample(3))
}
