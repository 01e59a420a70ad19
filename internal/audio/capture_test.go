package audio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureChunksAndStopFlushesResidual(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"})

	input := make([]byte, chunkSizeBytes*2+111)
	for i := range input {
		input[i] = byte(i % 251)
	}

	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), capture.BytesCaptured())

	first := <-capture.Chunks()
	second := <-capture.Chunks()
	require.Len(t, first, chunkSizeBytes)
	require.Len(t, second, chunkSizeBytes)
	require.Equal(t, input[:chunkSizeBytes], first)

	require.NoError(t, capture.Stop())
	residual, ok := <-capture.Chunks()
	require.True(t, ok)
	require.Equal(t, input[chunkSizeBytes*2:], residual)

	_, ok = <-capture.Chunks()
	require.False(t, ok)
	require.NoError(t, capture.Stop())
}

func TestCaptureRejectsPCMAfterStop(t *testing.T) {
	capture := newCapture(Device{})
	capture.Close()

	n, err := capture.onPCM([]byte{1, 2, 3})
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, capture.BytesCaptured())
}

func TestCaptureEmptyBufferIsNoop(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"})
	n, err := capture.onPCM(nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "mic-1", capture.Device().ID)
}

func TestCaptureSatisfiesStream(t *testing.T) {
	var _ Stream = newCapture(Device{})
	var _ Source = PulseSource{}
}
