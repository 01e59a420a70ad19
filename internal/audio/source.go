package audio

import "context"

// Stream is a running capture as seen by consumers.
type Stream interface {
	Chunks() <-chan []byte
	BytesCaptured() int64
	Stop() error
}

// Source resolves and opens microphone input.
type Source interface {
	Select(context.Context) (Selection, error)
	Open(context.Context, Device) (Stream, error)
}

// PulseSource is the Source backed by the local Pulse server.
type PulseSource struct {
	Input    string
	Fallback string
}

func (p PulseSource) Select(ctx context.Context) (Selection, error) {
	return SelectDevice(ctx, p.Input, p.Fallback)
}

func (p PulseSource) Open(ctx context.Context, device Device) (Stream, error) {
	return StartCapture(ctx, device)
}
