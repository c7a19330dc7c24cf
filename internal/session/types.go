package session

import (
	"context"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/audio"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
)

// Channel is the remote conversational duplex stream.
type Channel interface {
	SendAudio(pcm []byte)
	SendToolResult(res live.ToolResult) error
	Events() <-chan live.Event
	Close() error
}

// Capture is a started microphone acquisition. Stop halts the device;
// Release frees the underlying audio context.
type Capture interface {
	Stop()
	Release()
}

// Player schedules decoded audio segments for ordered playback.
type Player interface {
	Enqueue(pcm []byte)
	Interrupt()
	Close()
}

// Generator produces the short free-form texts behind email drafts and
// troubleshooting tips.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DialFunc opens the remote channel for one conversation attempt.
type DialFunc func(ctx context.Context, userIdentity string) (Channel, error)

// OpenCaptureFunc acquires the microphone and starts frame delivery.
type OpenCaptureFunc func(cb audio.CaptureCallbacks) (Capture, error)

// NewPlayerFunc builds the playback scheduler for one attempt.
type NewPlayerFunc func() (Player, error)
