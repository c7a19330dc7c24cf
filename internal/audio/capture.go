package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

const (
	// CaptureRate is the microphone sample rate the channel contract expects.
	CaptureRate = 16000
	// PlaybackRate is the sample rate of synthesized audio from the service.
	PlaybackRate = 24000

	captureFrameMillis = 20
)

// Device acquisition failures, classified from the platform layer.
var (
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	ErrDeviceNotFound   = errors.New("audio: no microphone found")
	ErrDeviceBusy       = errors.New("audio: microphone busy")
)

// CaptureCallbacks run on the device's data thread on every frame boundary.
// Both must return quickly and never block.
type CaptureCallbacks struct {
	// OnFrame receives one 20 ms mono s16le frame. The buffer is reused by
	// the device layer; implementations must copy if they keep it.
	OnFrame func(pcm []byte)
	// OnLevel receives the frame's mean magnitude normalized to [0,1].
	OnLevel func(level float64)
}

// Capture owns the audio context and microphone device for one session.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// OpenCapture acquires the default microphone at the fixed session format
// and starts delivering frames. Errors map onto the device error set.
func OpenCapture(cb CaptureCallbacks) (*Capture, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError("init audio context", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = CaptureRate
	cfg.PeriodSizeInMilliseconds = captureFrameMillis

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if cb.OnLevel != nil {
				cb.OnLevel(Level(in))
			}
			if cb.OnFrame != nil {
				cb.OnFrame(in)
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, classifyDeviceError("open microphone", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, classifyDeviceError("start microphone", err)
	}
	return &Capture{ctx: mctx, device: device}, nil
}

// Stop halts and releases the capture device.
func (c *Capture) Stop() {
	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
}

// Release frees the audio context. Call after Stop.
func (c *Capture) Release() {
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx = nil
	}
}

// classifyDeviceError maps platform error text onto the closed device error
// set. The platform layer reports plain strings, so matching is by substring.
func classifyDeviceError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return fmt.Errorf("audio: %s: %w: %v", op, ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found"):
		return fmt.Errorf("audio: %s: %w: %v", op, ErrDeviceNotFound, err)
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return fmt.Errorf("audio: %s: %w: %v", op, ErrDeviceBusy, err)
	default:
		return fmt.Errorf("audio: %s: %w", op, err)
	}
}

// Level returns the mean absolute sample magnitude of a mono s16le frame,
// normalized to [0,1].
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(n) / 32768.0
}
