package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// The oto context cannot be re-created within a process, so it is shared by
// every Speaker and never torn down; per-session resources are the players.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// Speaker plays segments through the OS audio output. Each segment becomes
// its own player; the context mixes concurrent voices.
type Speaker struct {
	ctx *oto.Context
}

// NewSpeaker hands out the process-wide playback context.
func NewSpeaker() (*Speaker, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   PlaybackRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, fmt.Errorf("audio: init speaker: %w", otoErr)
	}
	return &Speaker{ctx: otoCtx}, nil
}

// Start begins playback of one segment immediately.
func (s *Speaker) Start(pcm []byte) (io.Closer, error) {
	player := s.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	return player, nil
}
