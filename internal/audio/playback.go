package audio

import (
	"io"
	"log"
	"sync"
	"time"
)

// Sink starts immediate playback of one PCM segment as an independent voice
// and returns a handle that releases the voice's resources.
type Sink interface {
	Start(pcm []byte) (io.Closer, error)
}

// voiceDrainSlack is how long after a voice's nominal end its handle is kept
// before being reaped, covering output buffering in the sink.
const voiceDrainSlack = 250 * time.Millisecond

const segmentQueueLen = 64

type segment struct {
	pcm []byte
	gen uint64
}

type voice struct {
	handle io.Closer
	end    time.Time
}

// Scheduler orders inbound audio segments on a single "next start" cursor:
// each segment starts at max(cursor, now) and advances the cursor by its
// duration, which keeps playback sequential and gap-free even though
// segments arrive as discrete messages with jitter.
//
// Interrupt discards segments that have not started and resets the cursor to
// now; a voice that already started keeps playing until its own end.
type Scheduler struct {
	sink Sink
	rate int

	mu     sync.Mutex
	cursor time.Time
	gen    uint64
	voices []voice

	segs      chan segment
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewScheduler starts the scheduling loop over the given sink. rate is the
// segment sample rate (mono s16le).
func NewScheduler(sink Sink, rate int) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		rate:   rate,
		segs:   make(chan segment, segmentQueueLen),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue schedules one decoded segment after all previously enqueued audio.
func (s *Scheduler) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	select {
	case s.segs <- segment{pcm: pcm, gen: gen}:
	case <-s.stopCh:
	}
}

// Interrupt discards all scheduled-but-not-started segments and resets the
// cursor to the current clock time. Already-started audio is not stopped.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.gen++
	s.cursor = time.Now()
	s.mu.Unlock()
	for {
		select {
		case <-s.segs:
		default:
			return
		}
	}
}

// Close stops the loop and releases every live voice. Safe to call twice.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
	s.mu.Lock()
	voices := s.voices
	s.voices = nil
	s.mu.Unlock()
	for _, v := range voices {
		_ = v.handle.Close()
	}
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case seg := <-s.segs:
			s.mu.Lock()
			if seg.gen != s.gen {
				s.mu.Unlock()
				continue
			}
			now := time.Now()
			start := s.cursor
			if start.Before(now) {
				start = now
			}
			dur := Duration(len(seg.pcm), s.rate)
			s.cursor = start.Add(dur)
			s.mu.Unlock()

			if !s.waitUntil(start) {
				return
			}
			s.mu.Lock()
			stale := seg.gen != s.gen
			s.mu.Unlock()
			if stale {
				continue
			}
			handle, err := s.sink.Start(seg.pcm)
			if err != nil {
				log.Printf("playback: start segment: %v", err)
				continue
			}
			s.track(handle, start.Add(dur))
		}
	}
}

// waitUntil sleeps until t or shutdown; it reports false on shutdown.
func (s *Scheduler) waitUntil(t time.Time) bool {
	wait := time.Until(t)
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	}
}

// track registers a started voice and reaps voices past their end.
func (s *Scheduler) track(handle io.Closer, end time.Time) {
	now := time.Now()
	s.mu.Lock()
	kept := s.voices[:0]
	for _, v := range s.voices {
		if now.After(v.end.Add(voiceDrainSlack)) {
			_ = v.handle.Close()
			continue
		}
		kept = append(kept, v)
	}
	s.voices = append(kept, voice{handle: handle, end: end})
	s.mu.Unlock()
}

// nextStart reports the cursor value; zero means playback has not begun.
func (s *Scheduler) nextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Duration converts a mono s16le byte count at the given rate to wall time.
func Duration(byteLen, rate int) time.Duration {
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(rate)
}
