package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/audio"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
)

// State is the session connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var errConnectAborted = errors.New("session: torn down during connect")

// Deps are the collaborators one session is wired with.
type Deps struct {
	Dial        DialFunc
	OpenCapture OpenCaptureFunc
	NewPlayer   NewPlayerFunc
	Generator   Generator
	Listener    Listener
}

// Session owns one conversation attempt at a time: the capture device, the
// playback scheduler and the remote channel, plus the cleanup actions that
// release them. At most one session is active per instance.
type Session struct {
	deps Deps

	mu       sync.Mutex
	state    State
	attempt  uint64
	id       string
	channel  Channel
	capture  Capture
	player   Player
	cleanup  []func()
	listener Listener
}

// New builds an idle session. Connect starts a conversation attempt.
func New(deps Deps) *Session {
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	return &Session{deps: deps, state: StateDisconnected, listener: NopListener{}}
}

// State reports the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect acquires the audio device, dials the remote channel and wires
// capture, playback and tool dispatch together. It is the only transition
// out of the disconnected state. On device failure it reports a localized
// message through the listener and settles back in the disconnected state.
func (s *Session) Connect(ctx context.Context, userIdentity string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: connect while %s", state)
	}
	s.state = StateConnecting
	s.attempt++
	attempt := s.attempt
	s.id = uuid.NewString()
	s.listener = s.deps.Listener
	id := s.id
	s.mu.Unlock()

	log.Printf("[%s] connecting (user=%s)", id, userIdentity)

	player, err := s.deps.NewPlayer()
	if err != nil {
		return s.failConnect(id, attempt, "No se pudo iniciar la salida de audio.",
			fmt.Errorf("session: create player: %w", err))
	}
	if !s.addCleanup(attempt, player.Close) {
		return errConnectAborted
	}

	// Frames may arrive before the channel is dialed; they are dropped until
	// the session commits the handle.
	cb := audio.CaptureCallbacks{
		OnLevel: func(level float64) { s.events().Volume(level) },
		OnFrame: func(pcm []byte) {
			if ch := s.currentChannel(); ch != nil {
				ch.SendAudio(pcm)
			}
		},
	}
	capture, err := s.deps.OpenCapture(cb)
	if err != nil {
		return s.failConnect(id, attempt, deviceErrorMessage(err),
			fmt.Errorf("session: open capture: %w", err))
	}
	// Registered in acquisition order so teardown runs channel, device stop,
	// context release, player.
	if !s.addCleanup(attempt, func() {
		capture.Stop()
		capture.Release()
	}) {
		return errConnectAborted
	}

	channel, err := s.deps.Dial(ctx, userIdentity)
	if err != nil {
		return s.failConnect(id, attempt, "No se pudo conectar con el servicio de voz.",
			fmt.Errorf("session: dial channel: %w", err))
	}
	if !s.addCleanup(attempt, func() { _ = channel.Close() }) {
		return errConnectAborted
	}

	s.mu.Lock()
	if s.attempt != attempt || s.state != StateConnecting {
		s.mu.Unlock()
		return errConnectAborted
	}
	s.state = StateConnected
	s.channel = channel
	s.capture = capture
	s.player = player
	s.mu.Unlock()

	disp := &dispatcher{sess: s, channel: channel, gen: s.deps.Generator, logID: id}
	go s.loop(id, channel, player, disp)

	log.Printf("[%s] connected", id)
	return nil
}

// Disconnect tears the session down. Idempotent and callable from any state;
// cleanup actions run exactly once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if s.teardown() {
		log.Printf("[%s] disconnected", id)
	}
}

// loop reacts to inbound channel events until the stream closes. Remote
// close and remote error both end in the shared teardown path.
func (s *Session) loop(id string, ch Channel, player Player, disp *dispatcher) {
	for ev := range ch.Events() {
		switch ev.Kind {
		case live.EventAudio:
			player.Enqueue(ev.Audio)
		case live.EventInterrupted:
			log.Printf("[%s] user interruption, truncating playback", id)
			player.Interrupt()
		case live.EventToolCall:
			if ev.Invocation != nil {
				disp.dispatch(*ev.Invocation)
			}
		case live.EventError:
			log.Printf("[%s] channel error: %v", id, ev.Err)
			s.events().Error("Error de conexión con el servicio de voz.")
		case live.EventTurnComplete, live.EventClosed:
			// the stream ends right after EventClosed
		}
	}
	if s.teardown() {
		log.Printf("[%s] remote channel closed", id)
	}
}

// teardown runs every registered cleanup action exactly once, clears the
// handles and swaps the listener for a no-op so late background completions
// land harmlessly. It reports whether this call performed the teardown.
func (s *Session) teardown() bool {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return false
	}
	s.attempt++
	cleanups := s.cleanup
	s.cleanup = nil
	s.channel = nil
	s.capture = nil
	s.player = nil
	s.state = StateDisconnected
	listener := s.listener
	s.listener = NopListener{}
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	listener.Closed()
	return true
}

// failConnect releases whatever the attempt acquired, surfaces the localized
// message and settles the state machine back in disconnected.
func (s *Session) failConnect(id string, attempt uint64, message string, err error) error {
	log.Printf("[%s] connect failed: %v", id, err)
	s.mu.Lock()
	if s.attempt != attempt {
		// A concurrent teardown already released everything.
		s.mu.Unlock()
		return err
	}
	cleanups := s.cleanup
	s.cleanup = nil
	s.state = StateError
	listener := s.listener
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	listener.Error(message)

	s.mu.Lock()
	if s.attempt == attempt {
		s.state = StateDisconnected
		s.listener = NopListener{}
	}
	s.mu.Unlock()
	return err
}

// addCleanup registers a release action for the given attempt. When the
// attempt is already gone the action runs immediately and false is returned.
func (s *Session) addCleanup(attempt uint64, fn func()) bool {
	s.mu.Lock()
	if s.attempt != attempt || s.state != StateConnecting {
		s.mu.Unlock()
		fn()
		return false
	}
	s.cleanup = append(s.cleanup, fn)
	s.mu.Unlock()
	return true
}

// events returns the active listener; after teardown it is a no-op.
func (s *Session) events() Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

func (s *Session) currentChannel() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func deviceErrorMessage(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Permiso de micrófono denegado. Habilítalo en la configuración del sistema."
	case errors.Is(err, audio.ErrDeviceNotFound):
		return "No se encontró ningún micrófono."
	case errors.Is(err, audio.ErrDeviceBusy):
		return "El micrófono está siendo utilizado por otra aplicación."
	default:
		return "No se pudo acceder al micrófono."
	}
}
