package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfigueroasmc/soporte-Sistemas/internal/audio"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/live"
	"github.com/mfigueroasmc/soporte-Sistemas/internal/support"
)

const eventTimeout = 2 * time.Second

// callOrder records resource release order across fakes.
type callOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *callOrder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *callOrder) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

type fakeChannel struct {
	order   *callOrder
	events  chan live.Event
	results chan live.ToolResult
	once    sync.Once

	mu     sync.Mutex
	frames [][]byte
	closes int
}

func newFakeChannel(order *callOrder) *fakeChannel {
	return &fakeChannel{
		order:   order,
		events:  make(chan live.Event, 16),
		results: make(chan live.ToolResult, 16),
	}
}

func (f *fakeChannel) SendAudio(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), pcm...))
}

func (f *fakeChannel) SendToolResult(res live.ToolResult) error {
	f.results <- res
	return nil
}

func (f *fakeChannel) Events() <-chan live.Event { return f.events }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.order.add("channel.close")
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeChannel) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type fakeCapture struct {
	order    *callOrder
	stops    atomic.Int32
	releases atomic.Int32
}

func (f *fakeCapture) Stop() {
	f.stops.Add(1)
	f.order.add("capture.stop")
}

func (f *fakeCapture) Release() {
	f.releases.Add(1)
	f.order.add("capture.release")
}

type fakePlayer struct {
	order *callOrder

	mu         sync.Mutex
	enqueued   [][]byte
	interrupts int
	closes     int
}

func (f *fakePlayer) Enqueue(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, append([]byte(nil), pcm...))
}

func (f *fakePlayer) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
}

func (f *fakePlayer) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.order.add("player.close")
}

func (f *fakePlayer) enqueueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func (f *fakePlayer) interruptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

func (f *fakePlayer) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeGenerator answers with a canned reply. When gate is set it blocks
// until the gate closes, which lets tests observe in-flight generation.
type fakeGenerator struct {
	reply string
	err   error
	gate  chan struct{}

	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type recListener struct {
	volumes   chan float64
	tickets   chan support.TicketRecord
	solutions chan support.SolutionSet
	emails    chan support.EmailDraft
	errs      chan string
	closed    chan struct{}
}

func newRecListener() *recListener {
	return &recListener{
		volumes:   make(chan float64, 16),
		tickets:   make(chan support.TicketRecord, 4),
		solutions: make(chan support.SolutionSet, 4),
		emails:    make(chan support.EmailDraft, 4),
		errs:      make(chan string, 4),
		closed:    make(chan struct{}, 4),
	}
}

func (l *recListener) Volume(v float64)                     { l.volumes <- v }
func (l *recListener) TicketCreated(t support.TicketRecord) { l.tickets <- t }
func (l *recListener) SolutionsReady(s support.SolutionSet) { l.solutions <- s }
func (l *recListener) EmailReady(d support.EmailDraft)      { l.emails <- d }
func (l *recListener) Error(msg string)                     { l.errs <- msg }
func (l *recListener) Closed()                              { l.closed <- struct{}{} }

type harness struct {
	sess    *Session
	channel *fakeChannel
	capture *fakeCapture
	player  *fakePlayer
	gen     *fakeGenerator
	lis     *recListener
	order   *callOrder
	cb      audio.CaptureCallbacks
}

func newHarness() *harness {
	order := &callOrder{}
	h := &harness{
		channel: newFakeChannel(order),
		capture: &fakeCapture{order: order},
		player:  &fakePlayer{order: order},
		gen:     &fakeGenerator{},
		lis:     newRecListener(),
		order:   order,
	}
	h.sess = New(Deps{
		Dial: func(ctx context.Context, userIdentity string) (Channel, error) {
			return h.channel, nil
		},
		OpenCapture: func(cb audio.CaptureCallbacks) (Capture, error) {
			h.cb = cb
			return h.capture, nil
		},
		NewPlayer: func() (Player, error) { return h.player, nil },
		Generator: h.gen,
		Listener:  h.lis,
	})
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.sess.Connect(context.Background(), "Prueba"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func (h *harness) waitResult(t *testing.T) live.ToolResult {
	t.Helper()
	select {
	case res := <-h.channel.results:
		return res
	case <-time.After(eventTimeout):
		t.Fatalf("timed out waiting for tool result")
		return live.ToolResult{}
	}
}

func (h *harness) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-h.lis.closed:
	case <-time.After(eventTimeout):
		t.Fatalf("timed out waiting for closed notification")
	}
}

func waitCondition(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnect_RoutesAudioBothWays(t *testing.T) {
	h := newHarness()
	h.connect(t)
	if got := h.sess.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}

	h.channel.events <- live.Event{Kind: live.EventAudio, Audio: []byte{1, 0, 2, 0}}
	waitCondition(t, "remote audio to reach the player", func() bool {
		return h.player.enqueueCount() == 1
	})

	h.cb.OnFrame([]byte{5, 0, 6, 0})
	if got := h.channel.frameCount(); got != 1 {
		t.Fatalf("frames sent = %d, want 1", got)
	}

	h.cb.OnLevel(0.42)
	select {
	case v := <-h.lis.volumes:
		if v != 0.42 {
			t.Fatalf("volume = %v, want 0.42", v)
		}
	default:
		t.Fatalf("no volume reported")
	}

	h.sess.Disconnect()
}

func TestConnect_InterruptionTruncatesPlayback(t *testing.T) {
	h := newHarness()
	h.connect(t)
	defer h.sess.Disconnect()

	h.channel.events <- live.Event{Kind: live.EventInterrupted}
	waitCondition(t, "playback interrupt", func() bool {
		return h.player.interruptCount() == 1
	})
}

func TestConnect_WhileActiveFails(t *testing.T) {
	h := newHarness()
	h.connect(t)
	defer h.sess.Disconnect()

	if err := h.sess.Connect(context.Background(), "Prueba"); err == nil {
		t.Fatalf("second Connect should fail while connected")
	}
}

func TestConnect_CaptureFailureReportsLocalizedError(t *testing.T) {
	order := &callOrder{}
	player := &fakePlayer{order: order}
	lis := newRecListener()
	dialed := false
	sess := New(Deps{
		Dial: func(context.Context, string) (Channel, error) {
			dialed = true
			return newFakeChannel(order), nil
		},
		OpenCapture: func(audio.CaptureCallbacks) (Capture, error) {
			return nil, fmt.Errorf("mic: %w", audio.ErrPermissionDenied)
		},
		NewPlayer: func() (Player, error) { return player, nil },
		Generator: &fakeGenerator{},
		Listener:  lis,
	})

	if err := sess.Connect(context.Background(), "Prueba"); err == nil {
		t.Fatalf("expected connect error")
	}
	select {
	case msg := <-lis.errs:
		want := "Permiso de micrófono denegado. Habilítalo en la configuración del sistema."
		if msg != want {
			t.Fatalf("message = %q, want %q", msg, want)
		}
	default:
		t.Fatalf("no error reported to listener")
	}
	if dialed {
		t.Fatalf("dial should not run after a capture failure")
	}
	if got := player.closeCount(); got != 1 {
		t.Fatalf("player closes = %d, want 1", got)
	}
	if got := sess.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}
}

func TestConnect_DialFailureReleasesDevice(t *testing.T) {
	order := &callOrder{}
	capture := &fakeCapture{order: order}
	player := &fakePlayer{order: order}
	lis := newRecListener()
	sess := New(Deps{
		Dial: func(context.Context, string) (Channel, error) {
			return nil, errors.New("handshake refused")
		},
		OpenCapture: func(audio.CaptureCallbacks) (Capture, error) {
			return capture, nil
		},
		NewPlayer: func() (Player, error) { return player, nil },
		Generator: &fakeGenerator{},
		Listener:  lis,
	})

	if err := sess.Connect(context.Background(), "Prueba"); err == nil {
		t.Fatalf("expected connect error")
	}
	select {
	case msg := <-lis.errs:
		if msg != "No se pudo conectar con el servicio de voz." {
			t.Fatalf("unexpected message %q", msg)
		}
	default:
		t.Fatalf("no error reported to listener")
	}
	if capture.stops.Load() != 1 || capture.releases.Load() != 1 {
		t.Fatalf("capture stops=%d releases=%d, want 1/1", capture.stops.Load(), capture.releases.Load())
	}
	if got := player.closeCount(); got != 1 {
		t.Fatalf("player closes = %d, want 1", got)
	}
}

func TestDisconnect_RunsCleanupsOnceInOrder(t *testing.T) {
	h := newHarness()
	h.connect(t)

	h.sess.Disconnect()
	h.sess.Disconnect()
	h.waitClosed(t)

	want := []string{"channel.close", "capture.stop", "capture.release", "player.close"}
	got := h.order.list()
	if len(got) != len(want) {
		t.Fatalf("cleanup calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cleanup calls = %v, want %v", got, want)
		}
	}
	if got := h.sess.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}

	// Late capture callbacks after teardown go nowhere.
	h.cb.OnFrame([]byte{9, 0})
	if got := h.channel.frameCount(); got != 0 {
		t.Fatalf("frames after disconnect = %d, want 0", got)
	}
	h.cb.OnLevel(0.9)
	time.Sleep(50 * time.Millisecond)
	select {
	case v := <-h.lis.volumes:
		t.Fatalf("unexpected volume %v after disconnect", v)
	case <-h.lis.closed:
		t.Fatalf("closed reported twice")
	default:
	}
}

func TestRemoteClose_TearsDownSession(t *testing.T) {
	h := newHarness()
	h.connect(t)

	h.channel.Close()
	h.waitClosed(t)
	waitCondition(t, "state to settle", func() bool {
		return h.sess.State() == StateDisconnected
	})
	if got := h.player.closeCount(); got != 1 {
		t.Fatalf("player closes = %d, want 1", got)
	}
	if got := h.capture.stops.Load(); got != 1 {
		t.Fatalf("capture stops = %d, want 1", got)
	}
}

func TestRemoteError_ReportsLocalizedMessage(t *testing.T) {
	h := newHarness()
	h.connect(t)

	h.channel.events <- live.Event{Kind: live.EventError, Err: errors.New("read: reset")}
	select {
	case msg := <-h.lis.errs:
		if msg != "Error de conexión con el servicio de voz." {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(eventTimeout):
		t.Fatalf("no error reported to listener")
	}

	h.channel.Close()
	h.waitClosed(t)
}

func TestReconnect_AfterDisconnectStartsFresh(t *testing.T) {
	h := newHarness()
	h.connect(t)
	h.sess.Disconnect()
	h.waitClosed(t)

	// The channel fake is single-use; swap in a fresh one for the second run.
	h.channel = newFakeChannel(h.order)
	h.connect(t)
	defer h.sess.Disconnect()
	if got := h.sess.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	h.cb.OnLevel(0.1)
	select {
	case <-h.lis.volumes:
	case <-time.After(eventTimeout):
		t.Fatalf("listener not rewired on reconnect")
	}
}
