package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHost    = "generativelanguage.googleapis.com"
	bidiPath       = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	dialTimeout    = 10 * time.Second
	setupTimeout   = 15 * time.Second
	eventBufferLen = 256
	sendQueueLen   = 256
	dropLogEvery   = 50
)

// Config carries everything the channel needs at connect time. System
// instruction and tool declarations are configuration, not negotiated.
type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Voice             string
	Language          string
	Tools             []ToolDeclaration

	// Endpoint overrides the full WebSocket URL; used by tests. Empty means
	// the public API host.
	Endpoint string
}

// Channel is a connected duplex stream against the conversational service.
// Outbound traffic is realtime audio frames and tool results; inbound traffic
// is delivered on Events until the stream closes.
type Channel struct {
	conn   *websocket.Conn
	events chan Event
	sendQ  chan []byte
	stopCh chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   atomic.Bool
	dropped   atomic.Int64
}

// Dial opens the stream, sends the setup message and waits for the service
// to acknowledge it before any audio flows.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("live: API key missing")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("live: model missing")
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("live: dial: %w", err)
	}

	c := &Channel{
		conn:   conn,
		events: make(chan Event, eventBufferLen),
		sendQ:  make(chan []byte, sendQueueLen),
		stopCh: make(chan struct{}),
	}

	if err := c.writeJSON(clientMessage{Setup: setupFor(cfg)}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: send setup: %w", err)
	}
	if err := c.awaitSetupComplete(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	go c.sendLoop()
	return c, nil
}

func endpoint(cfg Config) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	u := url.URL{Scheme: "wss", Host: defaultHost, Path: bidiPath}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func setupFor(cfg Config) *setupPayload {
	setup := &setupPayload{
		Model: "models/" + cfg.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" || cfg.Language != "" {
		sc := &speechConfig{LanguageCode: cfg.Language}
		if cfg.Voice != "" {
			sc.VoiceConfig = &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: cfg.Voice},
			}
		}
		setup.GenerationConfig.SpeechConfig = sc
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		tool := toolPayload{}
		for _, t := range cfg.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		setup.Tools = []toolPayload{tool}
	}
	return setup
}

func (c *Channel) awaitSetupComplete() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(setupTimeout)); err != nil {
		return fmt.Errorf("live: set setup deadline: %w", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("live: read setup ack: %w", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("live: decode setup ack: %w", err)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("live: unexpected first message, want setupComplete")
	}
	return c.conn.SetReadDeadline(time.Time{})
}

// Events returns the inbound event stream. It is closed after EventClosed.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// SendAudio queues one capture frame as realtime input. It never blocks the
// caller; when the queue is full the frame is dropped and counted.
func (c *Channel) SendAudio(pcm []byte) {
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	select {
	case c.sendQ <- frame:
	case <-c.stopCh:
	default:
		if n := c.dropped.Add(1); n%dropLogEvery == 1 {
			log.Printf("live: send queue full, %d frames dropped so far", n)
		}
	}
}

// SendToolResult replies to one tool invocation. Called from dispatcher
// goroutines; safe for concurrent use.
func (c *Channel) SendToolResult(res ToolResult) error {
	body := map[string]any{"result": res.Output}
	if res.Failed {
		body = map[string]any{"error": res.Output}
	}
	msg := clientMessage{ToolResponse: &toolResponse{
		FunctionResponses: []functionResponse{{ID: res.ID, Name: res.Name, Response: body}},
	}}
	if err := c.writeJSON(msg); err != nil {
		return fmt.Errorf("live: send tool result %s: %w", res.ID, err)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once; the event
// stream always ends with EventClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.stopCh)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
	return nil
}

func (c *Channel) readLoop() {
	defer close(c.events)
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !isExpectedClose(err) {
				log.Printf("live: read: %v", err)
				c.emit(Event{Kind: EventError, Err: err})
			}
			c.emit(Event{Kind: EventClosed})
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("live: skipping undecodable message: %v", err)
			continue
		}
		c.handleServerMessage(&msg)
	}
}

func (c *Channel) handleServerMessage(msg *serverMessage) {
	switch {
	case msg.ServerContent != nil:
		sc := msg.ServerContent
		if sc.Interrupted {
			c.emit(Event{Kind: EventInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					log.Printf("live: bad audio payload: %v", err)
					continue
				}
				c.emit(Event{Kind: EventAudio, Audio: pcm})
			}
		}
		if sc.TurnComplete {
			c.emit(Event{Kind: EventTurnComplete})
		}
	case msg.ToolCall != nil:
		for i := range msg.ToolCall.FunctionCalls {
			fc := msg.ToolCall.FunctionCalls[i]
			c.emit(Event{Kind: EventToolCall, Invocation: &ToolInvocation{
				ID:   fc.ID,
				Name: fc.Name,
				Args: stringArgs(fc.Args),
			}})
		}
	case msg.GoAway != nil:
		log.Printf("live: server going away in %s", msg.GoAway.TimeLeft)
	case msg.SetupComplete != nil:
		// already acknowledged during Dial
	}
}

func (c *Channel) sendLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case frame := <-c.sendQ:
			msg := clientMessage{RealtimeInput: &realtimeInput{
				MediaChunks: []inlineData{{
					MIMEType: mimePCM16K,
					Data:     base64.StdEncoding.EncodeToString(frame),
				}},
			}}
			if err := c.writeJSON(msg); err != nil {
				if !c.closing.Load() {
					log.Printf("live: send audio: %v", err)
				}
				return
			}
		}
	}
}

func (c *Channel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("live: event buffer full, dropping %s", ev.Kind)
	}
}

func stringArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			// skip
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
