package live

// Wire types for the BidiGenerateContent WebSocket protocol. Field sets are
// limited to what this client sends and reads.

// mimePCM16K is the realtime input encoding: raw little-endian 16-bit PCM.
const mimePCM16K = "audio/pcm;rate=16000"

// clientMessage is the envelope for every outbound frame; exactly one field
// is set per message.
type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setupPayload struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []toolPayload     `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig  *voiceConfig `json:"voiceConfig,omitempty"`
	LanguageCode string       `json:"languageCode,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type toolPayload struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// serverMessage is the envelope for every inbound frame.
type serverMessage struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallPayload `json:"toolCall,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

type toolCallPayload struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// Schema declares the argument shape of one tool, mirroring the subset of
// the API's schema language this system uses.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToolDeclaration names one invokable tool and its argument schema. The set
// is fixed configuration supplied at connect time.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ToolInvocation is a structured request issued by the remote model. It only
// ever arrives from the channel; it is never constructed locally.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]string
}

// ToolResult answers exactly one ToolInvocation, matched by ID.
type ToolResult struct {
	ID     string
	Name   string
	Output string
	Failed bool
}

// EventKind discriminates channel events.
type EventKind int

const (
	// EventAudio carries one synthesized speech segment (24 kHz mono s16le).
	EventAudio EventKind = iota
	// EventToolCall carries one tool invocation to execute locally.
	EventToolCall
	// EventInterrupted signals the user spoke over the model; queued playback
	// should be discarded.
	EventInterrupted
	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete
	// EventError reports a fatal channel error; EventClosed follows.
	EventError
	// EventClosed is the final event before the event stream closes.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventToolCall:
		return "tool-call"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn-complete"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one inbound channel notification. Payload fields are set
// according to Kind.
type Event struct {
	Kind       EventKind
	Audio      []byte
	Invocation *ToolInvocation
	Err        error
}
