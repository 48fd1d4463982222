package call

// Duplex channel statuses reported to the client.
const (
	StatusListening  = "listening"
	StatusProcessing = "processing"
	StatusSpeaking   = "speaking"
)

// Client control event types accepted on the duplex channel.
const (
	ControlEndCall = "end_call"
	ControlPing    = "ping"
)

// ControlEvent is one structured message on the duplex channel. The Type
// discriminant selects which other fields are populated.
type ControlEvent struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Text    string `json:"text,omitempty"`
	IsFinal *bool  `json:"is_final,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusEvent reports a channel state change: listening, processing or
// speaking.
func StatusEvent(status string) ControlEvent {
	return ControlEvent{Type: "status", Status: status}
}

// TranscriptionEvent carries one partial or final transcript.
func TranscriptionEvent(text string, final bool) ControlEvent {
	return ControlEvent{Type: "transcription", Text: text, IsFinal: &final}
}

// AgentResponseEvent carries the agent's reply text, emitted before its
// audio.
func AgentResponseEvent(text string) ControlEvent {
	return ControlEvent{Type: "agent_response", Text: text}
}

// ErrorEvent carries a human-readable failure message.
func ErrorEvent(message string) ControlEvent {
	return ControlEvent{Type: "error", Message: message}
}

// PongEvent answers a client ping.
func PongEvent() ControlEvent {
	return ControlEvent{Type: "pong"}
}

// Inbound is one message read off the duplex channel. Binary frames carry
// Audio; text frames carry a Control type.
type Inbound struct {
	Audio   []byte
	Control string
}
