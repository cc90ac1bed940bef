package render

// Status labels shown next to the mic control.
const (
	StatusConnecting = "Connecting..."
	StatusRecording  = "Recording..."
	StatusThinking   = "Thinking..."
	StatusSpeaking   = "Speaking..."
	StatusReady      = "Ready"
	StatusFinished   = "Session over"
)

// Mic control glyphs.
const (
	GlyphMic      = "🎙️"
	GlyphStop     = "⏹️"
	GlyphThinking = "✨"
)

// Mic is the state of the single mic control.
type Mic struct {
	Glyph     string `json:"glyph"`
	Enabled   bool   `json:"enabled"`
	Recording bool   `json:"recording"`
}

// Screen is a full snapshot for presenters. Everything a presenter shows
// comes from one Screen; presenters keep no state of their own.
type Screen struct {
	Seq uint64 `json:"seq"`

	Status string `json:"status"`
	Mic    Mic    `json:"mic"`

	// AgentText is the agent's latest utterance or a fixed error message.
	AgentText string `json:"agent_text"`
	// PlayerText is the quoted transcript of the last turn. Empty hides the
	// player bubble.
	PlayerText string `json:"player_text,omitempty"`
	// Notice is a transient message such as a denied microphone.
	Notice string `json:"notice,omitempty"`

	View View `json:"view"`
	Done bool `json:"done"`
}

// PlayerBubble returns the quoted transcript for a turn, or "" when the
// backend sent none.
func PlayerBubble(transcript string) string {
	if transcript == "" {
		return ""
	}
	return quote(transcript)
}
