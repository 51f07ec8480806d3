package session

// Capabilities are the static, per-session feature flags of the agent app.
type Capabilities struct {
	SupportsChatInput       bool `yaml:"supports_chat_input" json:"supportsChatInput" split_words:"true"`
	SupportsVideoInput      bool `yaml:"supports_video_input" json:"supportsVideoInput" split_words:"true"`
	PreConnectBufferEnabled bool `yaml:"pre_connect_buffer_enabled" json:"preConnectBufferEnabled" split_words:"true"`
}

// Controls is the enablement of the control bar buttons.
type Controls struct {
	Leave       bool `json:"leave"`
	Microphone  bool `json:"microphone"`
	Chat        bool `json:"chat"`
	Camera      bool `json:"camera"`
	ScreenShare bool `json:"screenShare"`
}

// DeriveControls combines the capability flags with the current phase. Only
// leave is available outside of an active call, and it is hidden while idle.
func DeriveControls(caps Capabilities, phase Phase) Controls {
	c := Controls{Leave: phase != PhaseIdle}
	if phase != PhaseActive {
		return c
	}
	c.Microphone = true
	c.Chat = caps.SupportsChatInput
	c.Camera = caps.SupportsVideoInput
	c.ScreenShare = caps.SupportsVideoInput
	return c
}
