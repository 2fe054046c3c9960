package protocol

import "encoding/json"

// Message types
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeStatus   = "status"
	TypeInvoke   = "invoke"
	TypePreset   = "preset"
	TypeFeedback = "feedback"
	TypePresets  = "presets"
	TypeError    = "error"
)

// Preset actions
const (
	PresetRecall = "recall"
	PresetSave   = "save"
)

// Error codes
const (
	ErrCameraDisconnected = "CAMERA_DISCONNECTED"
	ErrVISCA              = "VISCA_ERROR"
	ErrUnsupported        = "UNSUPPORTED"
	ErrUnknownOperation   = "UNKNOWN_OPERATION"
	ErrInvalidMessage     = "INVALID_MESSAGE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload describes the camera when a client connects
type StatusPayload struct {
	ClientID        string         `json:"client_id"`
	Camera          string         `json:"camera"`
	CameraConnected bool           `json:"camera_connected"`
	ControlProtocol string         `json:"control_protocol"`
	Capabilities    []string       `json:"capabilities"`
	Operations      []string       `json:"operations"`
	Feedbacks       map[string]any `json:"feedbacks"`
}

// InvokePayload runs a named camera operation
type InvokePayload struct {
	Name string `json:"name"`
}

// PresetPayload for preset recall/save
type PresetPayload struct {
	Action       string `json:"action"`
	PresetNumber int    `json:"preset_number"`
	Description  string `json:"description,omitempty"`
}

// FeedbackPayload carries one changed feedback value
type FeedbackPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// PresetInfo is one entry of a presets message
type PresetInfo struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	IsDefined   bool   `json:"is_defined"`
}

// PresetsPayload carries the full preset list
type PresetsPayload struct {
	Presets []PresetInfo `json:"presets"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
