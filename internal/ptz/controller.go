package ptz

import (
	"visca-camera/internal/config"
	"visca-camera/internal/feedback"
)

// Controller defines the interface for PTZ camera control as seen by the
// control bus
type Controller interface {
	// Name returns the display name of the camera
	Name() string

	// Operations lists the operation names accepted by Invoke
	Operations() []string

	// Invoke runs a named operation, e.g. "PanLeft" or "PowerOn"
	Invoke(op string) error

	// PresetSelect recalls a preset position (0-127)
	PresetSelect(preset int) error

	// PresetStore saves current position to a preset (0-127)
	PresetStore(preset int, description string) error

	// Presets returns the known presets
	Presets() []config.Preset

	// OnPresetsChanged registers a callback for preset list changes
	OnPresetsChanged(fn func([]config.Preset))

	// Feedbacks returns the named state values published by the camera
	Feedbacks() *feedback.Set

	// Capabilities lists optional features of the camera
	Capabilities() []string

	// IsConnected reports whether the control link is open
	IsConnected() bool
}
