package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visca-camera/internal/camera"
	"visca-camera/internal/config"
	"visca-camera/internal/feedback"
)

type consoleFake struct {
	invoked  []string
	recalled []int
	stored   []config.Preset
	fbs      *feedback.Set
}

func newConsoleFake() *consoleFake {
	f := &consoleFake{}
	f.fbs = feedback.NewSet(
		feedback.NewBool("PowerIsOn", func() bool { return true }),
		feedback.NewInt("Status", func() int { return 1 }),
	)
	f.fbs.FireUpdate()
	return f
}

func (f *consoleFake) Name() string             { return "Lectern" }
func (f *consoleFake) Operations() []string     { return []string{"PanLeft", "PowerOn"} }
func (f *consoleFake) Capabilities() []string   { return nil }
func (f *consoleFake) IsConnected() bool        { return true }
func (f *consoleFake) Feedbacks() *feedback.Set { return f.fbs }

func (f *consoleFake) OnPresetsChanged(func([]config.Preset)) {}

func (f *consoleFake) Invoke(op string) error {
	if op != "PanLeft" && op != "PowerOn" {
		return fmt.Errorf("%w: %s", camera.ErrUnknownOp, op)
	}
	f.invoked = append(f.invoked, op)
	return nil
}

func (f *consoleFake) PresetSelect(n int) error {
	f.recalled = append(f.recalled, n)
	return nil
}

func (f *consoleFake) PresetStore(n int, description string) error {
	f.stored = append(f.stored, config.Preset{ID: n, Description: description, IsDefined: true})
	return nil
}

func (f *consoleFake) Presets() []config.Preset {
	return f.stored
}

func TestConsoleInvoke(t *testing.T) {
	f := newConsoleFake()
	var out bytes.Buffer

	err := runConsole(f, strings.NewReader("left\nPowerOn\nExplode\nquit\nright\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"PanLeft", "PowerOn"}, f.invoked)
	assert.Contains(t, out.String(), "PanLeft sent")
	assert.Contains(t, out.String(), "unknown operation")
}

func TestConsolePresets(t *testing.T) {
	f := newConsoleFake()
	var out bytes.Buffer

	input := "store 4 Choir stalls\nrecall 4\nrecall x\nrecall\npresets\n"
	require.NoError(t, runConsole(f, strings.NewReader(input), &out))

	assert.Equal(t, []int{4}, f.recalled)
	assert.Equal(t, []config.Preset{{ID: 4, Description: "Choir stalls", IsDefined: true}}, f.stored)
	assert.Contains(t, out.String(), "Preset 4 stored")
	assert.Contains(t, out.String(), "Preset 4 recalled")
	assert.Contains(t, out.String(), "Invalid preset number: x")
	assert.Contains(t, out.String(), "Usage: recall <preset>")
	assert.Contains(t, out.String(), "Choir stalls")
}

func TestConsoleStatus(t *testing.T) {
	f := newConsoleFake()
	var out bytes.Buffer

	require.NoError(t, runConsole(f, strings.NewReader("status\n"), &out))

	text := out.String()
	assert.Contains(t, text, "PowerIsOn")
	assert.Contains(t, text, "true")
	assert.Less(t, strings.Index(text, "PowerIsOn"), strings.Index(text, "Status"))
}
