package visca

import (
	"fmt"
)

const (
	// Terminator ends every VISCA message
	Terminator byte = 0xFF

	// MinAddress and MaxAddress bound the camera id on a VISCA chain
	MinAddress = 1
	MaxAddress = 7

	// Pan-tilt drive speed limits
	PanSpeedMin  byte = 0x01
	PanSpeedMax  byte = 0x18
	TiltSpeedMin byte = 0x01
	TiltSpeedMax byte = 0x14

	// DefaultPanSpeed and DefaultTiltSpeed are used when no slow speed is configured
	DefaultPanSpeed  byte = 0x0C
	DefaultTiltSpeed byte = 0x0A
)

// Kind distinguishes state-changing commands from inquiries
type Kind int

const (
	KindCommand Kind = iota
	KindInquiry
)

func (k Kind) String() string {
	if k == KindInquiry {
		return "inquiry"
	}
	return "command"
}

// Property names a cached camera value that an inquiry can refresh.
// The values double as the names accepted in the poll list.
type Property string

const (
	PropertyNone            Property = ""
	PropertyPower           Property = "Power"
	PropertyMute            Property = "Mute"
	PropertyFocusAuto       Property = "FocusAuto"
	PropertyFocusPosition   Property = "FocusPosition"
	PropertyZoomPosition    Property = "ZoomPosition"
	PropertyPanTiltPosition Property = "PTZPosition"
	PropertyPanPosition     Property = "PanPosition"
	PropertyTiltPosition    Property = "TiltPosition"
	PropertyAE              Property = "AE"
	PropertyAperture        Property = "Aperture"
	PropertyBackLight       Property = "BackLight"
	PropertyBGain           Property = "BGain"
	PropertyExpComp         Property = "ExpComp"
	PropertyGain            Property = "Gain"
	PropertyIris            Property = "Iris"
	PropertyRGain           Property = "RGain"
	PropertyShutter         Property = "Shutter"
	PropertyWB              Property = "WB"
	PropertyWD              Property = "WD"
)

// Reading is a single decoded property value
type Reading struct {
	Property Property
	Value    int
}

// Decoder turns the data bytes of an inquiry answer into readings
type Decoder func(data []byte) ([]Reading, error)

// Command is one VISCA message queued on a Processor.
//
// Commands that change camera state name the Property they affect so the
// caller can refresh it once the camera reports completion. Inquiries carry a
// Decoder and are meant to be built once and re-enqueued.
type Command struct {
	Name    string
	Address int
	Kind    Kind
	Payload []byte

	// Affects is the property a completed command changes
	Affects Property
	// Expected holds the values the camera should report after completion
	Expected []Reading

	// Decode parses inquiry answers
	Decode Decoder

	OnComplete func(cmd *Command)
	OnReadings func(readings []Reading)
	OnError    func(cmd *Command, err error)
}

// Bytes returns the framed command: address byte, payload, terminator
func (c *Command) Bytes() []byte {
	// Address byte: 0x80 | address (1-7)
	frame := make([]byte, 0, len(c.Payload)+2)
	frame = append(frame, byte(0x80|c.Address))
	frame = append(frame, c.Payload...)
	frame = append(frame, Terminator)
	return frame
}

func (c *Command) String() string {
	return fmt.Sprintf("%s(%X)", c.Name, c.Bytes())
}

func (c *Command) complete() {
	if c.OnComplete != nil {
		c.OnComplete(c)
	}
}

func (c *Command) answer(data []byte) error {
	if c.Decode == nil {
		return nil
	}
	readings, err := c.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s answer %X: %w", c.Name, data, err)
	}
	if c.OnReadings != nil {
		c.OnReadings(readings)
	}
	return nil
}

func (c *Command) fail(err error) {
	if c.OnError != nil {
		c.OnError(c, err)
	}
}

func newCommand(addr int, name string, payload []byte, affects Property, expected ...Reading) *Command {
	return &Command{
		Name:     name,
		Address:  addr,
		Kind:     KindCommand,
		Payload:  payload,
		Affects:  affects,
		Expected: expected,
	}
}

// ReplyHeader is the first byte of every reply sent by camera addr (0x90 for camera 1)
func ReplyHeader(addr int) byte {
	return byte((addr + 8) << 4)
}

// ValidAddress reports whether addr can be used as a camera id
func ValidAddress(addr int) bool {
	return addr >= MinAddress && addr <= MaxAddress
}

// encodeNibbles spreads v over four bytes, one nibble each (0p 0q 0r 0s)
func encodeNibbles(v uint16) []byte {
	return []byte{
		byte(v>>12) & 0x0F,
		byte(v>>8) & 0x0F,
		byte(v>>4) & 0x0F,
		byte(v) & 0x0F,
	}
}

// decodeNibbles folds the low nibble of each byte into one value
func decodeNibbles(b []byte) int {
	v := 0
	for _, x := range b {
		v = v<<4 | int(x&0x0F)
	}
	return v
}

func clampByte(v, min, max byte) byte {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
