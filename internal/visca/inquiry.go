package visca

import (
	"errors"
	"fmt"
)

// ErrShortAnswer is returned when an inquiry answer carries too few data bytes
var ErrShortAnswer = errors.New("short inquiry answer")

type inquiryDef struct {
	property Property
	payload  []byte
	decode   Decoder
}

// inquiryTable is ordered; polling all inquiries follows this order
var inquiryTable = []inquiryDef{
	{PropertyPower, []byte{0x09, 0x04, 0x00}, onOff(PropertyPower)},
	{PropertyMute, []byte{0x09, 0x04, 0x75}, onOff(PropertyMute)},
	{PropertyFocusAuto, []byte{0x09, 0x04, 0x38}, onOff(PropertyFocusAuto)},
	{PropertyZoomPosition, []byte{0x09, 0x04, 0x47}, nibbles(PropertyZoomPosition, 4)},
	{PropertyFocusPosition, []byte{0x09, 0x04, 0x48}, nibbles(PropertyFocusPosition, 4)},
	{PropertyPanTiltPosition, []byte{0x09, 0x06, 0x12}, panTilt},
	{PropertyAE, []byte{0x09, 0x04, 0x39}, single(PropertyAE)},
	{PropertyAperture, []byte{0x09, 0x04, 0x42}, nibbles(PropertyAperture, 4)},
	{PropertyBackLight, []byte{0x09, 0x04, 0x33}, onOff(PropertyBackLight)},
	{PropertyBGain, []byte{0x09, 0x04, 0x44}, nibbles(PropertyBGain, 4)},
	{PropertyExpComp, []byte{0x09, 0x04, 0x4E}, nibbles(PropertyExpComp, 4)},
	{PropertyGain, []byte{0x09, 0x04, 0x4C}, nibbles(PropertyGain, 4)},
	{PropertyIris, []byte{0x09, 0x04, 0x4B}, nibbles(PropertyIris, 4)},
	{PropertyRGain, []byte{0x09, 0x04, 0x43}, nibbles(PropertyRGain, 4)},
	{PropertyShutter, []byte{0x09, 0x04, 0x4A}, nibbles(PropertyShutter, 4)},
	{PropertyWB, []byte{0x09, 0x04, 0x35}, single(PropertyWB)},
	{PropertyWD, []byte{0x09, 0x04, 0x3D}, single(PropertyWD)},
}

// NewInquiry builds the inquiry for prop, or nil if prop has none
func NewInquiry(addr int, prop Property) *Command {
	for _, def := range inquiryTable {
		if def.property == prop {
			return &Command{
				Name:    string(prop) + "Inquiry",
				Address: addr,
				Kind:    KindInquiry,
				Payload: def.payload,
				Affects: prop,
				Decode:  def.decode,
			}
		}
	}
	return nil
}

// InquiryProperties lists every property that has an inquiry, in poll order
func InquiryProperties() []Property {
	props := make([]Property, 0, len(inquiryTable))
	for _, def := range inquiryTable {
		props = append(props, def.property)
	}
	return props
}

// onOff decodes the 02 (on) / 03 (off) convention
func onOff(prop Property) Decoder {
	return func(data []byte) ([]Reading, error) {
		if len(data) < 1 {
			return nil, ErrShortAnswer
		}
		switch data[0] {
		case 0x02:
			return []Reading{{prop, 1}}, nil
		case 0x03:
			return []Reading{{prop, 0}}, nil
		default:
			return nil, fmt.Errorf("unexpected on/off value %#02x", data[0])
		}
	}
}

func single(prop Property) Decoder {
	return func(data []byte) ([]Reading, error) {
		if len(data) < 1 {
			return nil, ErrShortAnswer
		}
		return []Reading{{prop, int(data[0])}}, nil
	}
}

func nibbles(prop Property, n int) Decoder {
	return func(data []byte) ([]Reading, error) {
		if len(data) < n {
			return nil, ErrShortAnswer
		}
		return []Reading{{prop, decodeNibbles(data[:n])}}, nil
	}
}

// panTilt decodes 0w 0w 0w 0w 0z 0z 0z 0z as two signed positions
func panTilt(data []byte) ([]Reading, error) {
	if len(data) < 8 {
		return nil, ErrShortAnswer
	}
	pan := int(int16(uint16(decodeNibbles(data[0:4]))))
	tilt := int(int16(uint16(decodeNibbles(data[4:8]))))
	return []Reading{
		{PropertyPanPosition, pan},
		{PropertyTiltPosition, tilt},
	}, nil
}
