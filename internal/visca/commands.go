package visca

import "fmt"

// Direction selects a pan-tilt drive movement
type Direction int

const (
	DirectionStop Direction = iota
	DirectionUp
	DirectionDown
	DirectionLeft
	DirectionRight
	DirectionUpLeft
	DirectionUpRight
	DirectionDownLeft
	DirectionDownRight
)

var directionNames = map[Direction]string{
	DirectionStop:      "Stop",
	DirectionUp:        "Up",
	DirectionDown:      "Down",
	DirectionLeft:      "Left",
	DirectionRight:     "Right",
	DirectionUpLeft:    "UpLeft",
	DirectionUpRight:   "UpRight",
	DirectionDownLeft:  "DownLeft",
	DirectionDownRight: "DownRight",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// XX: 01=left, 02=right, 03=stop
// YY: 01=up, 02=down, 03=stop
var directionBytes = map[Direction][2]byte{
	DirectionStop:      {0x03, 0x03},
	DirectionUp:        {0x03, 0x01},
	DirectionDown:      {0x03, 0x02},
	DirectionLeft:      {0x01, 0x03},
	DirectionRight:     {0x02, 0x03},
	DirectionUpLeft:    {0x01, 0x01},
	DirectionUpRight:   {0x02, 0x01},
	DirectionDownLeft:  {0x01, 0x02},
	DirectionDownRight: {0x02, 0x02},
}

// PowerOn: 01 04 00 02
func PowerOn(addr int) *Command {
	return newCommand(addr, "PowerOn", []byte{0x01, 0x04, 0x00, 0x02}, PropertyPower, Reading{PropertyPower, 1})
}

// PowerOff: 01 04 00 03
func PowerOff(addr int) *Command {
	return newCommand(addr, "PowerOff", []byte{0x01, 0x04, 0x00, 0x03}, PropertyPower, Reading{PropertyPower, 0})
}

// Mute sets picture mute: 01 04 75 02 (on) / 03 (off)
func Mute(addr int, on bool) *Command {
	if on {
		return newCommand(addr, "MuteOn", []byte{0x01, 0x04, 0x75, 0x02}, PropertyMute, Reading{PropertyMute, 1})
	}
	return newCommand(addr, "MuteOff", []byte{0x01, 0x04, 0x75, 0x03}, PropertyMute, Reading{PropertyMute, 0})
}

// FocusAuto selects auto (02) or manual (03) focus: 01 04 38 XX
func FocusAuto(addr int, on bool) *Command {
	if on {
		return newCommand(addr, "FocusAuto", []byte{0x01, 0x04, 0x38, 0x02}, PropertyFocusAuto, Reading{PropertyFocusAuto, 1})
	}
	return newCommand(addr, "FocusManual", []byte{0x01, 0x04, 0x38, 0x03}, PropertyFocusAuto, Reading{PropertyFocusAuto, 0})
}

// FocusAutoToggle: 01 04 38 10
func FocusAutoToggle(addr int) *Command {
	return newCommand(addr, "FocusAutoToggle", []byte{0x01, 0x04, 0x38, 0x10}, PropertyFocusAuto)
}

// FocusFar: 01 04 08 02
func FocusFar(addr int) *Command {
	return newCommand(addr, "FocusFar", []byte{0x01, 0x04, 0x08, 0x02}, PropertyNone)
}

// FocusNear: 01 04 08 03
func FocusNear(addr int) *Command {
	return newCommand(addr, "FocusNear", []byte{0x01, 0x04, 0x08, 0x03}, PropertyNone)
}

// FocusStop: 01 04 08 00
func FocusStop(addr int) *Command {
	return newCommand(addr, "FocusStop", []byte{0x01, 0x04, 0x08, 0x00}, PropertyFocusPosition)
}

// FocusOnePush triggers a single auto focus: 01 04 18 01
func FocusOnePush(addr int) *Command {
	return newCommand(addr, "FocusOnePush", []byte{0x01, 0x04, 0x18, 0x01}, PropertyFocusPosition)
}

// ZoomTele: 01 04 07 02
func ZoomTele(addr int) *Command {
	return newCommand(addr, "ZoomTele", []byte{0x01, 0x04, 0x07, 0x02}, PropertyNone)
}

// ZoomWide: 01 04 07 03
func ZoomWide(addr int) *Command {
	return newCommand(addr, "ZoomWide", []byte{0x01, 0x04, 0x07, 0x03}, PropertyNone)
}

// ZoomStop: 01 04 07 00
func ZoomStop(addr int) *Command {
	return newCommand(addr, "ZoomStop", []byte{0x01, 0x04, 0x07, 0x00}, PropertyZoomPosition)
}

// ZoomDirect moves to an absolute zoom position: 01 04 47 0p 0q 0r 0s
func ZoomDirect(addr int, pos int) *Command {
	payload := append([]byte{0x01, 0x04, 0x47}, encodeNibbles(uint16(pos))...)
	return newCommand(addr, "ZoomDirect", payload, PropertyZoomPosition, Reading{PropertyZoomPosition, pos})
}

// PanTiltDrive starts or stops a pan-tilt movement: 01 06 01 VV WW XX YY
// VV = pan speed (01-18), WW = tilt speed (01-14)
func PanTiltDrive(addr int, dir Direction, panSpeed, tiltSpeed byte) *Command {
	db, ok := directionBytes[dir]
	if !ok {
		db = directionBytes[DirectionStop]
	}
	panSpeed = clampByte(panSpeed, PanSpeedMin, PanSpeedMax)
	tiltSpeed = clampByte(tiltSpeed, TiltSpeedMin, TiltSpeedMax)

	affects := PropertyNone
	if dir == DirectionStop {
		affects = PropertyPanTiltPosition
	}
	payload := []byte{0x01, 0x06, 0x01, panSpeed, tiltSpeed, db[0], db[1]}
	return newCommand(addr, "PanTilt"+dir.String(), payload, affects)
}

// AbsolutePosition moves to a pan/tilt position:
// 01 06 02 VV WW 0Y 0Y 0Y 0Y 0Z 0Z 0Z 0Z
func AbsolutePosition(addr int, pan, tilt int, panSpeed, tiltSpeed byte) *Command {
	payload := []byte{0x01, 0x06, 0x02,
		clampByte(panSpeed, PanSpeedMin, PanSpeedMax),
		clampByte(tiltSpeed, TiltSpeedMin, TiltSpeedMax),
	}
	payload = append(payload, encodeNibbles(uint16(int16(pan)))...)
	payload = append(payload, encodeNibbles(uint16(int16(tilt)))...)
	return newCommand(addr, "AbsolutePosition", payload, PropertyPanTiltPosition,
		Reading{PropertyPanPosition, pan}, Reading{PropertyTiltPosition, tilt})
}

// Home: 01 06 04
func Home(addr int) *Command {
	return newCommand(addr, "Home", []byte{0x01, 0x06, 0x04}, PropertyPanTiltPosition)
}

// MemorySet stores the current position in a preset: 01 04 3F 01 pp
func MemorySet(addr int, preset byte) *Command {
	return newCommand(addr, "MemorySet", []byte{0x01, 0x04, 0x3F, 0x01, preset}, PropertyNone)
}

// MemoryRecall moves to a stored preset: 01 04 3F 02 pp
func MemoryRecall(addr int, preset byte) *Command {
	return newCommand(addr, "MemoryRecall", []byte{0x01, 0x04, 0x3F, 0x02, preset}, PropertyPanTiltPosition)
}
