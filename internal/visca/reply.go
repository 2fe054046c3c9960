package visca

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is reported when the camera never answers the outstanding command
	ErrTimeout = errors.New("visca: reply timeout")
	// ErrQueueFull is returned by Enqueue when the queue is at capacity
	ErrQueueFull = errors.New("visca: command queue full")
)

// Error codes carried in y0 6z ee FF
const (
	ErrCodeMessageLength byte = 0x01
	ErrCodeSyntax        byte = 0x02
	ErrCodeBufferFull    byte = 0x03
	ErrCodeCancelled     byte = 0x04
	ErrCodeNoSocket      byte = 0x05
	ErrCodeNotExecutable byte = 0x41
)

var errorCodeNames = map[byte]string{
	ErrCodeMessageLength: "message length error",
	ErrCodeSyntax:        "syntax error",
	ErrCodeBufferFull:    "command buffer full",
	ErrCodeCancelled:     "command cancelled",
	ErrCodeNoSocket:      "no socket",
	ErrCodeNotExecutable: "command not executable",
}

// ReplyError is an error message returned by the camera
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	if name, ok := errorCodeNames[e.Code]; ok {
		return "visca: " + name
	}
	return fmt.Sprintf("visca: error %#02x", e.Code)
}

type replyType int

const (
	replyUnknown replyType = iota
	replyAck
	replyCompletion
	replyAnswer
	replyError
	replyNetwork
)

type reply struct {
	typ  replyType
	data []byte // answer data or error code, terminator stripped
}

// parseReply classifies one terminated frame received from the camera
func parseReply(frame []byte) reply {
	if len(frame) < 3 || frame[0]&0x80 == 0 || frame[len(frame)-1] != Terminator {
		return reply{typ: replyUnknown}
	}
	body := frame[2 : len(frame)-1]

	switch frame[1] & 0xF0 {
	case 0x40:
		return reply{typ: replyAck}
	case 0x50:
		if len(body) == 0 {
			return reply{typ: replyCompletion}
		}
		return reply{typ: replyAnswer, data: body}
	case 0x60:
		return reply{typ: replyError, data: body}
	case 0x30:
		// network change (x0 38 FF) and address set replies
		return reply{typ: replyNetwork}
	}
	return reply{typ: replyUnknown}
}
