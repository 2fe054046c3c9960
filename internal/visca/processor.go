package visca

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReplyTimeout      = 1 * time.Second
	DefaultCompletionTimeout = 10 * time.Second
	DefaultQueueCapacity     = 64

	// maxFrame caps a partial frame so garbage on the line can't grow the buffer forever
	maxFrame = 32
)

// Stats counts processor traffic
type Stats struct {
	Queued      int
	Sent        uint64
	Acks        uint64
	Completions uint64
	Answers     uint64
	Errors      uint64
	Timeouts    uint64
}

// SendFunc writes a framed command to the transport
type SendFunc func(frame []byte) error

// Option configures a Processor
type Option func(*Processor)

// WithClock replaces the wall clock used for reply timeouts
func WithClock(c clock.Clock) Option {
	return func(p *Processor) {
		p.clock = c
	}
}

// WithReplyTimeout sets how long to wait for an ACK or inquiry answer
func WithReplyTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.replyTimeout = d
	}
}

// WithCompletionTimeout sets how long to wait for completion after an ACK
func WithCompletionTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.completionTimeout = d
	}
}

// WithCapacity bounds the number of queued commands
func WithCapacity(n int) Option {
	return func(p *Processor) {
		p.capacity = n
	}
}

// Processor serializes commands to a camera, keeping one command outstanding
// and correlating every reply with it.
type Processor struct {
	send  SendFunc
	clock clock.Clock

	replyTimeout      time.Duration
	completionTimeout time.Duration
	capacity          int

	mu       sync.Mutex
	queue    []*Command
	inflight *Command
	round    uint64
	timer    *clock.Timer
	buf      []byte
	stats    Stats
}

// outstanding identifies one send of a command. Inquiries are reused, so the
// round number keeps a late timer from ending a later send of the same inquiry.
type outstanding struct {
	cmd   *Command
	round uint64
}

// NewProcessor creates a processor that writes frames with send
func NewProcessor(send SendFunc, opts ...Option) *Processor {
	p := &Processor{
		send:              send,
		clock:             clock.New(),
		replyTimeout:      DefaultReplyTimeout,
		completionTimeout: DefaultCompletionTimeout,
		capacity:          DefaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue queues cmd for sending. An inquiry that is already waiting in the
// queue is not queued twice.
func (p *Processor) Enqueue(cmd *Command) error {
	p.mu.Lock()
	if cmd.Kind == KindInquiry && p.queuedLocked(cmd) {
		p.mu.Unlock()
		return nil
	}
	if len(p.queue) >= p.capacity {
		p.mu.Unlock()
		return fmt.Errorf("enqueue %s: %w", cmd.Name, ErrQueueFull)
	}
	p.queue = append(p.queue, cmd)
	next := p.dispatchLocked()
	p.mu.Unlock()

	p.transmit(next)
	return nil
}

// ProcessIncomingData consumes bytes received from the camera. Frames may be
// split across calls.
func (p *Processor) ProcessIncomingData(data []byte) {
	var actions []func()

	p.mu.Lock()
	p.buf = append(p.buf, data...)
	for {
		i := bytes.IndexByte(p.buf, Terminator)
		if i < 0 {
			if len(p.buf) > maxFrame {
				log.Warn().Hex("data", p.buf).Msg("visca: discarding unterminated data")
				p.buf = nil
			}
			break
		}
		frame := p.buf[:i+1]
		p.buf = p.buf[i+1:]
		actions = append(actions, p.handleLocked(frame)...)
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	p.mu.Unlock()

	for _, action := range actions {
		action()
	}
}

// Reset abandons the outstanding command and discards the queue
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.queue = nil
	p.inflight = nil
	p.buf = nil
}

// Stats returns a snapshot of the traffic counters
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Queued = len(p.queue)
	return s
}

func (p *Processor) queuedLocked(cmd *Command) bool {
	for _, q := range p.queue {
		if q == cmd {
			return true
		}
	}
	return false
}

// dispatchLocked moves the head of the queue in flight when the line is free
func (p *Processor) dispatchLocked() outstanding {
	if p.inflight != nil || len(p.queue) == 0 {
		return outstanding{}
	}
	cmd := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.inflight = cmd
	p.round++
	p.armLocked(p.replyTimeout)
	p.stats.Sent++
	return outstanding{cmd: cmd, round: p.round}
}

func (p *Processor) armLocked(d time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	o := outstanding{cmd: p.inflight, round: p.round}
	p.timer = p.clock.AfterFunc(d, func() {
		p.finish(o, ErrTimeout)
	})
}

func (p *Processor) transmit(o outstanding) {
	if o.cmd == nil {
		return
	}
	frame := o.cmd.Bytes()
	log.Debug().Str("cmd", o.cmd.Name).Hex("frame", frame).Msg("visca: send")
	if err := p.send(frame); err != nil {
		p.finish(o, fmt.Errorf("send %s: %w", o.cmd.Name, err))
	}
}

// finish ends the outstanding command with err unless a reply or reset got there first
func (p *Processor) finish(o outstanding, err error) {
	p.mu.Lock()
	if p.inflight != o.cmd || p.round != o.round {
		p.mu.Unlock()
		return
	}
	if err == ErrTimeout {
		p.stats.Timeouts++
	}
	next := p.releaseLocked()
	p.mu.Unlock()

	log.Warn().Err(err).Str("cmd", o.cmd.Name).Msg("visca: command failed")
	o.cmd.fail(err)
	p.transmit(next)
}

// releaseLocked clears the outstanding command and picks the next one
func (p *Processor) releaseLocked() outstanding {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.inflight = nil
	return p.dispatchLocked()
}

func (p *Processor) handleLocked(frame []byte) []func() {
	r := parseReply(frame)
	cmd := p.inflight

	// on a daisy chain other cameras share the line
	if cmd != nil && r.typ != replyUnknown && r.typ != replyNetwork && frame[0] != ReplyHeader(cmd.Address) {
		log.Debug().Hex("frame", frame).Str("cmd", cmd.Name).Msg("visca: reply from another camera")
		return nil
	}

	switch r.typ {
	case replyAck:
		p.stats.Acks++
		if cmd != nil && cmd.Kind == KindCommand {
			// accepted, now wait for completion
			p.armLocked(p.completionTimeout)
		}
		return nil

	case replyCompletion:
		p.stats.Completions++
		if cmd == nil || cmd.Kind != KindCommand {
			log.Debug().Hex("frame", frame).Msg("visca: unexpected completion")
			return nil
		}
		next := p.releaseLocked()
		return []func(){cmd.complete, func() { p.transmit(next) }}

	case replyAnswer:
		p.stats.Answers++
		if cmd == nil || cmd.Kind != KindInquiry {
			log.Debug().Hex("frame", frame).Msg("visca: unexpected answer")
			return nil
		}
		data := append([]byte(nil), r.data...)
		next := p.releaseLocked()
		return []func(){
			func() {
				if err := cmd.answer(data); err != nil {
					log.Warn().Err(err).Msg("visca: bad answer")
					cmd.fail(err)
				}
			},
			func() { p.transmit(next) },
		}

	case replyError:
		p.stats.Errors++
		if cmd == nil {
			return nil
		}
		var code byte
		if len(r.data) > 0 {
			code = r.data[0]
		}
		err := &ReplyError{Code: code}
		next := p.releaseLocked()
		return []func(){
			func() {
				log.Warn().Err(err).Str("cmd", cmd.Name).Msg("visca: error reply")
				cmd.fail(err)
			},
			func() { p.transmit(next) },
		}

	case replyNetwork:
		return nil
	}

	log.Debug().Hex("frame", frame).Msg("visca: unrecognized frame")
	return nil
}
