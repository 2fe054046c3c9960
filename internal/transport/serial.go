package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 9600

	serialReadTimeout = 100 * time.Millisecond
)

// Serial talks to a camera over an RS-232/RS-422 port, 8N1
type Serial struct {
	handlers

	port string
	baud int

	portMu sync.Mutex
	conn   serial.Port
	done   chan struct{}
}

// NewSerial creates a serial transport for port. A zero baud uses 9600.
func NewSerial(port string, baud int) *Serial {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &Serial{port: port, baud: baud}
}

// Mode returns the line settings used to open the port
func (s *Serial) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (s *Serial) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.portMu.Lock()
	if s.conn != nil {
		s.portMu.Unlock()
		return nil
	}

	p, err := serial.Open(s.port, s.Mode())
	if err != nil {
		s.portMu.Unlock()
		return fmt.Errorf("open serial port %s: %w", s.port, err)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		p.Close()
		s.portMu.Unlock()
		return fmt.Errorf("set read timeout on %s: %w", s.port, err)
	}
	s.conn = p
	s.done = make(chan struct{})
	done := s.done
	s.portMu.Unlock()

	log.Info().Str("port", s.port).Int("baud", s.baud).Msg("serial: connected")
	s.setConnected(true)

	go s.readLoop(p, done)
	return nil
}

func (s *Serial) readLoop(p serial.Port, done chan struct{}) {
	buf := make([]byte, 256)
	for {
		n, err := p.Read(buf)
		if err != nil {
			select {
			case <-done:
			default:
				var portErr *serial.PortError
				if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
					return
				}
				log.Error().Err(err).Str("port", s.port).Msg("serial: read failed")
				s.closePort(p)
			}
			return
		}
		if n > 0 {
			s.deliver(append([]byte(nil), buf[:n]...))
		}
	}
}

func (s *Serial) SendBytes(b []byte) error {
	s.portMu.Lock()
	p := s.conn
	s.portMu.Unlock()

	if p == nil {
		return ErrNotConnected
	}
	if _, err := p.Write(b); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (s *Serial) Disconnect() error {
	s.portMu.Lock()
	p := s.conn
	if p != nil && s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.portMu.Unlock()

	if p == nil {
		return nil
	}
	return s.closePort(p)
}

// closePort closes p if it is still the open port
func (s *Serial) closePort(p serial.Port) error {
	s.portMu.Lock()
	if s.conn != p {
		s.portMu.Unlock()
		return nil
	}
	s.conn = nil
	s.portMu.Unlock()

	err := p.Close()
	s.setConnected(false)
	log.Info().Str("port", s.port).Msg("serial: disconnected")
	return err
}
