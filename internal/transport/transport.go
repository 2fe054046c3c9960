// Package transport moves raw VISCA bytes between the adapter and a camera
// over a serial port or the network.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"visca-camera/internal/config"
)

var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrUnsupportedProto = errors.New("unsupported control method")
)

// Transport is a byte pipe to a camera. Received bytes are delivered to the
// OnBytes handlers in arrival order from a single goroutine.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	SendBytes(b []byte) error
	OnBytes(fn func([]byte))
	OnConnectionChange(fn func(connected bool))
}

// New builds the transport selected by cfg.Method
func New(cfg config.ControlConfig) (Transport, error) {
	switch cfg.Method {
	case "", "serial":
		return NewSerial(cfg.Port, cfg.BaudRate), nil
	case "tcp", "udp":
		if cfg.Address == "" {
			return nil, fmt.Errorf("%s transport: address is required", cfg.Method)
		}
		return NewNet(cfg.Method, cfg.Address), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProto, cfg.Method)
	}
}

// handlers holds the callbacks and connection flag shared by all transports
type handlers struct {
	mu        sync.Mutex
	connected bool
	onBytes   []func([]byte)
	onConn    []func(bool)
}

func (h *handlers) OnBytes(fn func([]byte)) {
	h.mu.Lock()
	h.onBytes = append(h.onBytes, fn)
	h.mu.Unlock()
}

func (h *handlers) OnConnectionChange(fn func(bool)) {
	h.mu.Lock()
	h.onConn = append(h.onConn, fn)
	h.mu.Unlock()
}

func (h *handlers) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *handlers) deliver(b []byte) {
	if len(b) == 0 {
		return
	}
	h.mu.Lock()
	fns := append([]func([]byte){}, h.onBytes...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(b)
	}
}

// setConnected updates the flag and notifies on change
func (h *handlers) setConnected(c bool) {
	h.mu.Lock()
	if h.connected == c {
		h.mu.Unlock()
		return
	}
	h.connected = c
	fns := append([]func(bool){}, h.onConn...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
