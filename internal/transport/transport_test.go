package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visca-camera/internal/config"
)

type received struct {
	mu   sync.Mutex
	data []byte
}

func (r *received) add(b []byte) {
	r.mu.Lock()
	r.data = append(r.data, b...)
	r.mu.Unlock()
}

func (r *received) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

func TestNew(t *testing.T) {
	tr, err := New(config.ControlConfig{Method: "serial", Port: "/dev/ttyUSB0"})
	require.NoError(t, err)
	serialTr, ok := tr.(*Serial)
	require.True(t, ok)
	assert.Equal(t, DefaultBaudRate, serialTr.Mode().BaudRate)

	tr, err = New(config.ControlConfig{Method: "udp", Address: "10.0.0.1:52381"})
	require.NoError(t, err)
	assert.IsType(t, &Net{}, tr)

	_, err = New(config.ControlConfig{Method: "tcp"})
	assert.Error(t, err)

	_, err = New(config.ControlConfig{Method: "ir"})
	assert.ErrorIs(t, err, ErrUnsupportedProto)
}

func TestVISCAOverIPFraming(t *testing.T) {
	frame := []byte{0x81, 0x01, 0x04, 0x00, 0x02, 0xFF}
	packet := wrapVISCAOverIP(ipTypeCommand, 7, frame)

	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x07}, packet[:8])
	assert.Equal(t, frame, packet[8:])

	reply := wrapVISCAOverIP(ipTypeReply, 7, []byte{0x90, 0x41, 0xFF})
	assert.Equal(t, []byte{0x90, 0x41, 0xFF}, unwrapVISCAOverIP(reply))

	assert.Nil(t, unwrapVISCAOverIP(wrapVISCAOverIP(ipTypeControlReply, 0, []byte{0x01})))
	assert.Equal(t, []byte{0x90, 0x51, 0xFF}, unwrapVISCAOverIP([]byte{0x90, 0x51, 0xFF}))
}

func TestSendWithoutConnect(t *testing.T) {
	assert.ErrorIs(t, NewNet("tcp", "127.0.0.1:1").SendBytes([]byte{0x01}), ErrNotConnected)
	assert.ErrorIs(t, NewSerial("/dev/null", 0).SendBytes([]byte{0x01}), ErrNotConnected)
}

func TestNetTCPLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	tr := NewNet("tcp", ln.Addr().String())
	var states []bool
	var statesMu sync.Mutex
	tr.OnConnectionChange(func(c bool) {
		statesMu.Lock()
		states = append(states, c)
		statesMu.Unlock()
	})
	rx := &received{}
	tr.OnBytes(rx.add)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))
	assert.True(t, tr.IsConnected())

	var camera net.Conn
	select {
	case camera = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer camera.Close()

	// raw VISCA over TCP, no header
	frame := []byte{0x81, 0x01, 0x04, 0x00, 0x02, 0xFF}
	require.NoError(t, tr.SendBytes(frame))
	buf := make([]byte, 16)
	camera.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := camera.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf[:n])

	_, err = camera.Write([]byte{0x90, 0x41, 0xFF})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]byte{0x90, 0x41, 0xFF}, rx.bytes())
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())

	statesMu.Lock()
	defer statesMu.Unlock()
	assert.Equal(t, []bool{true, false}, states)
}

func TestNetUDPLoopback(t *testing.T) {
	camera, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer camera.Close()

	tr := NewNet("udp", camera.LocalAddr().String())
	rx := &received{}
	tr.OnBytes(rx.add)

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	buf := make([]byte, 64)
	camera.SetReadDeadline(time.Now().Add(5 * time.Second))

	// sequence reset first
	n, peer, err := camera.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01}, buf[:n])

	inquiry := []byte{0x81, 0x09, 0x04, 0x00, 0xFF}
	require.NoError(t, tr.SendBytes(inquiry))
	n, _, err = camera.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, wrapVISCAOverIP(ipTypeInquiry, 0, inquiry), buf[:n])

	answer := []byte{0x90, 0x50, 0x02, 0xFF}
	_, err = camera.WriteTo(wrapVISCAOverIP(ipTypeReply, 0, answer), peer)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(answer, rx.bytes())
	}, 5*time.Second, 10*time.Millisecond)
}
