package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = time.Second

	// VISCA over IP payload types
	ipTypeCommand      uint16 = 0x0100
	ipTypeInquiry      uint16 = 0x0110
	ipTypeReply        uint16 = 0x0111
	ipTypeControl      uint16 = 0x0200
	ipTypeControlReply uint16 = 0x0201

	ipHeaderLen = 8
)

// Net talks to a camera over TCP (raw VISCA) or UDP (VISCA over IP)
type Net struct {
	handlers

	network string
	address string

	connMu sync.Mutex
	conn   net.Conn
	seqNum uint32
}

// NewNet creates a network transport. network is "tcp" or "udp".
func NewNet(network, address string) *Net {
	return &Net{network: network, address: address}
}

func (n *Net) Connect(ctx context.Context) error {
	n.connMu.Lock()
	if n.conn != nil {
		n.connMu.Unlock()
		return nil
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, n.network, n.address)
	if err != nil {
		n.connMu.Unlock()
		return fmt.Errorf("failed to connect to VISCA over %s: %w", n.network, err)
	}
	n.conn = conn
	n.seqNum = 0
	n.connMu.Unlock()

	if n.network == "udp" {
		// Sony cameras expect the sequence number to be reset on a new session
		if err := n.write(conn, wrapVISCAOverIP(ipTypeControl, 0, []byte{0x01})); err != nil {
			log.Warn().Err(err).Msg("net: sequence reset failed")
		}
	}

	log.Info().Str("network", n.network).Str("address", n.address).Msg("net: connected")
	n.setConnected(true)

	go n.readLoop(conn)
	return nil
}

func (n *Net) readLoop(conn net.Conn) {
	buf := make([]byte, 1500)
	for {
		count, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("address", n.address).Msg("net: read failed")
			}
			n.closeConn(conn)
			return
		}

		data := buf[:count]
		if n.network == "udp" {
			data = unwrapVISCAOverIP(data)
		}
		n.deliver(append([]byte(nil), data...))
	}
}

func (n *Net) SendBytes(b []byte) error {
	n.connMu.Lock()
	conn := n.conn
	if conn == nil {
		n.connMu.Unlock()
		return ErrNotConnected
	}

	packet := b
	if n.network == "udp" {
		typ := ipTypeCommand
		if len(b) > 1 && b[1] == 0x09 {
			typ = ipTypeInquiry
		}
		packet = wrapVISCAOverIP(typ, n.seqNum, b)
		n.seqNum++
	}
	n.connMu.Unlock()

	return n.write(conn, packet)
}

func (n *Net) write(conn net.Conn, packet []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("%s write: %w", n.network, err)
	}
	return nil
}

func (n *Net) Disconnect() error {
	n.connMu.Lock()
	conn := n.conn
	n.connMu.Unlock()

	if conn == nil {
		return nil
	}
	return n.closeConn(conn)
}

// closeConn closes conn if it is still the active connection
func (n *Net) closeConn(conn net.Conn) error {
	n.connMu.Lock()
	if n.conn != conn {
		n.connMu.Unlock()
		return nil
	}
	n.conn = nil
	n.connMu.Unlock()

	err := conn.Close()
	n.setConnected(false)
	log.Info().Str("address", n.address).Msg("net: disconnected")
	return err
}

// wrapVISCAOverIP prefixes a VISCA message with the 8 byte VISCA over IP header
func wrapVISCAOverIP(typ uint16, seq uint32, payload []byte) []byte {
	// Bytes 0-1: payload type
	// Bytes 2-3: payload length (big endian)
	// Bytes 4-7: sequence number (big endian)
	packet := make([]byte, ipHeaderLen, ipHeaderLen+len(payload))
	binary.BigEndian.PutUint16(packet[0:2], typ)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(payload)))
	binary.BigEndian.PutUint32(packet[4:8], seq)
	return append(packet, payload...)
}

// unwrapVISCAOverIP returns the VISCA message carried by packet. Control
// replies carry no VISCA data and yield nil. Data without a recognizable
// header is passed through.
func unwrapVISCAOverIP(packet []byte) []byte {
	if len(packet) < ipHeaderLen {
		return packet
	}
	typ := binary.BigEndian.Uint16(packet[0:2])
	switch typ {
	case ipTypeReply, ipTypeCommand, ipTypeInquiry:
	case ipTypeControlReply:
		return nil
	default:
		return packet
	}
	size := int(binary.BigEndian.Uint16(packet[2:4]))
	body := packet[ipHeaderLen:]
	if size < len(body) {
		body = body[:size]
	}
	return body
}
