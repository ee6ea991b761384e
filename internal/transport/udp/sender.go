// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "spectrum/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("UDP sender is closed")

// Sender writes datagrams to one target.
type Sender struct {
	conn   *net.UDPConn
	log    applog.Logger
	mu     sync.Mutex // Protects conn during Close
	closed bool
}

// NewSender dials targetAddress ("host:port").
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No need to bind a specific local port for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	s := &Sender{conn: conn, log: applog.Named("udp")}
	s.log.Infof("sending to %s", conn.RemoteAddr())
	return s, nil
}

// Send transmits data as one packet.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the connection. Safe to call more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
