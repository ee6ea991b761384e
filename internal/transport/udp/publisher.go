// SPDX-License-Identifier: MIT
/*
Package udp publishes the latest spectrum as fixed-layout datagrams.

Unlike the WebSocket transport, the publisher is not a listener: it polls an
analysis.SpectrumProvider on its own ticker, so the packet rate is
independent of the capture rate.

Packet layout (big-endian):

	|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
	+-------------------+-----------------------+---------------+-------------------------+
	|  Sequence Number  |       Timestamp       |   Magnitude   |       Magnitudes        |
	|      (uint32)     |  (int64, Unix nanos)  |   Count (N)   |      (N * float32)      |
	+-------------------+-----------------------+---------------+-------------------------+
*/
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"spectrum/internal/analysis"
	applog "spectrum/internal/log"
)

// HeaderSize is the fixed part of every packet.
const HeaderSize = 4 + 8 + 2

// DefaultInterval is used when a non-positive interval is given (~60Hz).
const DefaultInterval = 16 * time.Millisecond

// Packet is a decoded datagram.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	Magnitudes []float32
}

// DecodePacket parses a datagram produced by a Publisher.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	count := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) != HeaderSize+count*4 {
		return Packet{}, fmt.Errorf("packet length %d does not match %d magnitudes", len(data), count)
	}

	p := Packet{
		Sequence:   binary.BigEndian.Uint32(data[0:4]),
		Timestamp:  time.Unix(0, int64(binary.BigEndian.Uint64(data[4:12]))),
		Magnitudes: make([]float32, count),
	}
	if err := binary.Read(bytes.NewReader(data[HeaderSize:]), binary.BigEndian, p.Magnitudes); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// PacketSender is what a Publisher writes datagrams to.
type PacketSender interface {
	Send(data []byte) error
}

// Publisher periodically sends the provider's latest spectrum.
type Publisher struct {
	sender   PacketSender
	provider analysis.SpectrumProvider
	interval time.Duration
	log      applog.Logger

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	// Reused by every packet.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher sizes its buffers from provider.BinCount().
func NewPublisher(interval time.Duration, sender PacketSender, provider analysis.SpectrumProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("udp publisher: spectrum provider cannot be nil")
	}

	log := applog.Named("udp")
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("invalid interval, defaulting to %s", interval)
	}

	bins := provider.BinCount()
	if bins > 0xFFFF {
		return nil, fmt.Errorf("udp publisher: %d bins do not fit the packet header", bins)
	}

	return &Publisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		log:          log,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: bytes.NewBuffer(make([]byte, 0, HeaderSize+bins*4)),
	}, nil
}

// Start launches the publishing goroutine. Calling it while running is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Debugf("publishing every %s", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the goroutine and waits for it. Safe to call more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// publish sends one packet. Before the first spectrum there is nothing to
// send and the tick is skipped.
func (p *Publisher) publish() {
	if err := p.provider.MagnitudesInto(p.magBuffer); err != nil {
		if !errors.Is(err, analysis.ErrNoData) {
			p.log.Errorf("error getting magnitudes: %v", err)
		}
		return
	}

	packet, err := p.buildPacket(time.Now())
	if err != nil {
		p.log.Errorf("error packing data: %v", err)
		return
	}
	if err := p.sender.Send(packet); err != nil {
		p.log.Warnf("packet %d: %v", p.sequenceNum, err)
		return
	}
	p.log.Debugf("sent packet %d (%d bytes)", p.sequenceNum, len(packet))
}

// buildPacket encodes magBuffer. The returned slice is reused by the next
// call.
func (p *Publisher) buildPacket(now time.Time) ([]byte, error) {
	for i, v := range p.magBuffer {
		p.f32Buffer[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, now.UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}
