// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"spectrum/internal/analysis"
	"spectrum/pkg/utils"
)

type recordingSender struct {
	packets utils.Recorder[[]byte]
}

func (r *recordingSender) Send(data []byte) error {
	r.packets.Record(append([]byte(nil), data...))
	return nil
}

func sineEngine(t *testing.T) *analysis.Engine {
	t.Helper()
	e, err := analysis.NewEngine(256, 8000)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	// 1000 Hz is bin 32 at 8000/256.
	if _, err := e.Transform(utils.SineBlock(256, 8000, 1000, 0.5)); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	return e
}

func TestNewPublisherValidation(t *testing.T) {
	e := sineEngine(t)
	if _, err := NewPublisher(time.Millisecond, nil, e); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewPublisher(time.Millisecond, &recordingSender{}, nil); err == nil {
		t.Error("expected error for nil provider")
	}
	p, err := NewPublisher(0, &recordingSender{}, e)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %s, want %s", p.interval, DefaultInterval)
	}
}

func TestPublishEncodesSpectrum(t *testing.T) {
	e := sineEngine(t)
	var sender recordingSender
	p, err := NewPublisher(time.Second, &sender, e)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	p.publish()
	p.publish()

	packets := sender.packets.Items()
	if len(packets) != 2 {
		t.Fatalf("sent %d packets, want 2", len(packets))
	}
	if len(packets[0]) != HeaderSize+e.BinCount()*4 {
		t.Errorf("packet size = %d, want %d", len(packets[0]), HeaderSize+e.BinCount()*4)
	}

	pkt, err := DecodePacket(packets[1])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if pkt.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", pkt.Sequence)
	}
	if time.Since(pkt.Timestamp) > time.Minute {
		t.Errorf("Timestamp %s is not recent", pkt.Timestamp)
	}
	mags := e.Magnitudes()
	if len(pkt.Magnitudes) != len(mags) {
		t.Fatalf("decoded %d magnitudes, want %d", len(pkt.Magnitudes), len(mags))
	}
	for i, v := range mags {
		if pkt.Magnitudes[i] != float32(v) {
			t.Fatalf("magnitude %d = %v, want %v", i, pkt.Magnitudes[i], float32(v))
		}
	}
}

func TestPublishSkipsWithoutData(t *testing.T) {
	e, err := analysis.NewEngine(256, 8000)
	if err != nil {
		t.Fatal(err)
	}
	var sender recordingSender
	p, _ := NewPublisher(time.Second, &sender, e)

	p.publish()
	if sender.packets.Len() != 0 {
		t.Errorf("sent %d packets before the first spectrum", sender.packets.Len())
	}
}

func TestDecodePacketRejectsBadLengths(t *testing.T) {
	if _, err := DecodePacket(make([]byte, HeaderSize-1)); err == nil {
		t.Error("expected error for short packet")
	}
	bad := make([]byte, HeaderSize+3)
	bad[13] = 1 // Claims one magnitude, carries three bytes.
	if _, err := DecodePacket(bad); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestPublisherOverUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	sender, err := NewSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	e := sineEngine(t)
	p, err := NewPublisher(5*time.Millisecond, sender, e)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	p.Start()
	p.Start() // no-op
	defer p.Close()

	buf := make([]byte, 64*1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}

	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	peak := 0
	for i, v := range pkt.Magnitudes {
		if v > pkt.Magnitudes[peak] {
			peak = i
		}
	}
	if peak != 32 {
		t.Errorf("peak bin = %d, want 32", peak)
	}

	if err := p.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSenderClosed(t *testing.T) {
	sender, err := NewSender("127.0.0.1:9")
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("expected ErrSenderClosed, got %v", err)
	}
}
