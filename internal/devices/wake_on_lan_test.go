package devices

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dokzlo13/homed/internal/event"
	"github.com/dokzlo13/homed/internal/fulfillment"
)

// packetListener collects UDP datagrams sent to a loopback port so the
// tests can stand in for the broadcast target.
type packetListener struct {
	conn    net.PacketConn
	packets chan []byte
}

func listenPackets(t *testing.T) *packetListener {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	l := &packetListener{conn: conn, packets: make(chan []byte, 4)}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			l.packets <- pkt
		}
	}()
	return l
}

func (l *packetListener) addr() string { return l.conn.LocalAddr().String() }

func (l *packetListener) next(t *testing.T) []byte {
	t.Helper()
	select {
	case pkt := <-l.packets:
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func TestWakeOnLANMagicPacket(t *testing.T) {
	l := listenPackets(t)
	w := NewWakeOnLAN(WakeOnLANConfig{
		ID:        "pc",
		Name:      "Workstation",
		MAC:       "00:11:22:33:44:55",
		Broadcast: l.addr(),
	})

	if err := w.SetActive(context.Background(), false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	pkt := l.next(t)
	if len(pkt) != 102 {
		t.Fatalf("packet length = %d, want 102", len(pkt))
	}
	if !bytes.Equal(pkt[:6], bytes.Repeat([]byte{0xFF}, 6)) {
		t.Errorf("packet header = % x, want six 0xFF bytes", pkt[:6])
	}
	mac := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	for i := 0; i < 16; i++ {
		chunk := pkt[6+i*6 : 6+(i+1)*6]
		if !bytes.Equal(chunk, mac) {
			t.Fatalf("mac repetition %d = % x, want % x", i, chunk, mac)
		}
	}
}

func TestWakeOnLANRefusesDeactivate(t *testing.T) {
	w := NewWakeOnLAN(WakeOnLANConfig{ID: "pc", MAC: "00:11:22:33:44:55"})

	err := w.SetActive(context.Background(), true)
	if !errors.Is(err, fulfillment.ErrActionNotAvailable) {
		t.Errorf("SetActive(deactivate) error = %v, want %v", err, fulfillment.ErrActionNotAvailable)
	}
}

func TestWakeOnLANBadMAC(t *testing.T) {
	w := NewWakeOnLAN(WakeOnLANConfig{ID: "pc", MAC: "not-a-mac"})

	err := w.SetActive(context.Background(), false)
	if !errors.Is(err, fulfillment.ErrTransientError) {
		t.Errorf("SetActive error = %v, want %v", err, fulfillment.ErrTransientError)
	}
}

func TestWakeOnLANActivatesOverMqtt(t *testing.T) {
	l := listenPackets(t)
	w := NewWakeOnLAN(WakeOnLANConfig{
		ID:        "pc",
		MAC:       "00:11:22:33:44:55",
		Broadcast: l.addr(),
		Topic:     "homed/pc/wake",
	})
	ctx := context.Background()

	w.OnMqtt(ctx, event.MqttMessage{Topic: "homed/pc/wake", Payload: []byte(`{"activate":false}`)})
	w.OnMqtt(ctx, event.MqttMessage{Topic: "homed/pc/wake", Payload: []byte(`{"activate":true}`)})

	pkt := l.next(t)
	if len(pkt) != 102 {
		t.Errorf("packet length = %d, want 102", len(pkt))
	}
	select {
	case <-l.packets:
		t.Error("activate:false should not send a packet")
	default:
	}
}
