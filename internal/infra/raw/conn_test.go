package raw

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/poyaz/bytebeats/internal/domain"
)

func TestConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	sender, receiver := NewConn(a, 0), NewConn(b, 0)
	big := bytes.Repeat([]byte{0xAB}, 100000)

	go func() {
		_ = sender.WriteText([]byte(`{"type":"GET_SONGS"}`))
		_ = sender.WriteBinary(big)
		_ = sender.WriteBinary(nil)
	}()

	kind, payload, err := receiver.ReadMessage()
	if err != nil || kind != domain.TextMessage || string(payload) != `{"type":"GET_SONGS"}` {
		t.Fatalf("text: %v %q %v", kind, payload, err)
	}
	kind, payload, err = receiver.ReadMessage()
	if err != nil || kind != domain.BinaryMessage || !bytes.Equal(payload, big) {
		t.Fatalf("binary: %v len %d %v", kind, len(payload), err)
	}
	kind, payload, err = receiver.ReadMessage()
	if err != nil || kind != domain.BinaryMessage || len(payload) != 0 {
		t.Fatalf("empty: %v len %d %v", kind, len(payload), err)
	}
}

func TestConnWireFormat(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() { _ = NewConn(a, 0).WriteText([]byte("hi")) }()

	buf := make([]byte, 7)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 0, 0, 0, 2, 'h', 'i'}; !bytes.Equal(buf[:n], want) {
		t.Fatalf("wire = %v, want %v", buf[:n], want)
	}
}

func TestConnRejects(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"unknown kind", []byte{7, 0, 0, 0, 0}, domain.ErrMalformedFrame},
		{"oversized", []byte{2, 0, 0, 1, 0}, domain.ErrMalformedFrame},
		{"truncated", []byte{2, 0, 0, 0, 9, 'x'}, domain.ErrConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := net.Pipe()
			defer b.Close()

			go func() {
				_, _ = a.Write(tt.wire)
				_ = a.Close()
			}()

			_, _, err := NewConn(b, 16).ReadMessage()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConnWriteTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := NewConn(a, 4).WriteBinary([]byte("too large")); !errors.Is(err, domain.ErrMalformedFrame) {
		t.Fatalf("err = %v, want malformed", err)
	}
}
