package tcp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"

	sessionUsecaseStream "github.com/poyaz/bytebeats/internal/app/stream/usecase/session"
	"github.com/poyaz/bytebeats/internal/domain"
	infraCatalog "github.com/poyaz/bytebeats/internal/infra/catalog"
	infraCredential "github.com/poyaz/bytebeats/internal/infra/credential"
	infraRaw "github.com/poyaz/bytebeats/internal/infra/raw"
	infraWs "github.com/poyaz/bytebeats/internal/infra/ws"
)

const songSize = 70000

func startServer(t *testing.T, upgrader domain.TransportUpgrader) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), make([]byte, songSize), 0o644); err != nil {
		t.Fatal(err)
	}

	log, _ := test.NewNullLogger()
	catalog, err := infraCatalog.NewCatalog(log, infraCatalog.Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	creds := infraCredential.NewStore(map[string]string{"user1": infraCredential.HashPassword("password1")})
	session, err := sessionUsecaseStream.NewSession(catalog, creds, sessionUsecaseStream.Config{ChunkSize: 32 * 1024})
	if err != nil {
		t.Fatal(err)
	}

	h, err := NewHandler(session, upgrader, log, Config{ListenIP: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- h.Serve(l) }()

	t.Cleanup(func() {
		if err := h.Shutdown(); err != nil {
			t.Error(err)
		}
		select {
		case err := <-served:
			if err != nil {
				t.Errorf("Serve = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})

	return l.Addr().String()
}

func decodeControl(t *testing.T, payload []byte) domain.ControlMessage {
	t.Helper()
	var msg domain.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode %q: %v", payload, err)
	}
	return msg
}

func TestWebsocketSession(t *testing.T) {
	wsInfra, err := infraWs.NewWsInfra(infraWs.Config{HandshakeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, wsInfra)

	c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() domain.ControlMessage {
		t.Helper()
		kind, payload, err := c.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if kind != websocket.TextMessage {
			t.Fatalf("got message type %d, want text", kind)
		}
		return decodeControl(t, payload)
	}

	if msg := read(); msg.Type != domain.AuthRequired {
		t.Fatalf("got %s", msg.Type)
	}
	if err := c.WriteMessage(websocket.TextMessage, []byte("user1:password1")); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.AuthSuccess || len(msg.Songs) != 1 || msg.Songs[0] != "song.mp3" {
		t.Fatalf("got %+v", msg)
	}

	if err := c.WriteJSON(domain.NewSongMessage(domain.PlaySong, "song.mp3")); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.SongPlaying {
		t.Fatalf("got %s", msg.Type)
	}
	if msg := read(); msg.Type != domain.SongMetadata || msg.Size == nil || *msg.Size != songSize {
		t.Fatalf("got %+v", msg)
	}

	received := 0
	for {
		kind, payload, err := c.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if kind == websocket.BinaryMessage {
			received += len(payload)
			continue
		}
		if msg := decodeControl(t, payload); msg.Type != domain.SongEnded {
			t.Fatalf("got %s while streaming", msg.Type)
		}
		break
	}
	if received != songSize {
		t.Fatalf("received %d bytes, want %d", received, songSize)
	}

	if err := c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteJSON(domain.NewMessage(domain.GetSongs)); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.SongList {
		t.Fatalf("got %s", msg.Type)
	}
}

func TestPlainHTTPRequestRejected(t *testing.T) {
	wsInfra, err := infraWs.NewWsInfra()
	if err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, wsInfra)

	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest || string(body) != "Must be a websocket request" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestRawSession(t *testing.T) {
	rawInfra, err := infraRaw.NewRawInfra()
	if err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, rawInfra)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := infraRaw.NewDialer(addr, nil).Dial(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func() domain.ControlMessage {
		t.Helper()
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if kind != domain.TextMessage {
			t.Fatalf("got kind %d, want text", kind)
		}
		return decodeControl(t, payload)
	}

	if msg := read(); msg.Type != domain.AuthRequired {
		t.Fatalf("got %s", msg.Type)
	}
	if err := conn.WriteText([]byte("user1:nope")); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.AuthFailed {
		t.Fatalf("got %s", msg.Type)
	}
	if err := conn.WriteText([]byte("user1:password1")); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.AuthSuccess {
		t.Fatalf("got %s", msg.Type)
	}

	payload, _ := json.Marshal(domain.NewSongMessage(domain.PlaySong, "other.mp3"))
	if err := conn.WriteText(payload); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != domain.SongNotFound || msg.Name != "other.mp3" {
		t.Fatalf("got %+v", msg)
	}
}

func TestShutdownClosesIdleSessions(t *testing.T) {
	rawInfra, err := infraRaw.NewRawInfra()
	if err != nil {
		t.Fatal(err)
	}

	log, _ := test.NewNullLogger()
	catalog, err := infraCatalog.NewCatalog(log, infraCatalog.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	session, err := sessionUsecaseStream.NewSession(catalog, infraCredential.NewStore(nil))
	if err != nil {
		t.Fatal(err)
	}
	h, err := NewHandler(session, rawInfra, log)
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- h.Serve(l) }()

	conn, err := infraRaw.NewDialer(l.Addr().String(), nil).Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	if err := h.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve = %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("session still open after Shutdown")
	}
}
