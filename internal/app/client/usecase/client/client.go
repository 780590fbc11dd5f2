package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/app/client/usecase/adapter"
	"github.com/poyaz/bytebeats/internal/domain"
)

var ErrNotConnected = errors.New("not connected")

type inbound struct {
	kind    domain.MessageKind
	payload []byte
	err     error
}

type client struct {
	dialer domain.TransportDialer
	player adapter.PlayerAdapter
	log    logrus.FieldLogger
	opt    Config

	conn  domain.MessageConn
	inbox chan inbound
	done  chan struct{}
}

var _ domain.ClientUsecase = (*client)(nil)

func NewClient(dialer domain.TransportDialer, player adapter.PlayerAdapter, log logrus.FieldLogger, config ...Config) (*client, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if dialer == nil || player == nil {
		return nil, errors.New("client needs a dialer and a player")
	}
	if opt.BufferSize <= 0 {
		opt.BufferSize = DefaultBufferSize
	}
	if opt.ReplyTimeout <= 0 {
		opt.ReplyTimeout = DefaultReplyTimeout
	}

	return &client{dialer: dialer, player: player, log: log, opt: opt}, nil
}

// Connect dials the server and waits for its AUTH_REQUIRED greeting.
func (c *client) Connect(ctx context.Context) error {
	dialCtx := ctx
	if c.opt.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opt.DialTimeout)
		defer cancel()
	}
	conn, err := c.dialer.Dial(dialCtx)
	if err != nil {
		return err
	}

	c.conn = conn
	c.inbox = make(chan inbound, 16)
	c.done = make(chan struct{})
	go c.readLoop(conn, c.inbox, c.done)

	_, err = c.await(ctx, domain.AuthRequired)
	return err
}

func (c *client) readLoop(conn domain.MessageConn, inbox chan<- inbound, done <-chan struct{}) {
	for {
		kind, payload, err := conn.ReadMessage()
		select {
		case inbox <- inbound{kind: kind, payload: payload, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *client) Close() error {
	if c.conn == nil {
		return nil
	}
	close(c.done)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *client) decode(in inbound) (domain.ControlMessage, bool) {
	var msg domain.ControlMessage
	if in.kind != domain.TextMessage {
		return msg, false
	}
	if err := json.Unmarshal(in.payload, &msg); err != nil {
		c.log.WithError(err).Warn("Ignoring malformed control message")
		return msg, false
	}
	return msg, true
}

// await returns the first control message whose type is one of types, skipping anything else.
func (c *client) await(ctx context.Context, types ...domain.MessageType) (domain.ControlMessage, error) {
	if c.conn == nil {
		return domain.ControlMessage{}, ErrNotConnected
	}

	timer := time.NewTimer(c.opt.ReplyTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.ControlMessage{}, ctx.Err()
		case <-timer.C:
			return domain.ControlMessage{}, fmt.Errorf("no %v from server after %v", types, c.opt.ReplyTimeout)
		case in := <-c.inbox:
			if in.err != nil {
				return domain.ControlMessage{}, in.err
			}
			msg, ok := c.decode(in)
			if !ok {
				continue
			}
			for _, t := range types {
				if msg.Type == t {
					return msg, nil
				}
			}
			c.log.WithField("type", msg.Type).Debug("Skipping control message")
		}
	}
}

func (c *client) send(msg domain.ControlMessage) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteText(payload)
}

func (c *client) Login(ctx context.Context, username, password string) ([]string, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if err := c.conn.WriteText([]byte(username + ":" + password)); err != nil {
		return nil, err
	}

	msg, err := c.await(ctx, domain.AuthSuccess, domain.AuthFailed)
	if err != nil {
		return nil, err
	}
	if msg.Type == domain.AuthFailed {
		return nil, domain.ErrAuthenticationFailed
	}

	return msg.Songs, nil
}

func (c *client) Songs(ctx context.Context) ([]string, error) {
	if err := c.send(domain.NewMessage(domain.GetSongs)); err != nil {
		return nil, err
	}

	msg, err := c.await(ctx, domain.SongList)
	if err != nil {
		return nil, err
	}
	return msg.Songs, nil
}

// playback is the per-song state owned by Play's loop.
type playback struct {
	name         string
	file         *os.File
	expected     int64
	received     int64
	ended        bool
	started      bool
	playerExited bool
}

// Play requests name, buffers it into a temp file and hands the file to the player once enough bytes
// arrived. commands drives pause, stop and quit until the song finishes.
func (c *client) Play(ctx context.Context, name string, commands <-chan domain.PlayerCommand) (domain.PlayOutcome, error) {
	if err := c.send(domain.NewSongMessage(domain.PlaySong, name)); err != nil {
		return 0, err
	}

	file, err := os.CreateTemp(c.opt.TempDir, "bytebeats-*"+filepath.Ext(name))
	if err != nil {
		return 0, err
	}
	defer os.Remove(file.Name())
	defer file.Close()

	pb := &playback{name: name, file: file, expected: -1}
	log := c.log.WithField("song", name)

	for {
		var playerDone <-chan struct{}
		if pb.started && !pb.playerExited {
			playerDone = c.player.Done()
		}

		select {
		case <-ctx.Done():
			_ = c.player.Stop()
			return 0, ctx.Err()

		case in := <-c.inbox:
			if in.err != nil {
				_ = c.player.Stop()
				return 0, in.err
			}
			done, err := c.receive(pb, in, log)
			if err != nil {
				_ = c.player.Stop()
				return 0, err
			}
			if done {
				return domain.PlayFinished, nil
			}

		case cmd := <-commands:
			switch cmd {
			case domain.TogglePauseCommand:
				if err := c.togglePause(pb, log); err != nil {
					log.WithError(err).Warn("Pause toggle failed")
				}
			case domain.StopCommand, domain.QuitCommand:
				if err := c.stop(ctx, pb); err != nil {
					return 0, err
				}
				if cmd == domain.QuitCommand {
					return domain.PlayQuit, nil
				}
				return domain.PlayStopped, nil
			}

		case <-playerDone:
			pb.playerExited = true
			if pb.ended {
				log.Info("Finished playing")
				return domain.PlayFinished, nil
			}
			log.Warn("Player exited before the stream finished")
		}
	}
}

// receive applies one inbound message to pb and reports whether playback is complete.
func (c *client) receive(pb *playback, in inbound, log logrus.FieldLogger) (bool, error) {
	if in.kind == domain.BinaryMessage {
		if _, err := pb.file.Write(in.payload); err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrStreamIO, err)
		}
		pb.received += int64(len(in.payload))
		if !pb.started && pb.received >= int64(c.opt.BufferSize) {
			return false, c.startPlayer(pb, log)
		}
		return false, nil
	}

	msg, ok := c.decode(in)
	if !ok {
		return false, nil
	}

	switch msg.Type {
	case domain.SongNotFound:
		return false, fmt.Errorf("%w: %s", domain.ErrCatalogMiss, pb.name)
	case domain.StreamError:
		return false, fmt.Errorf("%w: %s", domain.ErrStreamIO, msg.Error)
	case domain.SongPlaying:
		log.Info("Buffering")
	case domain.SongMetadata:
		if msg.Size != nil {
			pb.expected = *msg.Size
		}
	case domain.SongEnded:
		pb.ended = true
		if pb.expected >= 0 && pb.received != pb.expected {
			log.WithFields(logrus.Fields{"expected": pb.expected, "received": pb.received}).Warn("Song size mismatch")
		}
		if err := c.startPlayer(pb, log); err != nil {
			return false, err
		}
		if pb.playerExited {
			return true, nil
		}
	default:
		log.WithField("type", msg.Type).Debug("Control message during playback")
	}

	return false, nil
}

func (c *client) startPlayer(pb *playback, log logrus.FieldLogger) error {
	if pb.started {
		return nil
	}
	if err := pb.file.Sync(); err != nil {
		return err
	}
	if err := c.player.Start(pb.file.Name()); err != nil {
		return err
	}
	pb.started = true
	log.WithField("buffered", pb.received).Info("Playback started")
	return nil
}

func (c *client) togglePause(pb *playback, log logrus.FieldLogger) error {
	switch c.player.State() {
	case domain.PlayerPlaying:
		if err := c.player.Pause(); err != nil {
			return err
		}
		log.Info("Paused")
		if !pb.ended {
			return c.send(domain.NewMessage(domain.Pause))
		}
	case domain.PlayerPaused:
		if err := c.player.Resume(); err != nil {
			return err
		}
		log.Info("Resumed")
		if !pb.ended {
			return c.send(domain.NewMessage(domain.Resume))
		}
	}
	return nil
}

// stop ends local playback and, when the server is still sending, waits until it confirms.
func (c *client) stop(ctx context.Context, pb *playback) error {
	if err := c.player.Stop(); err != nil {
		c.log.WithError(err).Warn("Stop player")
	}
	if pb.ended {
		return nil
	}

	if err := c.send(domain.NewMessage(domain.StopSong)); err != nil {
		return err
	}
	_, err := c.await(ctx, domain.SongStopped, domain.SongEnded, domain.StreamError)
	return err
}
