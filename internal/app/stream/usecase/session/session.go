package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/app/stream/usecase/adapter"
	"github.com/poyaz/bytebeats/internal/domain"
)

type service struct {
	catalog adapter.CatalogAdapter
	creds   adapter.CredentialAdapter
	opt     Config
}

var _ domain.SessionUsecase = (*service)(nil)

func NewSession(catalog adapter.CatalogAdapter, creds adapter.CredentialAdapter, config ...Config) (*service, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if catalog == nil || creds == nil {
		return nil, errors.New("session needs a catalog and a credential store")
	}
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}
	if opt.QueueLimit <= 0 {
		opt.QueueLimit = DefaultQueueLimit
	}
	if opt.PauseMode == 0 {
		opt.PauseMode = domain.PauseSuspend
	}

	return &service{catalog: catalog, creds: creds, opt: opt}, nil
}

// Serve runs one connection from AUTH_REQUIRED until the peer goes away. It owns conn and closes it.
// A peer disconnect is not an error.
func (s *service) Serve(ctx context.Context, conn domain.MessageConn, log logrus.FieldLogger) error {
	ss := s.newSession(conn, log)
	defer ss.close()

	go ss.readLoop()

	return ss.run(ctx)
}

var errIdle = errors.New("session idle")

type inbound struct {
	kind    domain.MessageKind
	payload []byte
	err     error
}

type streamAction int

const (
	keepStreaming streamAction = iota
	stopStreaming
	streamFailed
	connClosed
)

type session struct {
	svc    *service
	conn   domain.MessageConn
	log    logrus.FieldLogger
	state  atomic.Int32
	inbox  chan inbound
	done   chan struct{}
	queue  []domain.ControlMessage
	paused bool
}

func (s *service) newSession(conn domain.MessageConn, log logrus.FieldLogger) *session {
	return &session{
		svc:   s,
		conn:  conn,
		log:   log,
		inbox: make(chan inbound),
		done:  make(chan struct{}),
	}
}

func (ss *session) State() domain.SessionState {
	return domain.SessionState(ss.state.Load())
}

func (ss *session) setState(state domain.SessionState) {
	if prev := ss.State(); prev != state {
		ss.log.WithFields(logrus.Fields{"from": prev, "to": state}).Debug("Session state changed")
	}
	ss.state.Store(int32(state))
}

func (ss *session) close() {
	ss.setState(domain.Closed)
	close(ss.done)
	if err := ss.conn.Close(); err != nil {
		ss.log.WithError(err).Debug("Close connection")
	}
}

// readLoop is the only reader of conn. It stops after the first read error or once the session is done.
func (ss *session) readLoop() {
	for {
		kind, payload, err := ss.conn.ReadMessage()
		select {
		case ss.inbox <- inbound{kind: kind, payload: payload, err: err}:
		case <-ss.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (ss *session) run(ctx context.Context) error {
	ss.setState(domain.Unauthenticated)
	if err := ss.send(domain.NewMessage(domain.AuthRequired)); err != nil {
		return ss.finish(err)
	}

	idle := newIdleTimer(ss.svc.opt.IdleTimeout)
	defer idle.stop()

	for {
		if ss.State() == domain.Authenticated && len(ss.queue) > 0 {
			msg := ss.queue[0]
			ss.queue = ss.queue[1:]
			if err := ss.handleControl(ctx, msg); err != nil {
				return ss.finish(err)
			}
			idle.reset()
			continue
		}

		select {
		case <-ctx.Done():
			return ss.finish(ctx.Err())
		case <-idle.c:
			return ss.finish(errIdle)
		case in := <-ss.inbox:
			if in.err != nil {
				return ss.finish(in.err)
			}
			if err := ss.handle(ctx, in); err != nil {
				return ss.finish(err)
			}
			idle.reset()
		}
	}
}

// finish maps the reason a session ended to Serve's result.
func (ss *session) finish(err error) error {
	ss.setState(domain.Closed)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errIdle):
		ss.log.WithField("timeout", ss.svc.opt.IdleTimeout).Info("Session idle, closing")
		return nil
	case errors.Is(err, domain.ErrConnectionLost):
		ss.log.WithError(err).Debug("Peer disconnected")
		return nil
	}
	return err
}

func (ss *session) handle(ctx context.Context, in inbound) error {
	if ss.State() == domain.Unauthenticated {
		return ss.authenticate(in)
	}

	msg, ok := ss.decodeControl(in)
	if !ok {
		return nil
	}

	return ss.handleControl(ctx, msg)
}

func (ss *session) authenticate(in inbound) error {
	var username, password string
	ok := false
	if in.kind == domain.TextMessage {
		username, password, ok = strings.Cut(string(in.payload), ":")
	}

	if !ok || !ss.svc.creds.Verify(username, password) {
		ss.log.WithField("username", username).Warn("Authentication failed")
		return ss.send(domain.NewMessage(domain.AuthFailed))
	}

	ss.log = ss.log.WithField("username", username)
	ss.setState(domain.Authenticated)
	ss.log.Info("Authenticated")

	return ss.send(domain.NewSongListMessage(domain.AuthSuccess, ss.songs()))
}

func (ss *session) songs() []string {
	songs, err := ss.svc.catalog.ListSongs()
	if err != nil {
		ss.log.WithError(err).Error("List songs")
		return []string{}
	}
	return songs
}

func (ss *session) decodeControl(in inbound) (domain.ControlMessage, bool) {
	var msg domain.ControlMessage
	if in.kind != domain.TextMessage {
		ss.log.WithField("bytes", len(in.payload)).Debug("Ignoring binary message from client")
		return msg, false
	}
	if err := json.Unmarshal(in.payload, &msg); err != nil || msg.Type == "" {
		ss.log.WithError(err).WithField("payload", string(in.payload)).Warn("Ignoring malformed control message")
		return msg, false
	}

	return msg, true
}

func (ss *session) handleControl(ctx context.Context, msg domain.ControlMessage) error {
	switch msg.Type {
	case domain.GetSongs:
		return ss.send(domain.NewSongListMessage(domain.SongList, ss.songs()))
	case domain.PlaySong:
		return ss.play(ctx, msg.Name)
	case domain.Pause:
		return ss.send(domain.NewMessage(domain.Paused))
	case domain.Resume:
		return ss.send(domain.NewMessage(domain.Resumed))
	case domain.StopSong:
		return ss.send(domain.NewMessage(domain.SongStopped))
	default:
		ss.log.WithField("type", msg.Type).Warn("Ignoring unknown control message")
	}

	return nil
}

// play streams one song. Failures while streaming are reported to the peer and the session stays
// authenticated; only a lost connection or cancellation is returned.
func (ss *session) play(ctx context.Context, name string) error {
	songs, err := ss.svc.catalog.ListSongs()
	if err != nil {
		return ss.streamError(name, err)
	}
	if !slices.Contains(songs, name) {
		ss.log.WithField("song", name).Info("Requested song not found")
		return ss.send(domain.NewSongMessage(domain.SongNotFound, name))
	}

	rc, size, err := ss.svc.catalog.Open(name)
	if errors.Is(err, domain.ErrCatalogMiss) {
		return ss.send(domain.NewSongMessage(domain.SongNotFound, name))
	}
	if err != nil {
		return ss.streamError(name, err)
	}
	defer rc.Close()

	log := ss.log.WithFields(logrus.Fields{"song": name, "size": size})
	ss.setState(domain.Streaming)
	defer func() {
		ss.paused = false
		if ss.State() == domain.Streaming {
			ss.setState(domain.Authenticated)
		}
	}()

	if err := ss.send(domain.NewSongMessage(domain.SongPlaying, name)); err != nil {
		return ss.streamError(name, err)
	}
	if err := ss.send(domain.NewSongMetadataMessage(name, size)); err != nil {
		return ss.streamError(name, err)
	}
	log.Info("Streaming song")

	buf := make([]byte, ss.svc.opt.ChunkSize)
	var sent int64
	for {
		n, rerr := io.ReadFull(rc, buf)
		if n > 0 {
			if err := ss.sendChunk(buf[:n]); err != nil {
				return ss.streamError(name, err)
			}
			sent += int64(n)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return ss.streamError(name, rerr)
		}

		action, err := ss.pace(ctx, name)
		switch action {
		case stopStreaming:
			log.WithField("sent", sent).Info("Streaming stopped by client")
			return nil
		case streamFailed:
			return ss.streamError(name, err)
		case connClosed:
			return err
		}
	}

	log.WithField("sent", sent).Info("Finished streaming song")
	ss.setState(domain.Authenticated)
	if err := ss.send(domain.NewSongMessage(domain.SongEnded, name)); err != nil {
		return ss.streamError(name, err)
	}

	return nil
}

// pace waits out the delay between chunks while still answering control messages.
func (ss *session) pace(ctx context.Context, name string) (streamAction, error) {
	if ss.svc.opt.ChunkDelay <= 0 {
		select {
		case in := <-ss.inbox:
			return ss.streamControl(ctx, name, in)
		default:
			return keepStreaming, nil
		}
	}

	timer := time.NewTimer(ss.svc.opt.ChunkDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return connClosed, ctx.Err()
		case <-timer.C:
			return keepStreaming, nil
		case in := <-ss.inbox:
			action, err := ss.streamControl(ctx, name, in)
			if action != keepStreaming || err != nil {
				return action, err
			}
		}
	}
}

// streamControl handles one inbound message while a song is streaming.
func (ss *session) streamControl(ctx context.Context, name string, in inbound) (streamAction, error) {
	if in.err != nil {
		return connClosed, in.err
	}
	msg, ok := ss.decodeControl(in)
	if !ok {
		return keepStreaming, nil
	}

	var err error
	switch msg.Type {
	case domain.Pause:
		if err = ss.send(domain.NewMessage(domain.Paused)); err != nil {
			break
		}
		if ss.svc.opt.PauseMode == domain.PauseSuspend && !ss.paused {
			ss.paused = true
			return ss.suspend(ctx, name)
		}
	case domain.Resume:
		ss.paused = false
		err = ss.send(domain.NewMessage(domain.Resumed))
	case domain.StopSong:
		ss.setState(domain.Authenticated)
		if err = ss.send(domain.NewSongMessage(domain.SongStopped, name)); err != nil {
			break
		}
		return stopStreaming, nil
	case domain.GetSongs:
		err = ss.send(domain.NewSongListMessage(domain.SongList, ss.songs()))
	case domain.PlaySong:
		if len(ss.queue) >= ss.svc.opt.QueueLimit {
			ss.log.WithFields(logrus.Fields{"song": msg.Name, "limit": ss.svc.opt.QueueLimit}).Warn("Play queue full, dropping request")
			break
		}
		ss.queue = append(ss.queue, msg)
		ss.log.WithField("song", msg.Name).Debug("Queued play request until current song ends")
	default:
		ss.log.WithField("type", msg.Type).Warn("Ignoring unknown control message")
	}

	if err != nil {
		return streamFailed, err
	}
	return keepStreaming, nil
}

// suspend holds the stream until RESUME, STOP_SONG, a lost connection or the idle timeout.
func (ss *session) suspend(ctx context.Context, name string) (streamAction, error) {
	ss.log.WithField("song", name).Info("Stream paused")

	idle := newIdleTimer(ss.svc.opt.IdleTimeout)
	defer idle.stop()

	for ss.paused {
		select {
		case <-ctx.Done():
			return connClosed, ctx.Err()
		case <-idle.c:
			return connClosed, errIdle
		case in := <-ss.inbox:
			action, err := ss.streamControl(ctx, name, in)
			if action != keepStreaming || err != nil {
				return action, err
			}
			idle.reset()
		}
	}
	ss.log.WithField("song", name).Info("Stream resumed")

	return keepStreaming, nil
}

func (ss *session) streamError(name string, err error) error {
	ss.log.WithError(err).WithField("song", name).Error("Streaming failed")
	ss.setState(domain.Authenticated)

	msg := domain.NewStreamErrorMessage(fmt.Errorf("%w: %v", domain.ErrStreamIO, err))
	if serr := ss.send(msg); serr != nil {
		ss.log.WithError(serr).Debug("Could not report stream error")
	}

	return nil
}

func (ss *session) setWriteDeadline() {
	if d := ss.svc.opt.WriteTimeout; d > 0 {
		_ = ss.conn.SetWriteDeadline(time.Now().Add(d))
	}
}

func (ss *session) send(msg domain.ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ss.setWriteDeadline()
	if err := ss.conn.WriteText(payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}
	ss.log.WithField("type", msg.Type).Debug("Sent control message")

	return nil
}

func (ss *session) sendChunk(p []byte) error {
	ss.setWriteDeadline()
	return ss.conn.WriteBinary(p)
}

type idleTimer struct {
	d     time.Duration
	timer *time.Timer
	c     <-chan time.Time
}

// newIdleTimer returns a timer whose channel never fires when d is zero.
func newIdleTimer(d time.Duration) *idleTimer {
	it := &idleTimer{d: d}
	if d > 0 {
		it.timer = time.NewTimer(d)
		it.c = it.timer.C
	}
	return it
}

func (it *idleTimer) reset() {
	if it.timer == nil {
		return
	}
	if !it.timer.Stop() {
		select {
		case <-it.timer.C:
		default:
		}
	}
	it.timer.Reset(it.d)
}

func (it *idleTimer) stop() {
	if it.timer != nil {
		it.timer.Stop()
	}
}
