package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/domain"
)

type handler struct {
	sessionUsecase domain.SessionUsecase
	upgrader       domain.TransportUpgrader
	log            logrus.FieldLogger
	opt            Config
	addr           string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
}

func NewHandler(sessionUsecase domain.SessionUsecase, upgrader domain.TransportUpgrader, log logrus.FieldLogger, config ...Config) (*handler, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if sessionUsecase == nil || upgrader == nil {
		return nil, errors.New("handler needs a session usecase and a transport upgrader")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handler{
		sessionUsecase: sessionUsecase,
		upgrader:       upgrader,
		log:            log,
		opt:            opt,
		addr:           net.JoinHostPort(opt.ListenIP, strconv.Itoa(opt.ListenPort)),
		ctx:            ctx,
		cancel:         cancel,
		conns:          make(map[net.Conn]struct{}),
	}

	return h, nil
}

func (h *handler) Run() error {
	l, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}

	return h.Serve(l)
}

// Serve accepts connections on l until Shutdown. Each connection gets its own goroutine.
func (h *handler) Serve(l net.Listener) error {
	if h.opt.TLS != nil {
		l = tls.NewListener(l, h.opt.TLS)
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = l.Close()
		return nil
	}
	h.listener = l
	h.mu.Unlock()

	h.log.WithField("tls", h.opt.TLS != nil).Info("Start server listen on " + l.Addr().String())

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if h.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				h.log.WithError(err).Warnf("Accept error, retrying in %v", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		if !h.track(conn) {
			_ = conn.Close()
			continue
		}
		h.wg.Add(1)
		go h.serveConn(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (h *handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *handler) track(conn net.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *handler) untrack(conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *handler) serveConn(conn net.Conn) {
	log := h.log.WithFields(logrus.Fields{"session": uuid.NewString(), "remote": conn.RemoteAddr().String()})
	defer h.wg.Done()
	defer h.untrack(conn)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("Session crashed")
			_ = conn.Close()
		}
	}()

	log.Info("New connection income")

	mc, err := h.upgrader.Upgrade(conn)
	if err != nil {
		_ = conn.Close()
		log.WithError(err).Warn("Upgrade rejected")
		return
	}

	if err := h.sessionUsecase.Serve(h.ctx, mc, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Session ended with error")
		return
	}
	log.Info("Connection closed")
}

func (h *handler) Shutdown() error {
	h.mu.Lock()
	h.closing = true
	l := h.listener
	for conn := range h.conns {
		_ = conn.SetDeadline(time.Now())
	}
	h.mu.Unlock()

	h.cancel()
	if l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		h.mu.Lock()
		for conn := range h.conns {
			_ = conn.Close()
		}
		h.mu.Unlock()
		return errors.New("timed out waiting for sessions to finish")
	}

	h.log.Info("Stop server listen on " + h.addr)

	return nil
}
