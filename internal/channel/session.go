// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/upload"
)

// DefaultPingInterval is the keepalive interval of a [Session].
const DefaultPingInterval = 10 * time.Second

const (
	inputBuffer = 16
	closeGrace  = time.Second
)

//nolint:gochecknoglobals
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type pendingUpload struct {
	name   string
	result chan upload.Received
}

// Session is the worker side of the control channel.
//
// It implements [upload.Sink] for the tokens it issued.
type Session struct {
	ws           *websocket.Conn
	log          *zap.SugaredLogger
	pingInterval time.Duration
	writeMu      sync.Mutex

	inputs   chan string
	readDone chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	readErr  error

	mu      sync.Mutex
	pending map[string]*pendingUpload
}

var _ upload.Sink = (*Session)(nil)

// Accept upgrades the request to a control channel. Keepalive pings are
// sent every pingInterval, [DefaultPingInterval] if zero.
func Accept(
	w http.ResponseWriter,
	req *http.Request,
	pingInterval time.Duration,
) (*Session, error) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}

	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	session := &Session{
		ws:           ws,
		log:          logger.FromContext(req.Context()),
		pingInterval: pingInterval,
		inputs:       make(chan string, inputBuffer),
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
		pending:      make(map[string]*pendingUpload),
	}

	pongWait := 3 * pingInterval

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go session.readLoop()
	go session.pingLoop()

	return session, nil
}

// Done is closed once the session ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the client side went away, if any. Only valid after
// [Session.Done] is closed.
func (s *Session) Err() error {
	<-s.readDone
	return s.readErr
}

// Inputs returns the input sent by the client. It is closed when the client
// stops sending.
func (s *Session) Inputs() <-chan string {
	return s.inputs
}

// RequestUpload asks the client to upload the named artifact and waits until
// the receiver reports the outcome. It returns the path of the artifact root
// on the worker.
func (s *Session) RequestUpload(ctx context.Context, name string) (string, error) {
	token := uuid.NewString()
	pending := &pendingUpload{
		name:   name,
		result: make(chan upload.Received, 1),
	}

	s.mu.Lock()
	s.pending[token] = pending
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}()

	err := s.send(KindUpload, UploadRequest{Name: name, Token: token})
	if err != nil {
		return "", err
	}

	select {
	case received := <-pending.result:
		if received.Err != nil {
			return "", fmt.Errorf("upload %s: %w", name, received.Err)
		}

		return received.Path, nil
	case <-s.done:
		return "", fmt.Errorf("upload %s: %w", name, ErrClosed)
	case <-ctx.Done():
		return "", fmt.Errorf("upload %s: %w", name, context.Cause(ctx))
	}
}

// Authorize implements [upload.Sink].
func (s *Session) Authorize(token, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, exists := s.pending[token]
	if !exists || pending.name != name {
		return fmt.Errorf("%w for %s", ErrUnknownToken, name)
	}

	return nil
}

// Complete implements [upload.Sink].
func (s *Session) Complete(token string, received upload.Received) {
	s.mu.Lock()
	pending, exists := s.pending[token]
	s.mu.Unlock()

	if !exists {
		return
	}

	select {
	case pending.result <- received:
	default:
	}
}

// Log sends a log line of the run.
func (s *Session) Log(text string) error {
	return s.send(KindLog, text)
}

// Status sends a status update of the run.
func (s *Session) Status(text string) error {
	return s.send(KindStatus, text)
}

// Info sends an informational message.
func (s *Session) Info(text string) error {
	return s.send(KindInfo, text)
}

// Close completes the run with the given exit code. Further calls are
// no-ops.
func (s *Session) Close(exitCode int) error {
	return s.closeWith(websocket.CloseNormalClosure, strconv.Itoa(exitCode))
}

// Abort ends the session with a protocol error.
func (s *Session) Abort(err error) error {
	return s.closeWith(websocket.CloseProtocolError, err.Error())
}

func (s *Session) closeWith(code int, reason string) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	err := s.ws.WriteControl(
		websocket.CloseMessage,
		closeMessage(code, reason),
		time.Now().Add(writeWait),
	)

	// Give the client the chance to acknowledge, so the close frame is not
	// lost to a connection reset.
	select {
	case <-s.readDone:
	case <-time.After(closeGrace):
	}

	s.stop()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

func (s *Session) send(kind Kind, data any) error {
	msg, err := encode(kind, data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))

	err = s.ws.WriteMessage(websocket.TextMessage, msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}

	return nil
}

func (s *Session) readLoop() {
	defer close(s.readDone)
	defer close(s.inputs)
	defer s.stop()

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.readErr = err
			}

			return
		}

		err = s.handle(msg)
		if err != nil {
			s.log.Warnw("Closing channel", "error", err)
			s.readErr = err
			_ = s.ws.WriteControl(
				websocket.CloseMessage,
				closeMessage(websocket.CloseProtocolError, err.Error()),
				time.Now().Add(writeWait),
			)

			return
		}
	}
}

func (s *Session) handle(msg []byte) error {
	env, err := decode(msg)
	if err != nil {
		return err
	}

	if env.Type != KindInput {
		return &ProtocolError{Msg: fmt.Sprintf("unexpected message type %q", env.Type)}
	}

	var text string

	err = decodeData(env, &text)
	if err != nil {
		return err
	}

	select {
	case s.inputs <- text:
	default:
		s.log.Warnw("Dropping input, nobody is reading", "input", text)
	}

	return nil
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.ws.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(writeWait),
			)
			if err != nil {
				s.log.Debugw("Ping failed", "error", err)
				return
			}
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}
