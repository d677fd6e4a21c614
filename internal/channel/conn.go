// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aibor/dutrun/internal/logger"
)

// Handler handles the messages the worker sends to the client.
type Handler interface {
	// Upload is called for each upload request in its own goroutine. An
	// error aborts the run. Return a [ProtocolError] for unknown names.
	Upload(ctx context.Context, req UploadRequest) error
	// Output is called for log, status and info messages in order.
	Output(kind Kind, text string)
}

// Conn is the client side of the control channel.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to the control channel endpoint of a worker.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	//nolint:bodyclose
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	ws.SetReadLimit(maxMessageSize)

	return &Conn{ws: ws}, nil
}

// Run handles messages until the worker closes the channel and returns the
// exit code of the run.
//
// Keepalive pings of the worker are answered while Run is reading. If ctx is
// canceled, the connection is closed and the cause is returned.
func (c *Conn) Run(ctx context.Context, handler Handler) (int, error) {
	defer c.ws.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)

	stop := context.AfterFunc(groupCtx, func() {
		_ = c.ws.Close()
	})
	defer stop()

	exitCode, readErr := c.readLoop(groupCtx, group, handler)

	cancel()

	groupErr := group.Wait()
	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		return 0, groupErr
	}

	if ctx.Err() != nil {
		return 0, context.Cause(ctx)
	}

	if readErr != nil {
		return 0, readErr
	}

	return exitCode, nil
}

func (c *Conn) readLoop(
	ctx context.Context,
	group *errgroup.Group,
	handler Handler,
) (int, error) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return exitCodeFrom(err)
		}

		err = c.dispatch(ctx, group, handler, msg)
		if err != nil {
			c.closeWith(websocket.CloseProtocolError, err.Error())
			return 0, err
		}
	}
}

func (c *Conn) dispatch(
	ctx context.Context,
	group *errgroup.Group,
	handler Handler,
	msg []byte,
) error {
	env, err := decode(msg)
	if err != nil {
		return err
	}

	switch env.Type {
	case KindUpload:
		var req UploadRequest

		err := decodeData(env, &req)
		if err != nil {
			return err
		}

		if req.Name == "" || req.Token == "" {
			return &ProtocolError{Msg: "upload request without name or token"}
		}

		logger.DebugKV(ctx, "Upload requested", "artifact", req.Name)

		group.Go(func() error {
			err := handler.Upload(ctx, req)
			if err != nil {
				c.abort(err)
				return fmt.Errorf("upload %s: %w", req.Name, err)
			}

			return nil
		})
	case KindLog, KindStatus, KindInfo:
		var text string

		err := decodeData(env, &text)
		if err != nil {
			return err
		}

		handler.Output(env.Type, text)
	default:
		return &ProtocolError{Msg: fmt.Sprintf("unknown message type %q", env.Type)}
	}

	return nil
}

// SendInput forwards user input to the worker.
func (c *Conn) SendInput(text string) error {
	msg, err := encode(KindInput, text)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))

	err = c.ws.WriteMessage(websocket.TextMessage, msg)
	if err != nil {
		return fmt.Errorf("send input: %w", err)
	}

	return nil
}

// abort tells the worker why the client gives up.
func (c *Conn) abort(err error) {
	code := websocket.CloseInternalServerErr
	if errors.Is(err, &ProtocolError{}) {
		code = websocket.CloseProtocolError
	}

	c.closeWith(code, err.Error())
}

func (c *Conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		closeMessage(code, reason),
		time.Now().Add(writeWait),
	)
}
