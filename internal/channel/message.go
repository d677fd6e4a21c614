// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Kind is the type of a channel message.
type Kind string

// Message kinds.
const (
	KindUpload Kind = "upload"
	KindLog    Kind = "log"
	KindStatus Kind = "status"
	KindInfo   Kind = "info"
	KindInput  Kind = "input"
)

const (
	writeWait = 10 * time.Second
	// maxCloseReason is the maximum length of a close frame reason.
	maxCloseReason = 123
	maxMessageSize = 1 << 20
)

// Envelope is the frame of every message.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UploadRequest asks the client to upload the named artifact using the
// given token.
type UploadRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func encode(kind Kind, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", kind, err)
	}

	msg, err := json.Marshal(Envelope{Type: kind, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}

	return msg, nil
}

func decode(msg []byte) (Envelope, error) {
	var env Envelope

	err := json.Unmarshal(msg, &env)
	if err != nil {
		return env, &ProtocolError{Msg: "malformed message: " + err.Error()}
	}

	if env.Type == "" {
		return env, &ProtocolError{Msg: "message without type"}
	}

	return env, nil
}

func decodeData(env Envelope, v any) error {
	err := json.Unmarshal(env.Data, v)
	if err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("malformed %s data: %v", env.Type, err)}
	}

	return nil
}

func closeMessage(code int, reason string) []byte {
	for len(reason) > maxCloseReason {
		_, size := utf8.DecodeLastRuneInString(reason)
		reason = reason[:len(reason)-size]
	}

	return websocket.FormatCloseMessage(code, reason)
}

// exitCodeFrom interprets the error returned by reading from a connection
// the peer closed.
func exitCodeFrom(err error) (int, error) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return 0, fmt.Errorf("read: %w", err)
	}

	switch closeErr.Code {
	case websocket.CloseNormalClosure:
		code, err := strconv.Atoi(closeErr.Text)
		if err != nil {
			return 0, &ProtocolError{Msg: fmt.Sprintf("invalid exit code %q", closeErr.Text)}
		}

		return code, nil
	case websocket.CloseProtocolError, websocket.CloseUnsupportedData:
		return 0, &ProtocolError{Msg: closeErr.Text}
	default:
		return 0, fmt.Errorf("%w: %w", ErrClosed, closeErr)
	}
}
