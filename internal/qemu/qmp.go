// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"

	"github.com/aibor/dutrun/internal/retry"
)

// QMP event names.
const (
	EventReset    = "RESET"
	EventShutdown = "SHUTDOWN"
)

// Event is an asynchronous QMP event.
type Event struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp struct {
		Seconds      int64 `json:"seconds"`
		Microseconds int64 `json:"microseconds"`
	} `json:"timestamp"`
}

// Status is the result of the query-status command.
type Status struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

type message struct {
	Event
	QMP    json.RawMessage `json:"QMP,omitempty"`
	Return json.RawMessage `json:"return,omitempty"`
	Error  *QMPError       `json:"error,omitempty"`
}

type command struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
}

// QMP is a client connection to the management socket of an emulator.
//
// Commands and event waits must not be used concurrently.
type QMP struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
	// events received while waiting for a command response.
	events []Event
}

// DialQMP connects to the socket at path. The emulator creates the socket
// shortly after start, so connecting is retried according to policy. After
// the greeting, the capabilities negotiation is done, which enables events.
func DialQMP(ctx context.Context, path string, policy retry.Policy) (*QMP, error) {
	var dialer net.Dialer

	conn, err := retry.Value(ctx, policy, func(ctx context.Context) (net.Conn, error) {
		return dialer.DialContext(ctx, "unix", path)
	})
	if err != nil {
		return nil, fmt.Errorf("connect qmp socket %s: %w", path, err)
	}

	qmp := &QMP{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
	}

	err = qmp.handshake(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return qmp, nil
}

// Close closes the connection.
func (q *QMP) Close() error {
	return q.conn.Close() //nolint:wrapcheck
}

func (q *QMP) handshake(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = q.conn.Close() })
	defer stop()

	greeting, err := q.read()
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	if greeting.QMP == nil {
		return fmt.Errorf("%w: unexpected greeting", ErrQMPClosed)
	}

	_, err = q.execute("qmp_capabilities", nil)
	if err != nil {
		return fmt.Errorf("negotiate capabilities: %w", err)
	}

	return nil
}

// Execute runs a command and returns its raw result.
func (q *QMP) Execute(ctx context.Context, name string, args any) (json.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = q.conn.Close() })
	defer stop()

	result, err := q.execute(name, args)
	if err != nil && ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	return result, err
}

// QueryStatus returns the run state of the guest.
func (q *QMP) QueryStatus(ctx context.Context) (Status, error) {
	var status Status

	raw, err := q.Execute(ctx, "query-status", nil)
	if err != nil {
		return status, err
	}

	err = json.Unmarshal(raw, &status)
	if err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}

	return status, nil
}

// WaitEvent blocks until one of the named events is received and returns it.
// If ctx is done, the connection is closed and the cause returned.
func (q *QMP) WaitEvent(ctx context.Context, names ...string) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for idx, event := range q.events {
		if slices.Contains(names, event.Event) {
			q.events = q.events[idx+1:]
			return event, nil
		}
	}

	q.events = nil

	stop := context.AfterFunc(ctx, func() { _ = q.conn.Close() })
	defer stop()

	for {
		msg, err := q.read()
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, context.Cause(ctx)
			}

			return Event{}, err
		}

		if slices.Contains(names, msg.Event.Event) {
			return msg.Event, nil
		}
	}
}

func (q *QMP) execute(name string, args any) (json.RawMessage, error) {
	data, err := json.Marshal(command{Execute: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	_, err = q.conn.Write(append(data, '\n'))
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", name, err)
	}

	for {
		msg, err := q.read()
		if err != nil {
			return nil, err
		}

		switch {
		case msg.Event.Event != "":
			q.events = append(q.events, msg.Event)
		case msg.Error != nil:
			return nil, fmt.Errorf("%s: %w", name, msg.Error)
		case msg.Return != nil:
			return msg.Return, nil
		}
	}
}

func (q *QMP) read() (message, error) {
	var msg message

	if !q.scanner.Scan() {
		err := q.scanner.Err()
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return msg, ErrQMPClosed
		}

		return msg, fmt.Errorf("read qmp: %w", err)
	}

	err := json.Unmarshal(q.scanner.Bytes(), &msg)
	if err != nil {
		return msg, fmt.Errorf("decode qmp message: %w", err)
	}

	return msg, nil
}
