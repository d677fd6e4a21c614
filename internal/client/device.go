// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/stream"
	"github.com/aibor/dutrun/internal/worker"
)

// Device controls the device of a worker through its API.
type Device struct {
	// WorkerURL is the base URL of the worker API.
	WorkerURL  string
	HTTPClient *http.Client
}

// APIError is an error response of the worker API.
type APIError struct {
	StatusCode int
	Msg        string
}

// Error implements the [error] interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("worker: %s (status %d)", e.Msg, e.StatusCode)
}

// Is implements the [errors.Is] interface.
func (*APIError) Is(other error) bool {
	_, ok := other.(*APIError)
	return ok
}

// Select sets up the backend of the given kind. Options are passed as is.
func (d *Device) Select(
	ctx context.Context,
	kind device.Kind,
	options json.RawMessage,
) (worker.StateResponse, error) {
	var state worker.StateResponse

	err := d.call(ctx, http.MethodPost, "/select", worker.SelectRequest{
		Type:    kind,
		Options: options,
	}, &state)

	return state, err
}

// PowerOn powers the device on.
func (d *Device) PowerOn(ctx context.Context) (worker.StateResponse, error) {
	var state worker.StateResponse
	err := d.call(ctx, http.MethodPost, "/dut/on", nil, &state)

	return state, err
}

// PowerOff powers the device off.
func (d *Device) PowerOff(ctx context.Context) (worker.StateResponse, error) {
	var state worker.StateResponse
	err := d.call(ctx, http.MethodPost, "/dut/off", nil, &state)

	return state, err
}

// Network applies the network configuration. A zero config removes it.
func (d *Device) Network(ctx context.Context, config device.NetworkConfig) error {
	return d.call(ctx, http.MethodPost, "/dut/network", config, nil)
}

// IP resolves the address of the device announced as target.
func (d *Device) IP(ctx context.Context, target string) (string, error) {
	var resp worker.IPResponse

	err := d.call(ctx, http.MethodGet, "/dut/ip?target="+url.QueryEscape(target), nil, &resp)

	return resp.IP, err
}

// StartCapture starts capturing the screen of the device.
func (d *Device) StartCapture(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/dut/capture", nil, nil)
}

// StopCapture stops capturing and writes the gzip compressed frame archive
// to w.
func (d *Device) StopCapture(ctx context.Context, w io.Writer) error {
	req, err := d.request(ctx, http.MethodGet, "/dut/capture", nil)
	if err != nil {
		return err
	}

	resp, err := d.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}

	return nil
}

// Teardown releases all resources of the device.
func (d *Device) Teardown(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/teardown", nil, nil)
}

// Flash sends the image and blocks until the worker finished flashing.
// Progress is reported through the optional callback. Size is the image
// size in bytes, negative if unknown. If the image is gzip compressed, size
// is ignored.
func (d *Device) Flash(
	ctx context.Context,
	image io.Reader,
	size int64,
	compressed bool,
	progress func(device.Progress),
) error {
	req, err := d.request(ctx, http.MethodPost, "/dut/flash", image)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = -1

	switch {
	case compressed:
		req.Header.Set("Content-Encoding", "gzip")
	case size >= 0:
		req.ContentLength = size
	}

	resp, err := d.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var done bool

	_, err = stream.Scan(resp.Body, func(line stream.Line) error {
		switch line.Key {
		case stream.KeyProgress:
			var p device.Progress

			err := json.Unmarshal([]byte(line.Value), &p)
			if err != nil {
				return fmt.Errorf("progress line: %w", err)
			}

			if progress != nil {
				progress(p)
			}
		case stream.KeyError:
			return &APIError{StatusCode: resp.StatusCode, Msg: line.Value}
		case stream.KeyStatus:
			done = line.Value == worker.StatusDone
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("flash: %w", err)
	}

	if !done {
		return fmt.Errorf("flash: %w", io.ErrUnexpectedEOF)
	}

	return nil
}

func (d *Device) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := d.request(ctx, method, path, body)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (d *Device) request(
	ctx context.Context,
	method, path string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(d.WorkerURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	return req, nil
}

func (d *Device) send(req *http.Request) (*http.Response, error) {
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}

	return resp, nil
}

func apiError(resp *http.Response) error {
	var decoded struct {
		Error string `json:"error"`
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	err := json.Unmarshal(data, &decoded)
	if err != nil || decoded.Error == "" {
		decoded.Error = strings.TrimSpace(string(data))
	}

	return &APIError{StatusCode: resp.StatusCode, Msg: decoded.Error}
}
