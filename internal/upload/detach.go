// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"io"
	"sync"
	"sync/atomic"
)

// detachableReader is the stage between the packer and the request body. It
// can be detached at any time, which ends the body and stops the packer.
type detachableReader struct {
	src      io.ReadCloser
	detached atomic.Bool
	read     atomic.Int64
	started  atomic.Bool
	once     sync.Once

	// onRead is called with the total number of bytes read so far.
	onRead func(total int64)
}

func newDetachableReader(src io.ReadCloser, onRead func(int64)) *detachableReader {
	return &detachableReader{src: src, onRead: onRead}
}

// Read implements [io.Reader]. After detaching, it reports [io.EOF].
func (r *detachableReader) Read(p []byte) (int, error) {
	if r.detached.Load() {
		return 0, io.EOF
	}

	r.started.Store(true)

	n, err := r.src.Read(p)
	total := r.read.Add(int64(n))

	if r.detached.Load() {
		return n, io.EOF
	}

	if n > 0 && r.onRead != nil {
		r.onRead(total)
	}

	return n, err //nolint:wrapcheck
}

// Close implements [io.Closer].
func (r *detachableReader) Close() error {
	r.detach()
	return nil
}

// detach stops the stage. It is safe to call multiple times and before any
// data has been read.
func (r *detachableReader) detach() {
	r.detached.Store(true)
	r.once.Do(func() {
		_ = r.src.Close()
	})
}

// sent returns the number of bytes handed to the request so far.
func (r *detachableReader) sent() int64 {
	return r.read.Load()
}
