// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"bytes"
	"fmt"
	"io/fs"
)

const ipForwardPath = "proc/sys/net/ipv4/ip_forward"

// CheckIPForwarding returns [ErrIPForwardingDisabled] if IPv4 forwarding is
// not enabled on the host. The fsys is expected to be rooted at "/".
func CheckIPForwarding(fsys fs.FS) error {
	value, err := fs.ReadFile(fsys, ipForwardPath)
	if err != nil {
		return fmt.Errorf("read ip forwarding state: %w", err)
	}

	if !bytes.Equal(bytes.TrimSpace(value), []byte("1")) {
		return ErrIPForwardingDisabled
	}

	return nil
}
