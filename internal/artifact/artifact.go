// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Kind is the type of an [Artifact].
type Kind string

// Supported artifact kinds.
const (
	KindFile       Kind = "file"
	KindDirectory  Kind = "directory"
	KindInlineJSON Kind = "inlineJSON"
)

// DefaultIgnore are base names skipped when walking directory artifacts.
//
//nolint:gochecknoglobals
var DefaultIgnore = []string{".git", "node_modules", ".DS_Store"}

// Artifact is something the client ships to the worker.
type Artifact struct {
	// Name is the logical name. Archives are rooted at it.
	Name string
	Kind Kind
	// Path on the local file system for file and directory artifacts.
	Path string
	// Data is serialized as JSON for inline artifacts.
	Data any
	// Ignore overrides [DefaultIgnore] for directory artifacts.
	Ignore []string

	// Hash is the content fingerprint. Set by [Hash].
	Hash string
	// Size is the number of content bytes. Set by [Hash].
	Size int64
}

func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Kind)
}

func (a *Artifact) ignored(name string) bool {
	ignore := a.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}

	for _, pattern := range ignore {
		if pattern == name {
			return true
		}
	}

	return false
}

// validate checks that the artifact is consistent before touching anything.
func (a *Artifact) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}

	switch a.Kind {
	case KindInlineJSON:
		if a.Path != "" || a.Data == nil {
			return fmt.Errorf("%w: %s: inline artifact needs data and no path",
				ErrKindMismatch, a.Name)
		}

		return nil
	case KindFile, KindDirectory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", a.Name, err)
	}

	if a.Kind == KindFile && !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s: %s is not a regular file",
			ErrKindMismatch, a.Name, a.Path)
	}

	if a.Kind == KindDirectory && !info.IsDir() {
		return fmt.Errorf("%w: %s: %s is not a directory",
			ErrKindMismatch, a.Name, a.Path)
	}

	return nil
}

func (a *Artifact) inlineBytes() ([]byte, error) {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", a.Name, err)
	}

	return data, nil
}
