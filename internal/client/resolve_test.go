// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/aibor/dutrun/internal/client"
	"github.com/aibor/dutrun/internal/config"
)

func TestResolve(t *testing.T) {
	contract := filepath.Join(t.TempDir(), "contract.json")
	require.NoError(t, os.WriteFile(contract, []byte(`{"slug": "genericx86-64", "arch": "amd64"}`), 0o644))

	tests := []struct {
		name        string
		cfg         config.Client
		expected    map[string]any
		expectedErr bool
	}{
		{
			name: "device type only",
			cfg: config.Client{
				DeviceType: "genericx86-64",
				Config:     map[string]any{"networkWired": true},
			},
			expected: map[string]any{
				"networkWired": true,
				"deviceType":   "genericx86-64",
			},
		},
		{
			name: "contract replaces device type",
			cfg: config.Client{
				DeviceType: "genericx86-64",
				Contract:   contract,
				Config:     map[string]any{"deviceType": "overridden"},
			},
			expected: map[string]any{
				"deviceType": map[string]any{"slug": "genericx86-64", "arch": "amd64"},
			},
		},
		{
			name:     "empty",
			expected: map[string]any{},
		},
		{
			name:        "missing contract",
			cfg:         config.Client{Contract: filepath.Join(t.TempDir(), "none.json")},
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Suite = "suite-dir"
			tt.cfg.Image = "os.img"

			artifacts, err := client.Resolve(&tt.cfg)
			if tt.expectedErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, artifacts, 3)

			assert.Equal(t, &artifact.Artifact{
				Name: client.ArtifactSuite,
				Kind: artifact.KindDirectory,
				Path: "suite-dir",
			}, artifacts[client.ArtifactSuite])
			assert.Equal(t, &artifact.Artifact{
				Name: client.ArtifactImage,
				Kind: artifact.KindFile,
				Path: "os.img",
			}, artifacts[client.ArtifactImage])
			assert.Equal(t, artifact.KindInlineJSON, artifacts[client.ArtifactConfig].Kind)
			assert.Equal(t, tt.expected, artifacts[client.ArtifactConfig].Data)
		})
	}
}

func TestResolveDoesNotModifyConfig(t *testing.T) {
	cfg := &config.Client{
		DeviceType: "raspberrypi4-64",
		Config:     map[string]any{"a": 1},
	}

	_, err := client.Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, cfg.Config)
}
