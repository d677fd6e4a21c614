// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/aibor/dutrun/internal/config"
)

// Artifact names known to the client.
const (
	ArtifactSuite  = "suite"
	ArtifactImage  = "image"
	ArtifactConfig = "config"
)

// deviceTypeKey is the config key that is replaced by the contract.
const deviceTypeKey = "deviceType"

// Resolve returns the artifacts described by the client configuration.
//
// The config artifact is the configured config map with the device type
// added. If a contract file is configured, the device type is replaced by
// the contract object.
func Resolve(cfg *config.Client) (map[string]*artifact.Artifact, error) {
	inline := make(map[string]any, len(cfg.Config)+1)
	maps.Copy(inline, cfg.Config)

	if cfg.DeviceType != "" {
		inline[deviceTypeKey] = cfg.DeviceType
	}

	if cfg.Contract != "" {
		contract, err := readContract(cfg.Contract)
		if err != nil {
			return nil, err
		}

		inline[deviceTypeKey] = contract
	}

	artifacts := map[string]*artifact.Artifact{
		ArtifactSuite: {
			Name:   ArtifactSuite,
			Kind:   artifact.KindDirectory,
			Path:   cfg.Suite,
			Ignore: cfg.Ignore,
		},
		ArtifactImage: {
			Name: ArtifactImage,
			Kind: artifact.KindFile,
			Path: cfg.Image,
		},
		ArtifactConfig: {
			Name: ArtifactConfig,
			Kind: artifact.KindInlineJSON,
			Data: inline,
		},
	}

	return artifacts, nil
}

func readContract(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}

	var contract map[string]any

	err = json.Unmarshal(data, &contract)
	if err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", path, err)
	}

	return contract, nil
}
