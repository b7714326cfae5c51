// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package xdg provides XDG Base Directory paths for Quill.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "quill"

// ConfigDir returns the XDG config directory for quill.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}
