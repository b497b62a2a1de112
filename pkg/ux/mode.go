// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode controls how CLI output is rendered.
type Mode string

const (
	// ModeStyled enables colors, icons, and boxes for interactive terminals.
	ModeStyled Mode = "styled"

	// ModePlain outputs unstyled text suitable for scripting, hook pipes,
	// and log capture.
	ModePlain Mode = "plain"
)

var (
	currentMode = ModeStyled
	modeMu      sync.RWMutex
)

// GetMode returns the current output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the current output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "plain", "p", "machine", "quiet", "q":
		return ModePlain
	case "styled", "s", "rich":
		return ModeStyled
	default:
		return ModeStyled
	}
}

// InitMode initializes the output mode from environment and terminal state.
//
// Precedence: SWARM_OUTPUT env var, then NO_COLOR, then a TTY check on
// stdout. Hook invocations run with stdout piped back to the calling
// assistant, so the TTY check keeps their output machine-parseable without
// any explicit flag.
func InitMode() {
	if env := os.Getenv("SWARM_OUTPUT"); env != "" {
		SetMode(ParseMode(env))
		return
	}

	if os.Getenv("NO_COLOR") != "" {
		SetMode(ModePlain)
		return
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		SetMode(ModePlain)
		return
	}

	SetMode(ModeStyled)
}

// IsInteractive returns true if we should show interactive prompts.
func IsInteractive() bool {
	if GetMode() == ModePlain {
		return false
	}
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}
