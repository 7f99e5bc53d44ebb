// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

var (
	colorSuccess = color.New(color.FgGreen, color.Bold)
	colorError   = color.New(color.FgRed, color.Bold)
	colorInfo    = color.New(color.FgCyan)
	colorWarn    = color.New(color.FgYellow)
)

// initColors disables color output when stdout is not a terminal, NO_COLOR
// is set, or the caller explicitly passed --no-color.
func initColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// newProgressBar builds a phase-labeled bar, or a no-op bar when quiet is
// set (JSON output mode suppresses progress entirely).
func newProgressBar(total int64, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(total, description)
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100_000_000),
		progressbar.OptionClearOnFinish(),
	)
}

// barProgress adapts *progressbar.ProgressBar to scheduler.Progress.
type barProgress struct {
	bar *progressbar.ProgressBar
}

func (b barProgress) SetMessage(msg string) {
	if b.bar != nil {
		b.bar.Describe(msg)
	}
}

func (b barProgress) Add(n int) error {
	if b.bar == nil {
		return nil
	}
	return b.bar.Add(n)
}
