package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the CLI startup banner.
func PrintBanner(w io.Writer, config *Config, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 60
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` 8888888b.     d8888  .d8888b.  8888888b.`,
		` 888   Y88b   d88888 d88P  Y88b 888   Y88b`,
		` 888    888  d88P888 888    888 888    888`,
		` 888   d88P d88P 888 888        888   d88P`,
		` 8888888P" d88P  888 888  88888 8888888P"`,
		` 888      d88P   888 888    888 888 T88b`,
		` 888     d8888888888 Y88b  d88P 888  T88b`,
		` 888    d88P     888  "Y8888P88 888   T88b`,
	}

	fmt.Fprintf(w, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(w, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s  Portfolio Analysis Graph%s\n\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "%s\n\n", hr)

	storage := config.Storage.Backend
	if config.Storage.Backend == "surrealdb" {
		storage = config.Storage.Backend + " " + config.Storage.Address
	}

	kvPad := 16
	kvLines := [][2]string{
		{"Version", GetVersion()},
		{"Build", GetBuild()},
		{"Commit", GetGitCommit()},
		{"Environment", config.Environment},
		{"Storage", storage},
		{"Provider", config.Provider.BaseURL},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", hr)

	logger.Debug().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("storage", storage).
		Msg("PAGR started")
}
