// Package share formats vote links and voter tokens and copies them to the
// terminal clipboard with OSC 52.
package share

import (
	"fmt"
	"io"
	"os"
	"strings"

	osc52 "github.com/aymanbagabas/go-osc52/v2"
)

// Copy writes text to w as an OSC 52 clipboard sequence, wrapped for tmux
// or screen when running inside them.
func Copy(w io.Writer, text string) error {
	seq := osc52.New(text)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case strings.HasPrefix(os.Getenv("TERM"), "screen"):
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(w); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// CopyToTerminal copies through stderr so piped stdout stays clean.
func CopyToTerminal(text string) error {
	return Copy(os.Stderr, text)
}

// TokenList joins tokens one per line.
func TokenList(tokens []string) string {
	return strings.Join(tokens, "\n")
}

// Message is the text handed to voters of a poll.
func Message(title, link string, restricted bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vote on %q: %s", title, link)
	if restricted {
		b.WriteString("\nYou will need the voter token you were given.")
	}
	return b.String()
}
