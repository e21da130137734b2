// Package clipboard delivers the final export payloads to the system
// clipboard, preferring a rich text/html write with a plain-text fallback.
package clipboard

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
)

// Writer abstracts the clipboard backends so delivery policy can be tested
// without touching the real clipboard.
type Writer interface {
	WriteRich(html, text string) error
	WritePlain(text string) error
}

// Clipboard applies the delivery policy over a Writer: rich write first,
// plain fallback exactly once.
type Clipboard struct {
	w   Writer
	log *zap.Logger
}

func New(w Writer, log *zap.Logger) *Clipboard {
	if log == nil {
		log = zap.NewNop()
	}
	if w == nil {
		w = NewSystemWriter(log)
	}
	return &Clipboard{w: w, log: log.Named("clipboard")}
}

// Copy writes both payloads. When the rich write is rejected the plain
// payload is retried on its own. Returns true iff at least one write
// succeeded; an all-failed copy is reported, never raised.
func (c *Clipboard) Copy(html, text string) bool {
	if err := c.w.WriteRich(html, text); err == nil {
		return true
	} else {
		c.log.Debug("Rich clipboard write rejected", zap.Error(err))
	}
	if err := c.w.WritePlain(text); err != nil {
		c.log.Warn("Clipboard unavailable", zap.Error(err))
		return false
	}
	c.log.Debug("Delivered plain text only")
	return true
}

// SystemWriter talks to the real clipboard. Rich writes go through the
// platform helpers that accept a MIME type; plain writes use the portable
// backend.
type SystemWriter struct {
	log *zap.Logger
}

func NewSystemWriter(log *zap.Logger) *SystemWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &SystemWriter{log: log}
}

// richTools lists the helpers able to post text/html, tried in order.
var richTools = [][]string{
	{"wl-copy", "-t", "text/html"},
	{"xclip", "-selection", "clipboard", "-t", "text/html"},
}

func (w *SystemWriter) WriteRich(html, _ string) error {
	var lastErr error
	for _, tool := range richTools {
		if _, err := exec.LookPath(tool[0]); err != nil {
			lastErr = err
			continue
		}
		cmd := exec.Command(tool[0], tool[1:]...)
		cmd.Stdin = strings.NewReader(html)
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("%s: %w", tool[0], err)
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no clipboard helper found")
	}
	return fmt.Errorf("rich clipboard write: %w", lastErr)
}

func (w *SystemWriter) WritePlain(text string) error {
	return clipboard.WriteAll(text)
}
