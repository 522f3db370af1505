// Package sink persists missing-data flags, search evidence, escalations and
// lifecycle events as JSON lines, one file per ticket.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

var unsafeTicketChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeTicket makes a ticket id safe for use in a filename.
func SanitizeTicket(ticketID string) string {
	s := unsafeTicketChars.ReplaceAllString(ticketID, "-")
	if s == "" {
		return "ticket"
	}
	return s
}

// FileName returns the timestamped file name for a ticket.
func FileName(ticketID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%03d-%s.jsonl",
		at.Format("20060102T150405"), at.Nanosecond()/int(time.Millisecond), SanitizeTicket(ticketID))
}

// Writer appends JSON lines to per-ticket files under a directory. The file
// for a ticket is chosen on first write and reused for the life of the
// Writer, so all lines for a ticket land together.
type Writer struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	paths map[string]string
}

// NewWriter creates a Writer rooted at dir. The directory is created lazily.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now, paths: make(map[string]string)}
}

// Dir returns the root directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the file a ticket's lines are written to.
func (w *Writer) Path(ticketID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathLocked(ticketID)
}

func (w *Writer) pathLocked(ticketID string) string {
	key := SanitizeTicket(ticketID)
	if p, ok := w.paths[key]; ok {
		return p
	}
	p := filepath.Join(w.dir, FileName(ticketID, w.now()))
	w.paths[key] = p
	return p
}

// Append writes each value as one JSON line to the ticket's file.
func (w *Writer) Append(ticketID string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create dir %s", w.dir)
	}
	path := w.pathLocked(ticketID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "sink: open %s", path)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "sink: encode line for %s", ticketID)
		}
	}
	return eris.Wrapf(f.Close(), "sink: close %s", path)
}
