package emergency

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// FixedLocator reports a configured position. With ok=false it has no fix.
type FixedLocator struct {
	Location Location
	OK       bool
}

func (l FixedLocator) Locate(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if !l.OK {
		return Location{}, ErrLocationUnavailable
	}
	return l.Location, nil
}

// WriterDevice dials, shares and alerts by printing to a terminal.
type WriterDevice struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterDevice(w io.Writer) *WriterDevice {
	return &WriterDevice{w: w}
}

func (d *WriterDevice) Dial(_ context.Context, number string) error {
	return d.printf("Calling %s (%s)\n", number, TelURI(number))
}

func (d *WriterDevice) Share(_ context.Context, title, text string) error {
	return d.printf("[%s] %s\n", title, text)
}

func (d *WriterDevice) Alert(_ context.Context, message string) {
	_ = d.printf("! %s\n", message)
}

func (d *WriterDevice) printf(format string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.w, format, args...)
	return err
}

// Notice is something the front end must show after an emergency was triggered.
type Notice struct {
	Kind  string    `json:"kind"`
	Title string    `json:"title,omitempty"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Inbox collects shares and alerts for a front end that polls for them.
// The browser owns the real dialer and share sheet; the server hands it the links.
type Inbox struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	now     func() time.Time
}

func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 20
	}
	return &Inbox{limit: limit, now: time.Now}
}

// Dial always succeeds; the front end opens the returned tel: link itself.
func (b *Inbox) Dial(context.Context, string) error { return nil }

func (b *Inbox) Share(_ context.Context, title, text string) error {
	b.push(Notice{Kind: "share", Title: title, Text: text})
	return nil
}

func (b *Inbox) Alert(_ context.Context, message string) {
	b.push(Notice{Kind: "alert", Text: message})
}

func (b *Inbox) push(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n.At = b.now().UTC()
	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.limit; over > 0 {
		b.notices = b.notices[over:]
	}
}

// Drain returns and clears pending notices, oldest first.
func (b *Inbox) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
