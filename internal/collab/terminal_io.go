package collab

import (
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"saturuang/internal/collab/model"
	"saturuang/internal/crdt"
)

// TerminalHost connects the host's real process to the room: output is
// mirrored into the shared log while sharing is on, and accepted guest
// input is fed back into the process.
type TerminalHost struct {
	room *Room
	out  *crdt.Text
	meta *crdt.Map

	mu      sync.Mutex
	partial []byte // incomplete UTF-8 sequence held for the next Write
}

func (r *Room) TerminalHost() *TerminalHost {
	return &TerminalHost{room: r, out: r.doc.Text(TerminalOutputText), meta: r.doc.Map(TerminalOutputMeta)}
}

// Write mirrors process output. It never fails, so it can sit behind an
// io.MultiWriter next to the local screen. A multi-byte character split
// across writes is mirrored once it is complete.
func (h *TerminalHost) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(p) == 0 || !h.room.IsHost() || !h.room.TerminalPolicy().Shared {
		h.partial = nil
		return len(p), nil
	}

	buf := append(h.partial, p...)
	cut := completePrefix(buf)
	h.partial = append([]byte(nil), buf[cut:]...)
	chunk := string(buf[:cut])
	if chunk == "" {
		return len(p), nil
	}

	var skipped int
	if n := utf8.RuneCountInString(chunk); n > MaxTerminalOutput {
		skipped = n - MaxTerminalOutput
		chunk = skipRunes(chunk, skipped)
	}
	h.room.doc.Transact(func() {
		h.out.Append(chunk)
		dropped := skipped
		if n := h.out.Len(); n > MaxTerminalOutput {
			h.out.Delete(0, n-MaxTerminalOutput)
			dropped += n - MaxTerminalOutput
		}
		if dropped > 0 {
			trimmed, _ := h.meta.Get(keyOutputTrimmed)
			h.meta.Set(keyOutputTrimmed, model.Int64(trimmed)+int64(dropped))
		}
	})
	return len(p), nil
}

// completePrefix returns the length of b without a trailing incomplete
// UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return len(b)
}

func skipRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

// Pump writes accepted guest input into w as it arrives, until ctx ends or
// w fails.
func (h *TerminalHost) Pump(ctx context.Context, w io.Writer) error {
	wake := make(chan struct{}, 1)
	cancel := h.room.doc.Array(TerminalInputArray).Observe(func(crdt.Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		for _, rec := range h.room.DrainTerminalInput() {
			if _, err := io.WriteString(w, rec.Data); err != nil {
				return fmt.Errorf("terminal input: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// TerminalViewer renders the shared log on a guest. It writes only what
// was appended since the last update and tolerates the front of the log
// being trimmed; trimmed history it never saw is simply gone.
type TerminalViewer struct {
	doc  *crdt.Doc
	text *crdt.Text
	meta *crdt.Map
	sink io.Writer

	mu     sync.Mutex
	seen   int64 // characters ever written to the log that were rendered
	err    error
	cancel func()
}

func (r *Room) NewTerminalViewer(sink io.Writer) *TerminalViewer {
	return &TerminalViewer{
		doc:  r.doc,
		text: r.doc.Text(TerminalOutputText),
		meta: r.doc.Map(TerminalOutputMeta),
		sink: sink,
	}
}

// Start writes the current log, then follows it until Stop.
func (v *TerminalViewer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		return
	}
	v.cancel = v.text.Observe(func(crdt.Event) { v.update() })
	v.flushLocked()
}

func (v *TerminalViewer) update() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flushLocked()
}

func (v *TerminalViewer) flushLocked() {
	if v.err != nil {
		return
	}
	var (
		trimmed int64
		log     string
	)
	v.doc.View(func() {
		t, _ := v.meta.Get(keyOutputTrimmed)
		trimmed = model.Int64(t)
		log = v.text.String()
	})

	tail := skipRunes(log, int(max(0, v.seen-trimmed)))
	v.seen = trimmed + int64(utf8.RuneCountInString(log))
	if tail == "" {
		return
	}
	if _, err := io.WriteString(v.sink, tail); err != nil {
		v.err = err
	}
}

// Err returns the first sink error; the viewer stops writing after it.
func (v *TerminalViewer) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *TerminalViewer) Stop() {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
