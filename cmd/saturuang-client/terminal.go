package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"saturuang/internal/collab"
	"saturuang/internal/collab/model"
	"saturuang/internal/crdt"
	"saturuang/pkg/logger"
)

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runHost runs the shell until it exits. Output goes to the local screen
// and the room; accepted guest input and local stdin both feed the shell.
func runHost(ctx context.Context, room *collab.Room, opts options, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.share {
		room.SetTerminalShared(true)
	}
	if opts.allowInput {
		room.SetTerminalInput(true, model.AnyGuest)
	}
	if opts.autoGrant {
		go grantRequests(ctx, room)
	}

	term := room.TerminalHost()
	cmd := exec.CommandContext(ctx, opts.shell)
	out := io.MultiWriter(stdout, term)
	cmd.Stdout = out
	cmd.Stderr = out
	pipe, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", opts.shell, err)
	}

	shellIn := &lockedWriter{w: pipe}
	go func() {
		if err := term.Pump(ctx, shellIn); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Warn("guest input stopped", zap.Error(err))
		}
	}()
	go func() {
		if _, err := io.Copy(shellIn, stdin); err != nil {
			logger.Log.Debug("local input stopped", zap.Error(err))
		}
		pipe.Close()
	}()

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			logger.Log.Info("shell exited", zap.Int("code", exit.ExitCode()))
			return nil
		}
		return err
	}
	return nil
}

// grantRequests hands control to whoever asks, latest request last.
func grantRequests(ctx context.Context, room *collab.Room) {
	wake := make(chan struct{}, 1)
	cancel := room.Doc().Array(collab.TerminalRequestArray).Observe(func(crdt.Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		room.GrantNextTerminalRequest()
		select {
		case <-ctx.Done():
			return
		case <-wake:
		}
	}
}

// runGuest follows the host's shared output and turns typed lines into
// commands or terminal input until stdin ends.
func runGuest(ctx context.Context, room *collab.Room, stdin io.Reader, stdout io.Writer) error {
	screen := &lockedWriter{w: stdout}
	viewer := room.NewTerminalViewer(screen)
	viewer.Start()
	defer viewer.Stop()

	stopChat := followChat(room, screen)
	defer stopChat()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return viewer.Err()
			}
			if notice := handleGuestLine(room, line); notice != "" {
				fmt.Fprintln(os.Stderr, notice)
			}
		}
	}
}

// handleGuestLine acts on one typed line and returns a notice for the
// user, empty when there is nothing to say.
func handleGuestLine(room *collab.Room, line string) string {
	switch {
	case line == "/request":
		if room.RequestTerminalControl() {
			return "terminal control requested"
		}
		return "a request is already pending"
	case strings.HasPrefix(line, "/chat "):
		if !room.SendChat(strings.TrimPrefix(line, "/chat ")) {
			return "empty message"
		}
		return ""
	}
	if !room.SendTerminalInput(line + "\n") {
		if !room.TerminalPolicy().Shared {
			return "the host is not sharing the terminal"
		}
		return "you do not control the terminal; type /request"
	}
	return ""
}

// followChat prints chat messages as they arrive, starting with the log
// already present.
func followChat(room *collab.Room, w io.Writer) (cancel func()) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	flush := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, msg := range room.ChatMessages() {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			fmt.Fprintf(w, "\r\n[%s] %s\r\n", msg.Name, msg.Text)
		}
	}
	cancel = room.Doc().Array(collab.ChatArray).Observe(func(crdt.Event) { flush() })
	flush()
	return cancel
}
