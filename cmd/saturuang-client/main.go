// saturuang-client joins a room from a terminal. The first participant to
// connect becomes host: their shell runs locally and, once shared, its
// output is mirrored to the room. Everyone else follows that output and
// may type into it while they hold control.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"saturuang/config"
	"saturuang/internal/collab"
	"saturuang/internal/collab/model"
	"saturuang/internal/provider"
	"saturuang/pkg/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	endpoint    string
	token       string
	room        string
	shell       string
	share       bool
	allowInput  bool
	autoGrant   bool
	logLevel    string
	waitConnect time.Duration
}

func parseFlags(args []string) (options, bool, error) {
	opts := options{
		endpoint: config.WSURL(),
		token:    os.Getenv("SATURUANG_TOKEN"),
		shell:    os.Getenv("SHELL"),
	}
	if opts.shell == "" {
		opts.shell = "/bin/sh"
	}

	flagSet := pflag.NewFlagSet("saturuang-client", pflag.ContinueOnError)
	flagSet.StringVar(&opts.endpoint, "server", opts.endpoint, "relay websocket url")
	flagSet.StringVar(&opts.token, "token", opts.token, "access token (default $SATURUANG_TOKEN)")
	flagSet.StringVarP(&opts.room, "room", "r", "", "room id to join")
	flagSet.StringVar(&opts.shell, "shell", opts.shell, "shell the host runs")
	flagSet.BoolVar(&opts.share, "share", false, "host: share the terminal output on start")
	flagSet.BoolVar(&opts.allowInput, "allow-input", false, "host: accept input from any guest")
	flagSet.BoolVar(&opts.autoGrant, "auto-grant", false, "host: hand control to each guest that asks")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level, written to stderr")
	flagSet.DurationVar(&opts.waitConnect, "connect-timeout", 15*time.Second, "how long to wait for the first sync")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return opts, true, nil
		}
		return opts, false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return opts, true, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, false, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.room == "" {
		return opts, false, errors.New("--room is required")
	}
	if opts.token == "" {
		return opts, false, errors.New("--token or $SATURUANG_TOKEN is required")
	}
	return opts, false, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `saturuang-client joins a shared room from the terminal.

The first participant in a room becomes host and runs the shell. Guests
see the host's output once it is shared. Lines a guest types are sent to
the host's shell while the guest holds control; "/request" asks for
control and "/chat <text>" posts to the room chat.

Usage:
  saturuang-client --room <id> [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// identityFromToken reads the caller's identity from the token claims.
// The relay verifies the token; the client only needs the names in it.
func identityFromToken(token string) (model.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return model.Identity{}, fmt.Errorf("read token: %w", err)
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return model.Identity{}, errors.New("token has no subject")
	}
	return collab.IdentityFromClaims(claims), nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	envErr := config.LoadEnv()
	opts, help, err := parseFlags(args)
	if err != nil || help {
		return err
	}
	logger.InitTo(opts.logLevel, os.Stderr)
	defer logger.Log.Sync()
	if envErr != nil {
		logger.Sugar.Debug("No .env file found, using environment variables from OS")
	}

	self, err := identityFromToken(opts.token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Log.Named("client")
	manager := collab.NewManager(collab.Options{
		Identity: self,
		Dial:     collab.WebsocketDialer(opts.endpoint, opts.token, log.Named("provider")),
		Logger:   log,
	})
	defer func() {
		if err := manager.Close(); err != nil {
			log.Warn("closing room failed", zap.Error(err))
		}
	}()

	return join(ctx, manager, opts, stdin, stdout)
}

// join opens the room, waits for the first sync and runs as host or
// guest depending on who claimed the room.
func join(ctx context.Context, manager *collab.Manager, opts options, stdin io.Reader, stdout io.Writer) error {
	session, err := manager.Switch(ctx, opts.room)
	if err != nil {
		return err
	}
	if err := waitForHost(ctx, session, opts.waitConnect); err != nil {
		return err
	}

	room := session.Room()
	if room.IsHost() {
		return runHost(ctx, room, opts, stdin, stdout)
	}
	return runGuest(ctx, room, stdin, stdout)
}

// waitForHost returns once the session is connected and the room has a
// host, which the session claims right after its first sync.
func waitForHost(ctx context.Context, session *collab.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if session.Status() == provider.StatusConnected && session.Room().HostID() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			if last := session.LastError(); last != "" {
				return fmt.Errorf("joining room %s: %s", session.RoomID(), last)
			}
			return fmt.Errorf("joining room %s: %w", session.RoomID(), ctx.Err())
		case <-ticker.C:
		}
	}
}
