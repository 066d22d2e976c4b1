package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"boardsync/internal/apiclient"
	"boardsync/internal/boardsync"
	"boardsync/internal/logging"
	"boardsync/internal/realtime"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

type options struct {
	server   string
	token    string
	logLevel string
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "boardctl - watch and edit a shared board from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(opts.logLevel, "text")
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("BOARDCTL_SERVER", "http://localhost:8080"), "Board API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BOARDCTL_TOKEN"), "JWT bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(moveCmd(opts))
	rootCmd.AddCommand(reorderCmd(opts))
	rootCmd.AddCommand(editCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// stderrNotifier prints rolled-back mutations.
type stderrNotifier struct{}

func (stderrNotifier) Notify(n boardsync.Notice) {
	fmt.Fprintf(os.Stderr, "! %s (%s)\n", n.Message, n.Err)
}

// workspace is an open session on one board.
type workspace struct {
	socket  *realtime.Client
	session *boardsync.Session
}

// openWorkspace loads the board and joins its room. With socketReorders set,
// reorders are committed over the socket instead of REST.
func openWorkspace(ctx context.Context, opts *options, rawBoardID string, socketReorders bool) (*workspace, error) {
	if opts.token == "" {
		return nil, errors.New("no token: set BOARDCTL_TOKEN or pass --token")
	}
	boardID, err := uuid.Parse(rawBoardID)
	if err != nil {
		return nil, fmt.Errorf("invalid board id %q: %w", rawBoardID, err)
	}

	api := apiclient.New(opts.server, opts.token)
	me, err := api.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("who am i: %w", err)
	}
	socketURL, err := api.SocketURL()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	socket := realtime.NewClient(socketURL, me.ID, realtime.WithToken(opts.token), realtime.WithLogger(logger))
	if err := socket.Init(ctx); err != nil {
		return nil, fmt.Errorf("connect realtime: %w", err)
	}

	var sessionOpts []boardsync.Option
	if socketReorders {
		sessionOpts = append(sessionOpts, boardsync.WithSocketReorders(socket))
	}
	session := boardsync.NewSession(boardID, api, socket, stderrNotifier{}, logger, sessionOpts...)
	if err := session.Open(ctx); err != nil {
		socket.Teardown()
		return nil, err
	}

	return &workspace{socket: socket, session: session}, nil
}

func (w *workspace) close() {
	if err := w.session.Close(context.Background()); err != nil {
		slog.Debug("leave on close failed", "error", err)
	}
	w.socket.Teardown()
}

// run drives the session loop next to fn and stops it once fn returns.
func (w *workspace) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.session.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}
