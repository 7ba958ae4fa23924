package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agjmills/gallery/internal/cliconfig"
	"github.com/agjmills/gallery/internal/client"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/queue"
	"github.com/agjmills/gallery/internal/uploader"
	"github.com/spf13/cobra"
)

var version = "dev"

// initLogging is replaced in tests, where the in-process server logs through
// the same global logger.
var initLogging = logger.InitText

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	server     string
	configPath string
	verbose    bool
}

// app is what every command that talks to the server runs against.
type app struct {
	cfg    *cliconfig.Config
	client *client.Client
	queue  *queue.Queue
	orch   *uploader.Orchestrator
	out    io.Writer
}

func newApp(opts *rootOptions, out io.Writer) (*app, error) {
	path := opts.configPath
	if path == "" {
		var err error
		if path, err = cliconfig.DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := cliconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.server != "" {
		cfg.ServerURL = opts.server
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	c := client.New(cfg.ServerURL)
	q := queue.New()
	return &app{
		cfg:    cfg,
		client: c,
		queue:  q,
		orch:   uploader.New(c, q, uploader.WithChunkSize(cfg.ChunkSize)),
		out:    out,
	}, nil
}

func (a *app) Close() {
	a.queue.Close()
}

// watch prints task updates until the returned function is called. The
// function returns once every buffered update has been printed.
func (a *app) watch() func() {
	feed, cancel := a.queue.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := make(map[string]string)
		for task := range feed {
			line := formatTask(task)
			if last[task.ID] == line {
				continue
			}
			last[task.ID] = line
			fmt.Fprintln(a.out, line)
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func formatTask(t queue.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", t.Status, t.Title)

	switch t.Status {
	case queue.StatusProcessing:
		fmt.Fprintf(&b, " %d%%", t.Progress)
		if t.TotalChunks > 0 {
			fmt.Fprintf(&b, " chunk %d/%d", t.CurrentChunk, t.TotalChunks)
		}
		if t.EstimatedTimeRemaining > 0 {
			fmt.Fprintf(&b, " eta %s", t.EstimatedTimeRemaining.Round(time.Second))
		}
	case queue.StatusFailed:
		fmt.Fprintf(&b, ": %s", t.Error)
	}
	return b.String()
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "gallery",
		Short:        "Upload and manage media in a gallery server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			initLogging(errOut, level)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&opts.server, "server", "", "gallery server URL (overrides server_url in the config)")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/gallery/config.toml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newUploadCmd(opts),
		newDeleteCmd(opts),
		newVisibilityCmd(opts, "publish", true),
		newVisibilityCmd(opts, "unpublish", false),
		newMoveCmd(opts),
		newListCmd(opts),
		newFoldersCmd(opts),
		newConfigCmd(opts),
	)
	return root
}
