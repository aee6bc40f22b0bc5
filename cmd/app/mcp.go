package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lettamem/internal"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the memory tools over MCP on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRuntime(cmd, func(rt *internal.Runtime, logger *slog.Logger) error {
				if _, err := index.Sync(rt.Index, rt.Files, logger); err != nil {
					logger.Warn("mcp: initial sync failed", slog.String("error", err.Error()))
				}

				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				g, gCtx := errgroup.WithContext(ctx)

				g.Go(func() error {
					return index.Watch(gCtx, rt.Index, rt.Files, rt.Config.Records.Path, logger, nil)
				})
				g.Go(func() error {
					// The watcher stops once the client disconnects.
					defer cancel()
					logger.Info("mcp: serving on stdio")
					return mcpserver.New(rt.Records, version).Serve(gCtx, os.Stdin, os.Stdout, logger)
				})
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}
