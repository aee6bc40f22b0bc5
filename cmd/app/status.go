package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/lettamem/internal"
	"github.com/starford/lettamem/internal/health"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check storage, the index, the Letta server and credentials",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
				results := rt.Status(ctx)
				if cmd.Bool("json") {
					if err := printJSON(cmd, results); err != nil {
						return err
					}
				} else {
					tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
					for _, r := range results {
						state := "ok"
						if !r.OK {
							state = "FAIL"
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, state, r.Detail)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				if !health.AllOK(results) {
					return errors.New("status: one or more checks failed")
				}
				return nil
			})
		},
	}
}
