package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/lettamem/internal"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/recordstore"
	"github.com/starford/lettamem/internal/report"
)

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "tag", Usage: "Only records carrying this tag"},
		&cli.StringFlag{Name: "topic", Usage: "Case-insensitive topic substring"},
		&cli.StringFlag{Name: "type", Usage: "Only records of this entry type"},
		&cli.StringSliceFlag{Name: "meta", Usage: "Metadata key=value that must match (repeatable)"},
	}
}

func filterFromFlags(cmd *cli.Command) (recordstore.Filter, error) {
	meta, err := recordstore.ParseMetadataPairs(cmd.StringSlice("meta"))
	if err != nil {
		return recordstore.Filter{}, err
	}
	return recordstore.Filter{
		Tag:           cmd.String("tag"),
		TopicContains: cmd.String("topic"),
		RecordType:    cmd.String("type"),
		Metadata:      meta,
	}, nil
}

// parseObject decodes a JSON object flag value. Anything that is not an
// object is wrapped as {"text": value}.
func parseObject(raw string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{"text": raw}
}

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Create, inspect and report on memory records",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Store a new memory",
				ArgsUsage: "CONTENT",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic", Usage: "Record topic"},
					&cli.StringFlag{Name: "type", Usage: "Entry type", Value: models.DefaultRecordType},
					&cli.StringFlag{Name: "domain", Usage: "Record domain"},
					&cli.StringSliceFlag{Name: "tag", Usage: "Tag (repeatable)"},
					&cli.StringSliceFlag{Name: "meta", Usage: "Metadata key=value (repeatable)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("memory create: exactly one CONTENT argument (JSON object or text) is required")
					}
					meta, err := recordstore.ParseMetadataPairs(cmd.StringSlice("meta"))
					if err != nil {
						return err
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						id, err := rt.Records.Create(ctx, models.NewRecord{
							RecordType: cmd.String("type"),
							Topic:      cmd.String("topic"),
							Domain:     cmd.String("domain"),
							Content:    parseObject(cmd.Args().First()),
							Tags:       cmd.StringSlice("tag"),
							Metadata:   meta,
						})
						if err != nil {
							return err
						}
						_, err = fmt.Fprintln(stdout(cmd), id)
						return err
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Print one memory as JSON",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("memory get: ID is required")
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						rec, err := rt.Records.Get(ctx, id)
						if err != nil {
							return fmt.Errorf("memory %s: %w", id, err)
						}
						return printJSON(cmd, rec)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List memories, newest first",
				Flags: filterFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					f, err := filterFromFlags(cmd)
					if err != nil {
						return err
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						records, err := rt.Records.List(ctx, f)
						if err != nil {
							return err
						}
						return printJSON(cmd, records)
					})
				},
			},
			{
				Name:      "search",
				Usage:     "Full-text search over memories",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 20},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					q := cmd.Args().First()
					if q == "" {
						return errors.New("memory search: QUERY is required")
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						results, err := rt.Records.Search(ctx, q, int(cmd.Int("limit")))
						if err != nil {
							return err
						}
						tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
						fmt.Fprintln(tw, "ID\tTOPIC\tSNIPPET")
						for _, r := range results {
							fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Topic, r.Snippet)
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:  "report",
				Usage: "Count memories by type, topic, tags and domain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dimension", Usage: "Only this dimension (type, topic, tags, domain)"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of text"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						records, err := rt.Records.List(ctx, recordstore.Filter{})
						if err != nil {
							return err
						}
						if raw := cmd.String("dimension"); raw != "" {
							dim, err := report.ParseDimension(raw)
							if err != nil {
								return err
							}
							return printJSON(cmd, report.Tally(records, dim))
						}
						rep := report.Build(records)
						if cmd.Bool("json") {
							return printJSON(cmd, rep)
						}
						return rep.WriteText(stdout(cmd))
					})
				},
			},
			{
				Name:  "reindex",
				Usage: "Bring the SQLite index in line with the record directory",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return withRuntime(cmd, func(rt *internal.Runtime, logger *slog.Logger) error {
						stats, err := index.Sync(rt.Index, rt.Files, logger)
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(stdout(cmd), "indexed %d, unchanged %d, removed %d, skipped %d\n",
							stats.Indexed, stats.Unchanged, stats.Removed, stats.Skipped)
						return err
					})
				},
			},
		},
	}
}
