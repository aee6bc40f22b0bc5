package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/lettamem/internal"
	"github.com/starford/lettamem/internal/conversation"
)

func readJSONObject(raw, file string) (map[string]any, error) {
	data := []byte(raw)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	}
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return m, nil
}

func conversationCommand() *cli.Command {
	return &cli.Command{
		Name:  "conversation",
		Usage: "Log and browse agent conversations",
		Commands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Log a conversation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Agent id", Required: true},
					&cli.StringFlag{Name: "platform", Usage: "Source platform, e.g. gemini or taskade", Required: true},
					&cli.StringFlag{Name: "data", Usage: "Conversation as a JSON object"},
					&cli.StringFlag{Name: "data-file", Usage: "Read the conversation JSON from this file"},
					&cli.StringFlag{Name: "meta", Usage: "Metadata as a JSON object"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					data, err := readJSONObject(cmd.String("data"), cmd.String("data-file"))
					if err != nil {
						return fmt.Errorf("conversation data: %w", err)
					}
					if data == nil {
						return errors.New("conversation save: --data or --data-file is required")
					}
					meta, err := readJSONObject(cmd.String("meta"), "")
					if err != nil {
						return fmt.Errorf("conversation metadata: %w", err)
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						id, err := rt.Conversations.Save(ctx, cmd.String("agent"), cmd.String("platform"), data, meta)
						if err != nil {
							return err
						}
						_, err = fmt.Fprintln(stdout(cmd), id)
						return err
					})
				},
			},
			{
				Name:  "list",
				Usage: "List conversations, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Only this agent"},
					&cli.StringFlag{Name: "platform", Usage: "Only this platform"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: conversation.DefaultLimit},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						items, err := rt.Conversations.List(ctx, conversation.Query{
							AgentID:  cmd.String("agent"),
							Platform: cmd.String("platform"),
							Limit:    int(cmd.Int("limit")),
						})
						if err != nil {
							return err
						}
						return printJSON(cmd, items)
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Print one conversation",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("conversation get: ID is required")
					}
					return withRuntime(cmd, func(rt *internal.Runtime, _ *slog.Logger) error {
						c, err := rt.Conversations.Get(ctx, id)
						if err != nil {
							return fmt.Errorf("conversation %s: %w", id, err)
						}
						return printJSON(cmd, c)
					})
				},
			},
		},
	}
}
