package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/lettamem/internal/letta"
)

func lettaClient(cmd *cli.Command) (*letta.Client, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	client, err := cfg.LettaClient()
	if err != nil {
		return nil, "", err
	}
	return client, cfg.Gemini.Model, nil
}

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Manage agents on the Letta server",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List agents",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					client, _, err := lettaClient(cmd)
					if err != nil {
						return err
					}
					agents, err := client.ListAgents(ctx)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tMODEL")
					for _, a := range agents {
						model := ""
						if a.LLMConfig != nil {
							model = a.LLMConfig.Model
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, model)
					}
					return tw.Flush()
				},
			},
			{
				Name:      "get",
				Usage:     "Print one agent as JSON",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("agent get: ID is required")
					}
					client, _, err := lettaClient(cmd)
					if err != nil {
						return err
					}
					agent, err := client.GetAgent(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(cmd, agent)
				},
			},
			{
				Name:  "create",
				Usage: "Create an agent from a spec file or the default Gemini spec",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "spec", Usage: "Agent spec file (.json or .yaml)"},
					&cli.StringFlag{Name: "name", Usage: "Override the agent name"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					client, model, err := lettaClient(cmd)
					if err != nil {
						return err
					}
					spec := letta.DefaultSpec(model)
					if path := cmd.String("spec"); path != "" {
						if spec, err = letta.ReadSpecFile(path); err != nil {
							return err
						}
					}
					if name := cmd.String("name"); name != "" {
						spec.Name = name
					}
					agent, err := client.CreateAgent(ctx, spec)
					if err != nil {
						return err
					}
					return printJSON(cmd, agent)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete an agent",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("agent delete: ID is required")
					}
					client, _, err := lettaClient(cmd)
					if err != nil {
						return err
					}
					if err := client.DeleteAgent(ctx, id); err != nil {
						return err
					}
					_, err = fmt.Fprintf(stdout(cmd), "deleted %s\n", id)
					return err
				},
			},
			{
				Name:  "init",
				Usage: "Write the default agent spec to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Destination file", Value: "agent.yaml"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					out := cmd.String("out")
					if err := letta.WriteSpecFile(out, letta.DefaultSpec(cfg.Gemini.Model)); err != nil {
						return err
					}
					_, err = fmt.Fprintf(stdout(cmd), "wrote %s\n", out)
					return err
				},
			},
		},
	}
}
