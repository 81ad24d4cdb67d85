// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/notifier/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Task event notification consumer",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "consume",
				Usage: "Consume task events and send notifications",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunConsumer(ctx, version)
				},
			},
			{
				Name:  "publish",
				Usage: "Publish a single task event to the exchange",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Event type (created, updated, status_changed or deleted)",
					},
					&cli.StringFlag{
						Name:  "task-id",
						Value: "",
						Usage: "Task UUID (generated when empty)",
					},
					&cli.StringFlag{
						Name:  "user-id",
						Value: "",
						Usage: "Owner UUID (generated when empty)",
					},
					&cli.StringFlag{
						Name:  "title",
						Value: "",
						Usage: "Task title",
					},
					&cli.StringFlag{
						Name:    "status",
						Aliases: []string{"new-status"},
						Value:   "",
						Usage:   "Current task status (pending, in_progress, completed or cancelled)",
					},
					&cli.StringFlag{
						Name:  "old-status",
						Value: "",
						Usage: "Previous task status; an update with a different status publishes status_changed",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunPublish(ctx, commands.PublishInput{
						EventType: cmd.String("type"),
						TaskID:    cmd.String("task-id"),
						UserID:    cmd.String("user-id"),
						Title:     cmd.String("title"),
						Status:    cmd.String("status"),
						OldStatus: cmd.String("old-status"),
					}, commands.DefaultIO())
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
