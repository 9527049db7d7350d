package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yousuf/tracebyte/internal/client"
	"github.com/yousuf/tracebyte/internal/front"
)

var remoteURL string

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List every worker of a running server",
	Long: `Connects to the server named by the remote config (or --url) and prints
its service workers, shared workers and other workers. Service worker
registrations are merged with the running workers they belong to.`,
	RunE: runWorkers,
}

func init() {
	for _, c := range []*cobra.Command{workersCmd, traceCmd} {
		c.Flags().StringVar(&remoteURL, "url", "", "streamable HTTP endpoint of the server, overrides the remote config")
	}
}

// openRemote connects to the configured server
func openRemote(ctx context.Context) (*client.ClientBox, error) {
	if remoteURL != "" {
		cfg.Remote.Type = "http"
		cfg.Remote.URL = remoteURL
	}
	if cfg.Remote.Type == "" {
		return nil, fmt.Errorf("no remote configured, pass --url or set remote in the config file")
	}
	return client.Open(ctx, cfg, logger)
}

func runWorkers(cmd *cobra.Command, args []string) error {
	box, err := openRemote(cmd.Context())
	if err != nil {
		return err
	}
	defer box.Close()

	printWorkers(cmd.OutOrStdout(), box.Root.ListAllWorkers(cmd.Context()))
	return nil
}

func printWorkers(out io.Writer, list front.WorkerList) {
	heading := color.New(color.Bold)
	section := func(title string, entries []front.WorkerEntry) {
		heading.Fprintf(out, "%s (%d)\n", title, len(entries))
		for _, e := range entries {
			fmt.Fprintf(out, "  %s  %s\n", e.ID, e.URL)
			if e.Scope != "" {
				state := "inactive"
				if e.Active {
					state = "active"
				}
				fmt.Fprintf(out, "      scope=%s fetch=%t %s\n", e.Scope, e.Fetch, state)
			}
		}
	}
	section("Service workers", list.Service)
	section("Shared workers", list.Shared)
	section("Other workers", list.Other)
}
