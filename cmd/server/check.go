package main

import (
	"context"
	"fmt"
	"io"

	"minutes-orchestrator/internal/config"
	"minutes-orchestrator/internal/stepclient"

	"github.com/spf13/cobra"
)

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every collaborator service once and report its health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return check(cmd.Context(), cmd.OutOrStdout(), stepclient.NewClient(endpoints(cfg)), cfg)
		},
	}
}

func check(ctx context.Context, out io.Writer, client *stepclient.Client, cfg *config.Config) error {
	failed := 0
	for _, svc := range stepclient.Services {
		pctx, cancel := context.WithTimeout(ctx, cfg.Collaborators.HealthTimeout)
		err := client.Ping(pctx, svc)
		cancel()

		if err != nil {
			failed++
			fmt.Fprintf(out, "%-16s %-32s unhealthy: %v\n", svc, client.Endpoint(svc), err)
			continue
		}
		fmt.Fprintf(out, "%-16s %-32s ok\n", svc, client.Endpoint(svc))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collaborators unhealthy", failed, len(stepclient.Services))
	}
	return nil
}
