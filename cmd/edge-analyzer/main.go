package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "time/tzdata"

	"edge-analyzer/internal/auth"
	"edge-analyzer/internal/config"
	"edge-analyzer/internal/model"
)

const cmdName = "edge-analyzer"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmdName, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           cmdName,
		Short:         "Edge camera capture and analysis service",
		Long:          "Captures camera snapshots on a fixed tick, scores them against AI modules and routes flagged results.",
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	})
	root.AddCommand(newValidateCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration and fleet, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fleet, err := loadFleet(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration ok: %d cameras, %d (camera, module, tag) units\n", len(fleet.Cameras), fleet.Triples())
			for _, cam := range fleet.Cameras {
				fmt.Fprintf(out, "  %s/%s every %d ticks (%s)\n", cam.FactoryID, cam.ID, cam.CaptureTimeInterval, cam.Location)
				for _, mod := range cam.AIModules {
					for _, tag := range mod.Tags {
						fmt.Fprintf(out, "    %s/%s >= %.2f every %d ticks\n", mod.Name, tag.Name, tag.Probability, tag.AnalyzeTimeInterval)
					}
				}
			}
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with JWT_ACCESS_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			r := model.Role(role)
			if r != model.RoleViewer && r != model.RoleOperator {
				return fmt.Errorf("role must be %s or %s", model.RoleViewer, model.RoleOperator)
			}
			token, err := auth.NewParser(cfg.Auth.AccessSecret).Issue(subject, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", string(model.RoleViewer), "token role (VIEWER or OPERATOR)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
