package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/mygpt/internal/app"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/config"
	"github.com/suPer8Hu/mygpt/internal/router"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mygpt",
		Short:         "Multi-model chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newRouteCmd(), newModelsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func newRouteCmd() *cobra.Command {
	var prefer string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Show which models a message would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			_, rt, err := app.Routing(cfg)
			if err != nil {
				return err
			}
			d := rt.Decide(strings.Join(args, " "), prefer)
			return printDecision(cmd.OutOrStdout(), d, asJSON)
		},
	}
	cmd.Flags().StringVar(&prefer, "prefer", "", "explicit model id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printDecision(w io.Writer, d router.Decision, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	_, err := fmt.Fprintf(w, "category: %s (rule %s, explicit %t)\nchain:    %s\n",
		d.Category, d.Rule, d.Explicit, strings.Join(d.Chain, " -> "))
	return err
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cat, _, err := app.Routing(cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tPROVIDER\tUPSTREAM\tCOST")
			for _, p := range cat.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Category, p.Provider, p.UpstreamModel, p.CostClass)
			}
			return tw.Flush()
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := common.InitLogger(cfg.LogLevel)
	return serve(cmd.Context(), cfg, log)
}
