package cli

import (
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plotly/falcon/internal/domain"
)

func newQueriesCmd(host *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Manage scheduled queries",
	}
	cmd.AddCommand(newQueriesListCmd(host))
	cmd.AddCommand(newQueriesAddCmd(host))
	cmd.AddCommand(newQueriesRmCmd(host))
	return cmd
}

func newQueriesListCmd(host *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var defs []domain.QueryDefinition
			if err := newClient(*host).call("GET", "/queries", nil, &defs); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FID\tNAME\tSCHEDULE\tSTATUS\tNEXT RUN")
			for _, def := range defs {
				schedule := def.CronInterval
				if schedule == "" {
					schedule = fmt.Sprintf("every %ds", def.RefreshInterval)
				}
				status := "-"
				if def.LastExecution != nil {
					status = def.LastExecution.Status
				}
				next := "-"
				if def.NextScheduledAt > 0 {
					next = time.UnixMilli(def.NextScheduledAt).Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.Fid, def.Name, schedule, status, next)
			}
			return w.Flush()
		},
	}
}

func newQueriesAddCmd(host *string) *cobra.Command {
	var (
		fid             string
		query           string
		connectionID    string
		requestor       string
		name            string
		filename        string
		refreshInterval int64
		cronInterval    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or replace a scheduled query",
		Example: `  falcon queries add --fid user:23 --query "SELECT * FROM t" \
      --connection sqlite-abc123 --requestor user --interval 3600`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{
				"fid":          fid,
				"query":        query,
				"connectionId": connectionID,
				"requestor":    requestor,
			}
			if name != "" {
				body["name"] = name
			}
			if filename != "" {
				body["filename"] = filename
			}
			if refreshInterval > 0 {
				body["refreshInterval"] = refreshInterval
			}
			if cronInterval != "" {
				body["cronInterval"] = cronInterval
			}
			var def domain.QueryDefinition
			if err := newClient(*host).call("POST", "/queries", body, &def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s\n", def.Fid)
			return nil
		},
	}

	cmd.Flags().StringVar(&fid, "fid", "", "Target grid fid (omit with --filename to create a grid)")
	cmd.Flags().StringVar(&query, "query", "", "Query to run")
	cmd.Flags().StringVar(&connectionID, "connection", "", "Connection id")
	cmd.Flags().StringVar(&requestor, "requestor", "", "Username owning the schedule")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&filename, "filename", "", "Create a new grid with this filename")
	cmd.Flags().Int64Var(&refreshInterval, "interval", 0, "Refresh interval in seconds")
	cmd.Flags().StringVar(&cronInterval, "cron", "", "Cron expression (overrides --interval)")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("connection")
	_ = cmd.MarkFlagRequired("requestor")

	return cmd
}

func newQueriesRmCmd(host *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <fid>",
		Short: "Delete a scheduled query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/queries/" + url.PathEscape(args[0])
			if err := newClient(*host).call("DELETE", path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
