package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vyvo/apkforge/backend/pkg/builder"
	"github.com/vyvo/apkforge/backend/pkg/client"
)

func newBuildCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Start and follow project builds",
	}
	cmd.AddCommand(newBuildStartCommand(a), newBuildStatusCommand(a), newBuildWatchCommand(a))
	return cmd
}

func newBuildStartCommand(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "start PROJECT_ID",
		Short: "Start or restart a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.client.StartBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if follow {
				return a.watch(cmd, args[0], false)
			}
			return a.renderRecord(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "poll until the build finishes")
	return cmd
}

func newBuildStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status PROJECT_ID",
		Short: "Show the current build of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.client.GetBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.renderRecord(cmd.OutOrStdout(), rec)
		},
	}
}

func newBuildWatchCommand(a *app) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "watch PROJECT_ID",
		Short: "Follow a build until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, args[0], stream)
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "use the server-sent event stream instead of polling")
	return cmd
}

// watch prints each new snapshot, then the full log once the build ends.
func (a *app) watch(cmd *cobra.Command, projectID string, stream bool) error {
	out := cmd.OutOrStdout()
	var last builder.Record
	show := func(rec builder.Record) {
		if rec.Generation == last.Generation && rec.Progress == last.Progress && rec.Status == last.Status {
			return
		}
		last = rec
		if a.output == "table" {
			fmt.Fprintln(out, buildSummary(rec))
		}
	}

	var err error
	if stream {
		err = a.client.StreamBuild(cmd.Context(), projectID, func(rec builder.Record) error {
			show(rec)
			return nil
		})
	} else {
		_, err = client.NewPoller(a.client, a.cfg.PollInterval).Run(cmd.Context(), projectID, show)
	}
	if err != nil {
		return err
	}
	if a.output != "table" {
		return a.renderRecord(out, last)
	}
	fmt.Fprint(out, last.Log)
	if last.Status == builder.StatusError {
		return fmt.Errorf("build failed")
	}
	return nil
}

func (a *app) renderRecord(w io.Writer, rec builder.Record) error {
	return render(w, a.output, rec, func(w io.Writer) error {
		fmt.Fprintf(w, "PROJECT\t%s\n", rec.ProjectID)
		fmt.Fprintf(w, "GENERATION\t%d\n", rec.Generation)
		fmt.Fprintf(w, "STATUS\t%s\n", buildSummary(rec))
		fmt.Fprintf(w, "UPDATED\t%s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	})
}
