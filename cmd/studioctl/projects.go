package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vyvo/apkforge/backend/pkg/projects"
)

func newProjectsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "List, create and delete projects",
	}
	cmd.AddCommand(newProjectsListCommand(a), newProjectsCreateCommand(a), newProjectsDeleteCommand(a))
	return cmd
}

func newProjectsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, list, func(w io.Writer) error {
				fmt.Fprintln(w, "ID\tNAME\tPACKAGE\tVERSION\tTARGET SDK")
				for _, p := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.PackageName, p.Version, p.TargetSDK)
				}
				return nil
			})
		},
	}
}

func newProjectsCreateCommand(a *app) *cobra.Command {
	var input projects.CreateProjectInput
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Name = args[0]
			p, err := a.client.CreateProject(cmd.Context(), input)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, p, func(w io.Writer) error {
				fmt.Fprintf(w, "Created project %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&input.PackageName, "package", "p", "", "Android package name (required)")
	cmd.Flags().StringVar(&input.Version, "version", "", "app version")
	cmd.Flags().StringVar(&input.TargetSDK, "target-sdk", "", "target Android SDK")
	cmd.Flags().StringVar(&input.EntryPoint, "entry-point", "", "Python entry point")
	_ = cmd.MarkFlagRequired("package")
	return cmd
}

func newProjectsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROJECT_ID",
		Short: "Delete a project with its files and build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		},
	}
}
