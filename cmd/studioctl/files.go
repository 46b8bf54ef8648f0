package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newFilesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List and upload project files",
	}
	cmd.AddCommand(newFilesListCommand(a), newFilesUploadCommand(a))
	return cmd
}

func newFilesListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List the files of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.client.ListFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, files, func(w io.Writer) error {
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE")
				for _, f := range files {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", f.ID, f.Name, f.Type, f.Size)
				}
				return nil
			})
		},
	}
}

func newFilesUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload PROJECT_ID FILE...",
		Short: "Upload local files to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.client.UploadFiles(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, files, func(w io.Writer) error {
				for _, f := range files {
					fmt.Fprintf(w, "Uploaded %s\t%s\t%d bytes\n", f.Name, f.Type, f.Size)
				}
				return nil
			})
		},
	}
}
