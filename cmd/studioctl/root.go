package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyvo/apkforge/backend/pkg/client"
	"github.com/vyvo/apkforge/backend/pkg/config"
)

type app struct {
	cfg    config.ClientConfig
	client *client.Client
	output string
}

func newRootCommand() *cobra.Command {
	a := &app{}
	var (
		configFile string
		serverURL  string
		accessKey  string
	)

	root := &cobra.Command{
		Use:           "studioctl",
		Short:         "Manage APK Forge projects, builds and the assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.ServerURL = serverURL
			}
			if accessKey != "" {
				cfg.AccessKey = accessKey
			}
			if a.output != "table" && a.output != "json" && a.output != "yaml" {
				return fmt.Errorf("unknown output format %q", a.output)
			}
			a.cfg = cfg
			a.client = client.NewClient(cfg.ServerURL, cfg.AccessKey, cfg.Timeout)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./configs/studioctl.yaml)")
	flags.StringVar(&serverURL, "server", "", "studio server URL")
	flags.StringVar(&accessKey, "key", "", "studio access key")
	flags.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		newProjectsCommand(a),
		newFilesCommand(a),
		newBuildCommand(a),
		newAICommand(a),
	)
	return root
}
