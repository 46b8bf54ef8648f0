package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vyvo/apkforge/backend/pkg/assistant"
)

func newAICommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Talk to the assistant",
	}
	cmd.AddCommand(newAIAskCommand(a))
	return cmd
}

func newAIAskCommand(a *app) *cobra.Command {
	var (
		req    assistant.Request
		kind   string
		keyEnv string
	)
	cmd := &cobra.Command{
		Use:   "ask PROMPT...",
		Short: "Send a prompt to a provider through the studio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Content = strings.Join(args, " ")
			req.Type = assistant.RequestType(kind)
			if req.Config.APIKey == "" && keyEnv != "" {
				req.Config.APIKey = os.Getenv(keyEnv)
			}
			resp, err := a.client.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, resp, func(w io.Writer) error {
				fmt.Fprintln(w, resp.Response)
				if resp.ImageURL != "" {
					fmt.Fprintln(w, resp.ImageURL)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "openai", "provider name")
	cmd.Flags().StringVar(&kind, "type", string(assistant.TypeChat), "chat, code or image")
	cmd.Flags().StringVar(&req.Config.Model, "model", "", "model override")
	cmd.Flags().StringVar(&req.Config.Endpoint, "endpoint", "", "endpoint override")
	cmd.Flags().StringVar(&req.Config.APIKey, "api-key", "", "provider API key")
	cmd.Flags().StringVar(&keyEnv, "api-key-env", "", "read the provider API key from this environment variable")
	return cmd
}
