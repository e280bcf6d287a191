package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/factorwatch/internal/client"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/wire"
)

var (
	deriveInput  string
	deriveRemote string
	deriveFormat string
)

func init() {
	rootCmd.AddCommand(deriveCmd)
	deriveCmd.Flags().StringVarP(&deriveInput, "input", "i", "", "Request file (YAML or JSON, - for stdin)")
	deriveCmd.Flags().StringVar(&deriveRemote, "remote", "", "Ask a running factorwatch server (host:port)")
	deriveCmd.Flags().StringVarP(&deriveFormat, "format", "f", "text", "Output format (text|json)")
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Show the attribute constraints derived for a login context",
	RunE:  runDerive,
}

func runDerive(cmd *cobra.Command, args []string) error {
	req, err := readRequest(deriveInput, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var resp *wire.DeriveResponse
	if deriveRemote != "" {
		c, err := client.New(deriveRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		if resp, err = c.Derive(cmd.Context(), req); err != nil {
			return err
		}
	} else {
		svc, err := service.New(service.Config{PolicyPath: policyPath, ProfileName: profileName})
		if err != nil {
			return err
		}
		defer svc.Close()
		c, adj := svc.Derive(req)
		resp = &wire.DeriveResponse{Constraints: c, Adjustments: adj}
	}

	if deriveFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	writeConstraints(cmd.OutOrStdout(), resp.Constraints, resp.Adjustments)
	return nil
}
