// internal/commands/show.go
package docqa

import (
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/mwiater/docqa/internal/appconfig"
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
	Long:  `The 'show' command groups subcommands that display information related to docqa.`,
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overridden by flags accordingly.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		if dump, _ := cmd.Flags().GetBool("dump"); dump && cfg != nil {
			_, _ = pp.Fprintln(out, cfg.Redacted())
			return
		}
		file := ""
		if cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(out, file, cfg)
	},
}

func init() {
	showConfigCmd.Flags().Bool("dump", false, "print the full merged configuration structure")
	showCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(showCmd)
}
