package docqa

import (
	"fmt"

	"github.com/spf13/cobra"
)

// indexCmd builds or reuses the persisted index for the configured document.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the document index",
	Long: `The 'index' command chunks and embeds the configured document. An existing index built from
the same document and settings is reused unless --rebuild is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		out := cmd.OutOrStdout()
		a, err := newApp(cmd.Context(), GetConfig(), out, appOptions{rebuild: rebuild})
		if err != nil {
			return err
		}
		defer a.close()

		state := "reused"
		if a.prepared.Built {
			state = "built: " + a.prepared.Reason
		}
		fmt.Fprintf(out, "Index ready at %s: %d chunks (%s)\n", a.index.Dir(), a.prepared.Chunks, state)
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("rebuild", false, "discard any existing index and build a new one")
	rootCmd.AddCommand(indexCmd)
}
