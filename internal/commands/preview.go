package docqa

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/docqa/internal/rag"
)

// previewCmd shows what would be sent to the generation model for a question.
var previewCmd = &cobra.Command{
	Use:   "preview [question]",
	Short: "Show the retrieved chunks and prompt for a question without generating",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a, err := newApp(cmd.Context(), GetConfig(), out, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		rc, prompt, err := a.pipeline.Preview(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		maxRunes, _ := cmd.Flags().GetInt("maxChunkChars")
		rag.WritePreview(out, rc, prompt, maxRunes)
		return nil
	},
}

func init() {
	previewCmd.Flags().Int("maxChunkChars", 240, "truncate each printed chunk to this many characters (0 prints chunks in full)")
	rootCmd.AddCommand(previewCmd)
}
