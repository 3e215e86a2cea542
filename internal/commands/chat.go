// internal/commands/chat.go
package docqa

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mwiater/docqa/internal/chat"
)

// chatCmd represents the 'chat' command, which starts an interactive question session.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about the document interactively",
	Long: `The 'chat' command prepares the index for the configured document, then reads questions
from standard input until you type exit or quit, or input ends.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rebuild, _ := cmd.Flags().GetBool("rebuild")
		out := cmd.OutOrStdout()
		a, err := newApp(ctx, GetConfig(), out, appOptions{rebuild: rebuild, generate: true})
		if err != nil {
			return err
		}
		defer a.close()

		cfg := a.cfg
		title := fmt.Sprintf("docqa: %s (%d chunks, %s)", filepath.Base(cfg.Document), a.index.Count(), a.generator.Model())
		session := chat.New(stdin, out, a.pipeline,
			chat.WithTitle(title),
			chat.WithStreaming(cfg.StreamEnabled()),
		)
		return session.Run(ctx)
	},
}

func init() {
	chatCmd.Flags().Bool("rebuild", false, "rebuild the index before starting")
	rootCmd.AddCommand(chatCmd)
}
