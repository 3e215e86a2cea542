package docqa

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/rag"
)

var sourcesLine = color.New(color.FgCyan).SprintFunc()

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question about the document",
	Args:  cobra.MinimumNArgs(1),
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

		return ask(ctx, a, strings.Join(args, " "), out)
	},
}

func ask(ctx context.Context, a *app, question string, out io.Writer) error {
	streamed := false
	var callbacks providers.StreamCallbacks
	if a.cfg.StreamEnabled() {
		callbacks.OnChunk = func(chunk string) error {
			if chunk != "" {
				streamed = true
			}
			_, err := io.WriteString(out, chunk)
			return err
		}
	}

	answer, err := a.pipeline.Answer(ctx, question, callbacks)
	if err != nil {
		return err
	}
	if !streamed {
		fmt.Fprint(out, answer.Text)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, sourcesLine(formatSources(answer)))
	return nil
}

func formatSources(answer rag.Answer) string {
	pages := answer.Pages()
	if len(pages) == 0 {
		return "Sources: none"
	}
	labels := make([]string, len(pages))
	for i, p := range pages {
		labels[i] = fmt.Sprintf("page %d", p)
	}
	return "Sources: " + strings.Join(labels, ", ")
}

func init() {
	askCmd.Flags().Bool("rebuild", false, "rebuild the index before answering")
	rootCmd.AddCommand(askCmd)
}
