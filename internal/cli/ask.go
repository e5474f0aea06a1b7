package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"edurag/internal/citation"
	"edurag/internal/domain"
	"edurag/internal/service"
)

var (
	askMeta   metaFlags
	askJSON   bool
	queryMeta metaFlags
	queryJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Build a grounded prompt for a question",
	Long: `Retrieves the passages relevant to the question and prints the prompt
for a generation model followed by the sources it cites. When nothing
relevant is indexed the prompt asks the model to say so.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Show the passages that match a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	askMeta.register(askCmd, false)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	queryMeta.register(queryCmd, false)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(askCmd, queryCmd)
}

func ask(cmd *cobra.Command, question string, f *metaFlags) (*service.Answer, error) {
	a, err := openApp(cmd)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.svc.Ask(cmd.Context(), domain.Query{
		Text:     question,
		Language: domain.Language(f.language),
		Filter:   f.filter(cmd),
	})
}

type askOutput struct {
	Prompt     string               `json:"prompt"`
	Grounded   bool                 `json:"grounded"`
	Confidence *float64             `json:"confidence,omitempty"`
	Language   domain.Language      `json:"language"`
	Citations  []domain.Citation    `json:"citations"`
	Passages   []domain.ScoredChunk `json:"passages"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ans, err := ask(cmd, args[0], &askMeta)
	if err != nil {
		return err
	}
	if askJSON {
		out := askOutput{
			Prompt:    ans.Prompt,
			Grounded:  ans.Grounded,
			Language:  ans.Language,
			Citations: ans.Citations,
			Passages:  ans.Result.Items,
		}
		if ans.HasConfidence {
			c := ans.Confidence
			out.Confidence = &c
		}
		return printJSON(cmd, out)
	}
	cmd.Println(ans.Prompt)
	if ans.Grounded {
		cmd.Println()
		cmd.Printf("Sources (confidence %.2f):\n", ans.Confidence)
		cmd.Println(citation.Render(ans.Citations, ans.Language))
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ans, err := ask(cmd, args[0], &queryMeta)
	if err != nil {
		return err
	}
	if queryJSON {
		return printJSON(cmd, ans.Result)
	}
	if !ans.Grounded {
		cmd.Println("No results found.")
		return nil
	}
	for i, it := range ans.Result.Items {
		m := it.Chunk.Metadata
		cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, m.Source, it.Chunk.Index, it.Score)
		cmd.Printf("      %s\n", snippet(it.Chunk.Text, 160))
	}
	return nil
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
