package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestMeta metaFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest [file or glob]...",
	Short: "Index text documents",
	Long: `Normalizes, chunks and embeds .txt and .md files and adds them to the
index. Re-ingesting a file replaces its previous version.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestMeta.register(ingestCmd, true)
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.VectorStore.Type == "memory" {
		a.log.Warn().Msg("vector store is in memory, the index is discarded when this command exits")
	}
	meta := ingestMeta.metadata(cmd)
	if meta.Language == "" {
		meta.Language = a.cfg.Language
	}
	reports, err := a.svc.IngestFiles(cmd.Context(), args, meta)
	for _, r := range reports {
		cmd.Printf("%s: %d/%d chunks indexed", r.Source, r.Inserted, r.Chunks)
		if r.Superseded > 0 {
			cmd.Printf(", %d replaced", r.Superseded)
		}
		cmd.Println()
		for _, f := range r.Failures {
			cmd.Printf("  chunk %d failed: %v\n", f.Index, UserError(f.Err))
		}
	}
	if err != nil {
		return fmt.Errorf("ingest incomplete: %w", err)
	}
	return nil
}
