package cli

import (
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index contents",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output stats as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.svc.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if statsJSON {
		return printJSON(cmd, st)
	}
	cmd.Printf("Embedder:  %s (dimension %d)\n", st.Embedder, st.Dimension)
	cmd.Printf("Entries:   %d\n", st.Entries)
	cmd.Printf("Documents: %d\n", len(st.Documents))
	for _, d := range st.Documents {
		cmd.Printf("  %s  %s  (%d chunks)\n", d.ID, d.Source, d.Chunks)
	}
	return nil
}
