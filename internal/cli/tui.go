package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"edurag/internal/domain"
	"edurag/internal/tui"
)

var (
	tuiMeta     metaFlags
	metricsAddr string
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive question console",
	Long: `Launch the interactive terminal console for asking questions.

Controls:
  Enter    - Ask
  ↑, ↓     - Browse passages
  Tab      - Toggle the prompt view
  Ctrl+C   - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiMeta.register(tuiCmd, false)
	tuiCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	st, err := a.svc.Stats(cmd.Context())
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%d chunks from %d documents · %s embedder", st.Entries, len(st.Documents), st.Embedder)
	lang := domain.Language(tuiMeta.language).Or(a.cfg.Language)
	m := tui.New(a.svc, lang, tuiMeta.filter(cmd), summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
