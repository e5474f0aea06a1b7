package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurag/internal/domain"
)

const photosynthesis = "Photosynthesis converts light energy into chemical energy in green plants."

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func setup(t *testing.T) (cfgPath, docPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`chunker: {chunk_size: 200, chunk_overlap: 20}
retrieval: {similarity_threshold: 0.2, max_retrieved_docs: 3, query_timeout_secs: 5}
embedder: {type: hash}
vector_store: {type: sqlite, sqlite: {path: %q}}
language: en
log: {level: disabled}
`, filepath.Join(dir, "index.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	docPath = filepath.Join(dir, "biology.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(photosynthesis), 0o644))
	return cfgPath, docPath
}

func TestIngestThenAsk(t *testing.T) {
	cfg, doc := setup(t)

	out, err := run(t, "--config", cfg, "ingest", doc, "--subject", "science", "--page", "4")
	require.NoError(t, err)
	assert.Contains(t, out, doc+": 1/1 chunks indexed")

	out, err = run(t, "--config", cfg, "ask", photosynthesis)
	require.NoError(t, err)
	assert.Contains(t, out, "Sources (confidence")
	assert.Contains(t, out, "[1] "+doc+", page 4")

	out, err = run(t, "--config", cfg, "ask", "--json", photosynthesis)
	require.NoError(t, err)
	var got askOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Grounded)
	require.Len(t, got.Citations, 1)
	require.NotNil(t, got.Citations[0].Page)
	assert.Equal(t, 4, *got.Citations[0].Page)
	require.NotNil(t, got.Confidence)
}

func TestDefaultStorePersistsAcrossRuns(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("language: en\nlog: {level: disabled}\n"), 0o644))
	doc := filepath.Join(t.TempDir(), "biology.txt")
	require.NoError(t, os.WriteFile(doc, []byte(photosynthesis), 0o644))

	_, err := run(t, "--config", cfg, "ingest", doc)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".edurag", "index.db"))

	out, err := run(t, "--config", cfg, "ask", photosynthesis)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] "+doc)
}

func TestReingestReplaces(t *testing.T) {
	cfg, doc := setup(t)
	_, err := run(t, "--config", cfg, "ingest", doc)
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "ingest", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "1 replaced")

	out, err = run(t, "--config", cfg, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:   1")
	assert.Contains(t, out, "Documents: 1")
}

func TestQuery_FilterExcludes(t *testing.T) {
	cfg, doc := setup(t)
	_, err := run(t, "--config", cfg, "ingest", doc, "--subject", "science")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "query", photosynthesis)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] "+doc+" #0")

	out, err = run(t, "--config", cfg, "query", "--subject", "history", photosynthesis)
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestAsk_EmptyIndexIsNotAnError(t *testing.T) {
	cfg, _ := setup(t)
	out, err := run(t, "--config", cfg, "ask", "what is gravity")
	require.NoError(t, err)
	assert.NotContains(t, out, "Sources")
	assert.NotEmpty(t, out)
}

func TestRemove(t *testing.T) {
	cfg, doc := setup(t)
	_, err := run(t, "--config", cfg, "ingest", doc)
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "remove", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 entries")

	_, err = run(t, "--config", cfg, "remove", doc)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStats_JSON(t *testing.T) {
	cfg, doc := setup(t)
	_, err := run(t, "--config", cfg, "ingest", doc)
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Entries": 1`)
	assert.Contains(t, out, `"Embedder": "hash"`)
}

func TestIngest_NoDocuments(t *testing.T) {
	cfg, _ := setup(t)
	_, err := run(t, "--config", cfg, "ingest", filepath.Join(t.TempDir(), "*.pdf"))
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: {chunk_size: 10, chunk_overlap: 10}\n"), 0o644))
	_, err := run(t, "--config", path, "stats")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestAskCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := run(t, "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTUICmd_HasMetricsAddrFlag(t *testing.T) {
	flag := tuiCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestUserError(t *testing.T) {
	assert.NoError(t, UserError(nil))
	plain := fmt.Errorf("boom")
	assert.Equal(t, plain, UserError(plain))

	err := UserError(fmt.Errorf("%w: timeout", domain.ErrEmbeddingUnavailable))
	assert.Contains(t, err.Error(), "search temporarily unavailable")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
