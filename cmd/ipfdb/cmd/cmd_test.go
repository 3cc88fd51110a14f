package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/ipfdb/pkg/api"
	"github.com/ssargent/ipfdb/pkg/config"
	"github.com/ssargent/ipfdb/pkg/di"
	"github.com/ssargent/ipfdb/pkg/ipf"
	"github.com/ssargent/ipfdb/pkg/store"
)

const testCatalog = `#STOCK::=TYPE,SYMBOL,DESCRIPTION
STOCK,IBM,International Business Machines
STOCK,AAPL,Apple Inc.
#FUTURE::=TYPE,SYMBOL,PRODUCT,MULTIPLIER
FUTURE,/ESH24,/ES,50
##COMPLETE
`

const exportedCatalog = "#FUTURE::=TYPE,SYMBOL,MULTIPLIER,PRODUCT\n" +
	"FUTURE,/ESH24,50,/ES\n" +
	"#STOCK::=TYPE,SYMBOL,DESCRIPTION\n" +
	"STOCK,AAPL,Apple Inc.\n" +
	"STOCK,IBM,International Business Machines\n"

// resetCommandState clears flag values and contexts left by a previous run
func resetCommandState(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	c.SetContext(context.Background())
	for _, sub := range c.Commands() {
		resetCommandState(sub)
	}
}

func executeWith(t *testing.T, c *di.Container, args ...string) (string, error) {
	t.Helper()
	SetContainer(c)
	resetCommandState(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, di.NewContainer(), args...)
}

// testEnv writes a config with a fresh data dir and a catalog file
func testEnv(t *testing.T) (configPath, catalogPath string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, configPath))

	catalogPath = filepath.Join(dir, "catalog.ipf")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0644))
	return configPath, catalogPath
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dataDir := filepath.Join(dir, "data")

	out, err := executeCommand(t, "init", "--config", configPath, "--data-dir", dataDir, "--source", "profiles.ipf.gz")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at "+configPath)
	assert.Contains(t, out, "Catalog source: profiles.ipf.gz")

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "profiles.ipf.gz", cfg.Source.URL)

	out, err = executeCommand(t, "init", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = executeCommand(t, "init", "--config", configPath, "--force")
	require.NoError(t, err)
	cfg, err = config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.Source.URL)
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := executeCommand(t, "get", "IBM", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file does not exist")
}

func TestInvalidLogLevelOverride(t *testing.T) {
	configPath, _ := testEnv(t)

	SetContainer(di.NewContainer())
	resetCommandState(rootCmd)
	rootCmd.SetArgs([]string{"stats", "--config", configPath, "--log-level", "chatty"})
	rootCmd.SetOut(new(bytes.Buffer))
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestCatalogCommands(t *testing.T) {
	configPath, catalogPath := testEnv(t)

	out, err := executeCommand(t, "import", catalogPath, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Upserted:")
	assert.Contains(t, out, "Complete:  true")

	t.Run("get table", func(t *testing.T) {
		out, err := executeCommand(t, "get", "IBM", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "TYPE:")
		assert.Contains(t, out, "International Business Machines")
	})

	t.Run("get json", func(t *testing.T) {
		out, err := executeCommand(t, "get", "/ESH24", "--config", configPath, "-o", "json")
		require.NoError(t, err)

		var fields map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &fields))
		assert.Equal(t, map[string]string{
			"TYPE":       "FUTURE",
			"SYMBOL":     "/ESH24",
			"PRODUCT":    "/ES",
			"MULTIPLIER": "50",
		}, fields)
	})

	t.Run("export stdout", func(t *testing.T) {
		out, err := executeCommand(t, "export", "-", "--config", configPath)
		require.NoError(t, err)
		assert.Equal(t, exportedCatalog, out)
	})

	t.Run("export gzip file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "catalog.ipf.gz")
		out, err := executeCommand(t, "export", path, "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Exported 3 profiles")

		profiles, err := ipf.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, profiles, 3)
	})

	t.Run("stats json", func(t *testing.T) {
		out, err := executeCommand(t, "stats", "--config", configPath, "-o", "json")
		require.NoError(t, err)

		var stats store.Stats
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, 3, stats.Profiles)
		assert.Equal(t, map[string]int{"STOCK": 2, "FUTURE": 1}, stats.ByType)
		assert.Equal(t, 1, stats.Imports)
	})

	t.Run("imports table", func(t *testing.T) {
		out, err := executeCommand(t, "imports", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "SOURCE")
		assert.Contains(t, out, "catalog.ipf")
	})

	t.Run("delete", func(t *testing.T) {
		out, err := executeCommand(t, "delete", "IBM", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted IBM")

		_, err = executeCommand(t, "get", "IBM", "--config", configPath)
		assert.ErrorIs(t, err, store.ErrProfileNotFound)

		_, err = executeCommand(t, "delete", "IBM", "--config", configPath)
		assert.ErrorIs(t, err, store.ErrProfileNotFound)
	})
}

func TestImportCommand_NameOverride(t *testing.T) {
	configPath, _ := testEnv(t)

	// gzip content behind a name that says nothing about it
	path := filepath.Join(t.TempDir(), "download")
	profiles, err := ipf.ReadAll(bytes.NewReader([]byte(testCatalog)), "catalog.ipf")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, ipf.WriteAll(&buf, "catalog.ipf.gz", profiles))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	out, err := executeCommand(t, "import", path, "--name", "catalog.ipf.gz", "--config", configPath, "-o", "json")
	require.NoError(t, err)

	var res store.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Upserted)
}

func TestImportCommand_MissingSource(t *testing.T) {
	configPath, _ := testEnv(t)

	_, err := executeCommand(t, "import", filepath.Join(t.TempDir(), "nope.ipf"), "--config", configPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConvertCommand(t *testing.T) {
	configPath, catalogPath := testEnv(t)

	zipPath := filepath.Join(t.TempDir(), "catalog.ipf.zip")
	out, err := executeCommand(t, "convert", catalogPath, zipPath, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Converted 3 profiles")

	profiles, err := ipf.ReadFile(zipPath)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "IBM", profiles[0].Symbol())

	out, err = executeCommand(t, "convert", zipPath, "-", "--sort", "--config", configPath)
	require.NoError(t, err)
	sorted, err := ipf.ReadAll(bytes.NewReader([]byte(out)), "sorted.ipf")
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, ipf.TypeFuture, sorted[0].Type())
	assert.Equal(t, "AAPL", sorted[1].Symbol())
	assert.Equal(t, "IBM", sorted[2].Symbol())
}

func TestInspectCommand(t *testing.T) {
	configPath, catalogPath := testEnv(t)

	out, err := executeCommand(t, "inspect", catalogPath, "--config", configPath, "-o", "json")
	require.NoError(t, err)

	var in struct {
		Profiles     int            `json:"profiles"`
		Types        map[string]int `json:"types"`
		Declarations []Declaration  `json:"declarations"`
		Complete     bool           `json:"complete"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &in))
	assert.Equal(t, 3, in.Profiles)
	assert.Equal(t, map[string]int{"STOCK": 2, "FUTURE": 1}, in.Types)
	require.Len(t, in.Declarations, 2)
	assert.Equal(t, Declaration{Type: "STOCK", Fields: []string{"TYPE", "SYMBOL", "DESCRIPTION"}}, in.Declarations[0])
	assert.True(t, in.Complete)

	out, err = executeCommand(t, "inspect", catalogPath, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "DECLARATIONS")
	assert.Contains(t, out, "#FUTURE::=TYPE,SYMBOL,PRODUCT,MULTIPLIER")
}

type fakeStarter struct {
	config   api.ServerConfig
	profiles int
	refresh  bool
}

func (f *fakeStarter) StartServer(ctx context.Context, catalog store.Store, refresher api.Refresher, config api.ServerConfig) error {
	f.config = config
	f.refresh = refresher != nil
	n, err := catalog.Count(ctx)
	f.profiles = n
	return err
}

type fakeFactory struct {
	starter *fakeStarter
}

func (f *fakeFactory) CreateServerStarter() api.ServerStarter {
	return f.starter
}

func (f *fakeFactory) CreateHandler(store.Store, api.Refresher, api.ServerConfig) http.Handler {
	return http.NotFoundHandler()
}

func TestServeCommand(t *testing.T) {
	configPath, _ := testEnv(t)

	starter := &fakeStarter{}
	c := di.NewContainer()
	c.SetServerFactory(&fakeFactory{starter: starter})

	out, err := executeWith(t, c, "serve", "--config", configPath, "--port", "9090")
	require.NoError(t, err)
	assert.Contains(t, out, "Starting ipfdb server on 127.0.0.1:9090")
	assert.Equal(t, 9090, starter.config.Port)
	assert.NotNil(t, starter.config.Logger)
	assert.False(t, starter.refresh)
}

func TestUpCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	catalogPath := filepath.Join(dir, "catalog.ipf")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0644))

	starter := &fakeStarter{}
	c := di.NewContainer()
	c.SetServerFactory(&fakeFactory{starter: starter})

	out, err := executeWith(t, c, "up",
		"--config", configPath,
		"--data-dir", filepath.Join(dir, "data"),
		"--source", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at "+configPath)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, catalogPath, cfg.Source.URL)

	// the source was imported before the server started
	assert.True(t, starter.refresh)
	assert.Equal(t, 3, starter.profiles)

	out, err = executeWith(t, c, "up", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded configuration from "+configPath)
}
