package commands

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/app"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()

	fn()

	require.NoError(t, w.Close())
	b := <-done
	require.NoError(t, r.Close())
	return string(b)
}

// runCLI executes the root command against an isolated home and database.
func runCLI(t *testing.T, dbPath string, args ...string) (envelope, error) {
	t.Helper()
	t.Setenv("HOME", filepath.Dir(dbPath))
	t.Setenv("REFRESHER_PRETTY_JSON", "")
	t.Cleanup(func() { app.SetDBPathOverride("") })

	var runErr error
	out := captureStdout(t, func() {
		root := NewRootCmd("test")
		root.SetArgs(append([]string{"--db-path", dbPath}, args...))
		runErr = root.Execute()
	})

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "stdout: %s", out)
	return env, runErr
}

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "refresher.db")
}

func requireFlagExists(t *testing.T, cmd *cobra.Command, name string) {
	t.Helper()
	f := cmd.Flags().Lookup(name)
	require.NotNil(t, f, "flag %s", name)
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	for _, path := range [][]string{
		{"conn", "add"}, {"conn", "list"}, {"cleanup"}, {"refresh"},
		{"events", "list"}, {"db", "path"}, {"doctor"}, {"schema", "commands"},
	} {
		sub, _, err := root.Find(path)
		require.NoError(t, err)
		require.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestRootCmd_Version(t *testing.T) {
	env, err := runCLI(t, testDBPath(t), "--version")
	require.NoError(t, err)
	require.True(t, env.Success)
	require.JSONEq(t, `{"version":"test"}`, string(env.Data))
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLogLevel("debug").String())
	require.Equal(t, "WARN", parseLogLevel("Warning").String())
	require.Equal(t, "ERROR", parseLogLevel("error").String())
	require.Equal(t, "INFO", parseLogLevel("bogus").String())
}

func TestConnAddAndList(t *testing.T) {
	dbPath := testDBPath(t)

	env, err := runCLI(t, dbPath, "conn", "add", "--workbook", "Sales.xlsx", "--name", "Orders", "--source", "odbc:sales")
	require.NoError(t, err)
	require.True(t, env.Success)

	env, err = runCLI(t, dbPath, "conn", "list", "--workbook", "Sales.xlsx")
	require.NoError(t, err)

	var data struct {
		Count       int `json:"count"`
		Connections []struct {
			Name   string `json:"name"`
			Source string `json:"source"`
		} `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 1, data.Count)
	require.Equal(t, "Orders", data.Connections[0].Name)
	require.Equal(t, "odbc:sales", data.Connections[0].Source)
}

func TestConnAdd_RequiresWorkbook(t *testing.T) {
	env, err := runCLI(t, testDBPath(t), "conn", "add", "--name", "Orders")
	require.Error(t, err)
	require.EqualError(t, err, "error already printed")
	require.IsType(t, printedError{}, err)
	require.False(t, env.Success)
	require.Equal(t, "--workbook is required", env.Error)
}

func TestCleanupCmd_RemovesDuplicates(t *testing.T) {
	dbPath := testDBPath(t)
	for _, name := range []string{"A", "B", "A", "C"} {
		_, err := runCLI(t, dbPath, "conn", "add", "--workbook", "Sales.xlsx", "--name", name)
		require.NoError(t, err)
	}

	env, err := runCLI(t, dbPath, "cleanup", "--workbook", "Sales.xlsx", "--duplicates")
	require.NoError(t, err)

	var data struct {
		RunID  string `json:"run_id"`
		Report struct {
			Removed    int `json:"removed"`
			FinalCount int `json:"final_count"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.RunID)
	require.Equal(t, 1, data.Report.Removed)
	require.Equal(t, 3, data.Report.FinalCount)

	env, err = runCLI(t, dbPath, "events", "list", "--step", "cleanup.done")
	require.NoError(t, err)
	var events struct {
		RunID string `json:"run_id"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Equal(t, data.RunID, events.RunID)
	require.Equal(t, 1, events.Count)
}

func TestCleanupCmd_RequiresPolicy(t *testing.T) {
	env, err := runCLI(t, testDBPath(t), "cleanup", "--workbook", "Sales.xlsx")
	require.Error(t, err)
	require.Contains(t, env.Error, "no cleanup policy selected")
}

func TestRefreshCmd_StampOnly(t *testing.T) {
	dbPath := testDBPath(t)
	_, err := runCLI(t, dbPath, "conn", "add", "--workbook", "Sales.xlsx", "--name", "Orders")
	require.NoError(t, err)

	env, err := runCLI(t, dbPath, "refresh", "--workbook", "Sales.xlsx", "--max-attempts", "2", "--backoff", "1ms")
	require.NoError(t, err)

	var data struct {
		Succeeded int `json:"succeeded"`
		Sessions  []struct {
			State string `json:"state"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 1, data.Succeeded)
	require.Equal(t, "succeeded", data.Sessions[0].State)
}

func TestRefreshCmd_FlagValidation(t *testing.T) {
	dbPath := testDBPath(t)
	for _, args := range [][]string{
		{"refresh", "--workbook", "W", "--max-attempts", "0"},
		{"refresh", "--workbook", "W", "--backoff-strategy", "linear"},
		{"refresh", "--workbook", "W", "--timeout", "0s"},
		{"refresh", "--workbook", "W", "--command", "/nonexistent/refresh-tool"},
	} {
		env, err := runCLI(t, dbPath, args...)
		require.Error(t, err, "%v", args)
		require.False(t, env.Success)
	}
}

func TestRefreshCmd_FlagSetup(t *testing.T) {
	cmd := NewRefreshCmd()
	for _, name := range []string{"workbook", "connection", "max-attempts", "backoff", "backoff-strategy", "command", "timeout", "cleanup", "suffix", "duplicates", "pattern"} {
		requireFlagExists(t, cmd, name)
	}
}

func TestDBPathCmd_ReportsCLISource(t *testing.T) {
	dbPath := testDBPath(t)
	env, err := runCLI(t, dbPath, "db", "path")
	require.NoError(t, err)
	require.JSONEq(t, `{"path":"`+dbPath+`","source":"cli(--db-path)"}`, string(env.Data))
}

func TestDoctorCmd_ReportsDuplicates(t *testing.T) {
	dbPath := testDBPath(t)
	for i := 0; i < 2; i++ {
		_, err := runCLI(t, dbPath, "conn", "add", "--workbook", "Sales.xlsx", "--name", "Orders")
		require.NoError(t, err)
	}

	env, err := runCLI(t, dbPath, "doctor")
	require.NoError(t, err)

	var data struct {
		DBOK          bool   `json:"db_ok"`
		SchemaVersion int64  `json:"schema_version"`
		SchemaErr     string `json:"schema_error"`
		Pragmas       struct {
			JournalMode string `json:"journal_mode"`
		} `json:"pragmas"`
		Diagnostics []struct {
			Code string `json:"code"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.True(t, data.DBOK)
	require.Equal(t, int64(2), data.SchemaVersion)
	require.Empty(t, data.SchemaErr)
	require.Equal(t, "wal", data.Pragmas.JournalMode)
	require.Len(t, data.Diagnostics, 1)
	require.Equal(t, "DUPLICATE_CONNECTION", data.Diagnostics[0].Code)
}
