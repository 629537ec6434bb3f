package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/config"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

// writeAppConfig writes an application config keeping all state inside dir.
func writeAppConfig(t *testing.T, dir string, worker []string) string {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	if len(worker) > 0 {
		cfg.WorkerCommand = worker
	}
	written, err := config.Save(cfg, filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	return written
}

// workerScript writes a shell script and returns the command invoking it.
func workerScript(t *testing.T, body string) []string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return []string{"/bin/sh", path}
}

// writeSession saves a valid session config and returns its path.
func writeSession(t *testing.T, dir string) (string, session.Config) {
	t.Helper()

	cfg := session.Default()
	cfg.Root = filepath.Join(dir, "session-01")
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, session.Save(cfg, path))
	return path, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionPathDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "session.yaml", sessionPath(nil))
	assert.Equal(t, "session.yaml", sessionPath([]string{""}))
	assert.Equal(t, "lab/run.yaml", sessionPath([]string{"lab/run.yaml"}))
}

func TestNewWritesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)
	path := filepath.Join(dir, "fresh.yaml")

	out, err := execute(t, "new", path, "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "raw_subdir: raw")
	assert.Contains(t, string(raw), "buffer_size: 500")

	_, err = execute(t, "new", path, "--config", appCfg)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "new", path, "--force", "--config", appCfg)
	require.NoError(t, err)
}

func TestShowPrintsYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)
	path, cfg := writeSession(t, dir)

	out, err := execute(t, "show", path, "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "root: "+cfg.Root)
	assert.Contains(t, out, "output_format: hdf5")
}

func TestShowMissingFileFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)

	_, err := execute(t, "show", filepath.Join(dir, "absent.yaml"), "--config", appCfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateReportsInvalidValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: /data/session\nbin_size: 0\n"), 0o644))

	_, err := execute(t, "validate", path, "--config", appCfg)
	require.ErrorContains(t, err, "bin_size")
}

func TestValidateStrictAcceptsValidSession(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)
	path, _ := writeSession(t, dir)

	out, err := execute(t, "validate", path, "--strict", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestRunStreamsWorkerOutput(t *testing.T) {
	dir := t.TempDir()
	worker := workerScript(t, `echo "loading config: $1"
echo "mode: $2"
echo "stage1: compensating rec_00"
exit 0
`)
	appCfg := writeAppConfig(t, dir, worker)
	path, _ := writeSession(t, dir)

	out, err := execute(t, "run", path, "--mode", "stage1", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "mode: stage1")
	assert.Contains(t, out, "stage1: compensating rec_00")

	store, err := journal.New(filepath.Join(dir, "data", "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Recent(5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "stage1", rec.Mode)
	assert.Equal(t, path, rec.ConfigPath)
	assert.False(t, rec.Failed)
	require.NotNil(t, rec.ExitCode)
	assert.Zero(t, *rec.ExitCode)
	require.NotNil(t, rec.FinishedAt)

	logRaw, err := os.ReadFile(rec.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logRaw), "stage1: compensating rec_00")
}

func TestRunMirrorsWorkerExitCode(t *testing.T) {
	dir := t.TempDir()
	worker := workerScript(t, `echo "boom" >&2
exit 3
`)
	appCfg := writeAppConfig(t, dir, worker)
	path, _ := writeSession(t, dir)

	out, err := execute(t, "run", path, "--config", appCfg)
	require.Error(t, err)

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.code)
	assert.Contains(t, out, "[stderr] boom")
	assert.Contains(t, out, "local run failed with exit code 3")

	store, err := journal.New(filepath.Join(dir, "data", "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Failed)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, workerScript(t, "exit 0\n"))
	path, _ := writeSession(t, dir)

	_, err := execute(t, "run", path, "--mode", "stage9", "--config", appCfg)
	require.ErrorContains(t, err, "unknown mode")
}

func TestRunsListsJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)

	out, err := execute(t, "runs", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")

	store, err := journal.New(filepath.Join(dir, "data", "journal.db"))
	require.NoError(t, err)
	rec := journal.Record{ID: "run-1", Mode: "all", ConfigPath: "session.yaml", StartedAt: time.Now().UTC()}
	require.NoError(t, store.RecordStart(rec))
	require.NoError(t, store.RecordFinish("run-1", 0))
	require.NoError(t, store.Close())

	out, err = execute(t, "runs", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "ok")
}

func TestSchemaFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appCfg := writeAppConfig(t, dir, nil)

	out, err := execute(t, "schema", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, "openapi: 3.0.3")
	assert.Contains(t, out, "Session")

	out, err = execute(t, "schema", "--format", "json", "--config", appCfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"openapi"`)

	_, err = execute(t, "schema", "--format", "toml", "--config", appCfg)
	require.ErrorContains(t, err, "unknown schema format")
}

func TestConfigInitAndShow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "app.json")

	out, err := execute(t, "config", "init", "--config", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)
	assert.FileExists(t, target)

	_, err = execute(t, "config", "init", "--config", target)
	require.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "show", "--config", target)
	require.NoError(t, err)
	assert.Contains(t, out, "worker_command")
	assert.Contains(t, out, "flowreg_worker")
}

func TestWatchDirsResolution(t *testing.T) {
	t.Parallel()

	cfg := session.Default()
	cfg.Root = "/data/session-01"
	cfg.FinalResults = "/shared/results"

	dirs := watchDirs(cfg)
	assert.Equal(t, []string{"/data/session-01/motion_corrected", "/shared/results"}, dirs)

	cfg.FinalResults = cfg.OutputRoot
	dirs = watchDirs(cfg)
	assert.Equal(t, []string{"/data/session-01/motion_corrected"}, dirs)
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	now := time.Now()
	code := 2

	assert.Equal(t, "running", runStatus(journal.Record{}))
	assert.Equal(t, "ok", runStatus(journal.Record{FinishedAt: &now}))
	assert.Equal(t, "failed(2)", runStatus(journal.Record{FinishedAt: &now, Failed: true, ExitCode: &code}))
}

func TestRootRejectsUnreadableConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	_, err := execute(t, "show", "--config", bad)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode")
}
