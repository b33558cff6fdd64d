package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iib-desktop/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigSetSDWebUIDir(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), config.LaunchConfigFileName)
	sdDir := t.TempDir()

	out, err := execute(t, "config", "set-sdwebui-dir", sdDir, "--conf", confPath)
	require.NoError(t, err)
	assert.Contains(t, out, confPath)

	assert.Equal(t, config.LaunchConfig{SDWebUIDir: sdDir}, config.LoadLaunchConfig(confPath))

	_, err = execute(t, "config", "set-sdwebui-dir", "", "--conf", confPath)
	require.NoError(t, err)
	assert.Equal(t, config.LaunchConfig{}, config.LoadLaunchConfig(confPath))
}

func TestConfigShow(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), config.LaunchConfigFileName)
	require.NoError(t, config.SaveLaunchConfig(confPath, config.LaunchConfig{SDWebUIDir: "/data/sd"}))

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"config", "show", "--conf", confPath})
	require.NoError(t, cmd.Execute())

	var got struct {
		LaunchConfig config.LaunchConfig `json:"launch_config"`
		SidecarArgs  []string            `json:"sidecar_args"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "/data/sd", got.LaunchConfig.SDWebUIDir)
	assert.Equal(t, []string{"--sd_webui_dir", "/data/sd"}, got.SidecarArgs)
	assert.Empty(t, stderr.String())
}

func TestRunShellInvalidSettings(t *testing.T) {
	_, err := execute(t, "--sidecar", " ", "--log-to-file=false")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, exitCodeFor(err))
}

func TestRunShellMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t,
		"--sidecar", filepath.Join(dir, "iib_api_server"),
		"--sidecar-log", filepath.Join(dir, "iib_api_server.log"),
		"--conf", filepath.Join(dir, config.LaunchConfigFileName),
		"--headless",
		"--log-to-file=false",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCodeSidecarError, exitCodeFor(err))
	assert.NoFileExists(t, filepath.Join(dir, "iib_api_server.log"))
}

func TestConfigShowYAML(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), config.LaunchConfigFileName)
	require.NoError(t, config.SaveLaunchConfig(confPath, config.LaunchConfig{SDWebUIDir: "/data/sd"}))

	out, err := execute(t, "config", "show", "-o", "yaml", "--conf", confPath, "--shutdown-timeout", "2s")
	require.NoError(t, err)
	assert.Contains(t, out, "sdwebui_dir: /data/sd")
	assert.Contains(t, out, "shutdown-timeout: 2s")

	_, err = execute(t, "config", "show", "-o", "xml", "--conf", confPath)
	assert.Error(t, err)
}
