package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidsub/internal/config"
	"vidsub/internal/testsupport"
)

const fakeFFmpeg = `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
case "$*" in
  *pcm_s16le*)
    echo "size=     512kB time=00:00:05.00 bitrate= 256.0kbits/s" >&2
    printf 'RIFF' > "$out"
    exit 0
    ;;
  *)
    echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 128 kb/s" >&2
    echo "At least one output file must be specified" >&2
    exit 1
    ;;
esac
`

const fakeTranscriber = `#!/bin/sh
printf '[00:00:00.000 --> 00:00:02.500]  hello there\n'
printf '[00:00:02.500 --> 00:00:05.000]  general kenobi\n'
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config pointing at shell-script stand-ins for
// ffmpeg and the transcriber and isolates HOME.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"VIDSUB_FFMPEG", "VIDSUB_TRANSCRIBER", "VIDSUB_MODEL", "VIDSUB_API_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)

	binDir := filepath.Join(base, "bin")
	ffmpeg := writeScript(t, binDir, "ffmpeg", fakeFFmpeg)
	transcriber := writeScript(t, binDir, "wav2srt", fakeTranscriber)
	cfg.Tools.Extractor = ffmpeg
	cfg.Tools.Transcriber = transcriber

	configPath := filepath.Join(base, "vidsub.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testsupport.WriteContent(t, path, body)
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
	return path
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteContent(t, path, string(data))
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
