package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/omirec/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return v != "" },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "clipboard.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "clipboard.command")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "clipboard.command is available")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
}

func TestCheckDeepgramProbesProjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/projects", r.URL.Path)
		if r.Header.Get("Authorization") != "Token good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"projects":[]}`))
	}))
	t.Cleanup(server.Close)

	p := newProber()
	cfg := config.DeepgramConfig{APIKey: "good", URL: "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/listen"}

	check := p.checkDeepgram(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)

	cfg.APIKey = "bad"
	check = p.checkDeepgram(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 401")

	cfg.APIKey = ""
	check = p.checkDeepgram(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "api_key is empty")
}

func TestDeepgramRESTURL(t *testing.T) {
	got, err := deepgramRESTURL("")
	require.NoError(t, err)
	require.Equal(t, "https://api.deepgram.com/v1/projects", got)

	got, err = deepgramRESTURL("ws://localhost:8080/v1/listen?model=x")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/v1/projects", got)

	_, err = deepgramRESTURL("ftp://example.test")
	require.ErrorContains(t, err, "unsupported scheme")
}

func TestCheckGoogleProbesAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/projects/demo/locations/global/recognizers", r.URL.Path)
		if r.URL.Query().Get("key") != "good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	p := newProber()
	p.googleBase = server.URL

	check := p.checkGoogle(context.Background(), config.GoogleConfig{ProjectID: "demo", APIKey: "good"})
	require.True(t, check.Pass, check.Message)

	check = p.checkGoogle(context.Background(), config.GoogleConfig{ProjectID: "demo", APIKey: "bad"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 403")
}

func TestCheckGoogleCredentialSources(t *testing.T) {
	p := newProber()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	check := p.checkGoogle(context.Background(), config.GoogleConfig{})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "project_id is empty")

	check = p.checkGoogle(context.Background(), config.GoogleConfig{ProjectID: "demo"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no api_key")

	creds := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"type":"service_account"}`), 0o600))

	check = p.checkGoogle(context.Background(), config.GoogleConfig{ProjectID: "demo", CredentialsFile: creds})
	require.True(t, check.Pass)

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", creds)
	check = p.checkGoogle(context.Background(), config.GoogleConfig{ProjectID: "demo"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "application default credentials")
}

func TestRunSelectsBackendCheck(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg := config.Default()
	cfg.Engine.Backend = "deepgram"
	cfg.Indicator.Enable = false

	report := Run(context.Background(), config.Loaded{
		Path:     "/tmp/config.yaml",
		Config:   cfg,
		Warnings: []config.Warning{{Message: "deepgram.api_key is empty"}},
	})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Contains(t, names, "config.warning")
	require.Contains(t, names, "XDG_RUNTIME_DIR")
	require.Contains(t, names, "deepgram.credentials")
	require.NotContains(t, names, "google.credentials")
	require.NotContains(t, names, "busctl")
	require.False(t, report.OK())
	require.Contains(t, report.String(), "not found; using defaults")
}
