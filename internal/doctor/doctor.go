// Package doctor runs runtime readiness diagnostics for config, tools, audio, and ASR credentials.
package doctor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rbright/omirec/internal/audio"
	"github.com/rbright/omirec/internal/config"
)

const (
	probeTimeout      = 3 * time.Second
	googleSpeechBase  = "https://speech.googleapis.com"
	deepgramProjects  = "/v1/projects"
	credentialsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// prober issues the credential HTTP probes.
type prober struct {
	client     *resty.Client
	googleBase string
}

func newProber() *prober {
	return &prober{
		client:     resty.New().SetTimeout(probeTimeout),
		googleBase: googleSpeechBase,
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	return newProber().run(ctx, cfg)
}

func (p *prober) run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})
	for _, warning := range cfg.Warnings {
		checks = append(checks, Check{Name: "config.warning", Pass: true, Message: warning.Message})
	}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the control socket", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard.command"))
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications use busctl"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))

	switch cfg.Config.Engine.Backend {
	case "deepgram":
		checks = append(checks, p.checkDeepgram(ctx, cfg.Config.Deepgram))
	default:
		checks = append(checks, p.checkGoogle(ctx, cfg.Config.Google))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection, the same check recording permission uses.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkGoogle validates Cloud Speech credentials, probing the API when an API key is set.
func (p *prober) checkGoogle(ctx context.Context, cfg config.GoogleConfig) Check {
	const name = "google.credentials"

	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return Check{Name: name, Pass: false, Message: "google.project_id is empty"}
	}

	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return p.probeGoogleKey(ctx, cfg, key)
	}

	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		if _, err := os.Stat(file); err != nil {
			return Check{Name: name, Pass: false, Message: fmt.Sprintf("credentials_file unreadable: %v", err)}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("using credentials file %s", file)}
	}

	if path := applicationDefaultCredentials(); path != "" {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("using application default credentials %s", path)}
	}
	return Check{Name: name, Pass: false, Message: "no api_key, credentials_file, or application default credentials found"}
}

func (p *prober) probeGoogleKey(ctx context.Context, cfg config.GoogleConfig, key string) Check {
	const name = "google.credentials"

	location := strings.TrimSpace(cfg.Region)
	if location == "" {
		location = "global"
	}
	base := p.googleBase
	if location != "global" && base == googleSpeechBase {
		base = fmt.Sprintf("https://%s-speech.googleapis.com", location)
	}
	endpoint := fmt.Sprintf("%s/v2/projects/%s/locations/%s/recognizers", strings.TrimRight(base, "/"), url.PathEscape(cfg.ProjectID), url.PathEscape(location))

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetQueryParam("pageSize", "1").
		Get(endpoint)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if resp.IsError() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from speech API", resp.StatusCode())}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("api key accepted for project %s", cfg.ProjectID)}
}

// checkDeepgram validates the API key against the projects endpoint.
func (p *prober) checkDeepgram(ctx context.Context, cfg config.DeepgramConfig) Check {
	const name = "deepgram.credentials"

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return Check{Name: name, Pass: false, Message: "deepgram.api_key is empty"}
	}

	endpoint, err := deepgramRESTURL(cfg.URL)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Token "+key).
		Get(endpoint)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if resp.IsError() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode(), endpoint)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("api key accepted by %s", endpoint)}
}

// deepgramRESTURL maps the streaming websocket URL onto the REST projects endpoint.
func deepgramRESTURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "wss://api.deepgram.com/v1/listen"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse deepgram.url: %w", err)
	}
	switch u.Scheme {
	case "wss", "https":
		u.Scheme = "https"
	case "ws", "http":
		u.Scheme = "http"
	default:
		return "", fmt.Errorf("deepgram.url has unsupported scheme %q", u.Scheme)
	}
	u.Path = deepgramProjects
	u.RawQuery = ""
	return u.String(), nil
}

func applicationDefaultCredentials() string {
	if path := strings.TrimSpace(os.Getenv(credentialsEnvVar)); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(configDir, "gcloud", "application_default_credentials.json")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
