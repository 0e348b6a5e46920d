// Package doctor runs offline diagnostics for the daemon installation.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cathedral/nova/internal/config"
	"github.com/cathedral/nova/internal/persistence"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check failed outright.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkHome,
		checkDatabase,
		checkBridge,
		checkSocket,
		checkVoice,
		checkAPIKey,
	}
	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}
	return d
}

func checkHome(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Home", Status: "FAIL", Message: "configuration not loaded"}
	}
	probe := filepath.Join(cfg.HomeDir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return CheckResult{Name: "Home", Status: "FAIL", Message: fmt.Sprintf("home not writable: %v", err)}
	}
	os.Remove(probe)
	return CheckResult{Name: "Home", Status: "PASS", Message: fmt.Sprintf("writable at %s", cfg.HomeDir)}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "SKIP", Message: "config missing"}
	}
	store, err := persistence.Open(cfg.DBPath, nil)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("open failed: %v", err)}
	}
	defer store.Close()

	sum, err := store.MemorySummary(ctx)
	if err != nil {
		return CheckResult{Name: "Database", Status: "FAIL", Message: fmt.Sprintf("query failed: %v", err)}
	}
	return CheckResult{
		Name:    "Database",
		Status:  "PASS",
		Message: fmt.Sprintf("schema valid, %d conversations", sum.TotalConversations),
	}
}

func checkBridge(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Bridge", Status: "SKIP", Message: "config missing"}
	}
	for _, sub := range []string{"outbox", "inbox", "archive"} {
		dir := filepath.Join(cfg.BridgeDir, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CheckResult{Name: "Bridge", Status: "FAIL", Message: fmt.Sprintf("%s unavailable: %v", dir, err)}
		}
		probe := filepath.Join(dir, ".doctor-probe")
		if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
			return CheckResult{Name: "Bridge", Status: "FAIL", Message: fmt.Sprintf("%s not writable: %v", dir, err)}
		}
		os.Remove(probe)
	}
	return CheckResult{Name: "Bridge", Status: "PASS", Message: fmt.Sprintf("directories writable under %s", cfg.BridgeDir)}
}

func checkSocket(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Socket", Status: "SKIP", Message: "config missing"}
	}
	conn, err := net.DialTimeout("unix", cfg.SocketPath, 2*time.Second)
	if err != nil {
		return CheckResult{
			Name:    "Socket",
			Status:  "WARN",
			Message: "daemon not reachable",
			Detail:  fmt.Sprintf("dial %s: %v", cfg.SocketPath, err),
		}
	}
	conn.Close()
	return CheckResult{Name: "Socket", Status: "PASS", Message: fmt.Sprintf("daemon listening at %s", cfg.SocketPath)}
}

func checkVoice(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.Voice.Enabled {
		return CheckResult{Name: "Voice", Status: "SKIP", Message: "voice disabled"}
	}
	candidates := []string{"espeak", "espeak-ng", "say", "festival"}
	if cfg.Voice.Command != "" {
		candidates = []string{cfg.Voice.Command}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			return CheckResult{Name: "Voice", Status: "PASS", Message: fmt.Sprintf("synthesizer %q found", c)}
		}
	}
	return CheckResult{Name: "Voice", Status: "WARN", Message: "no speech synthesizer on PATH"}
}

func checkAPIKey(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "API Key", Status: "SKIP", Message: "config missing"}
	}
	if os.Getenv(cfg.Anthropic.APIKeyEnv) != "" {
		return CheckResult{Name: "API Key", Status: "PASS", Message: fmt.Sprintf("%s is set", cfg.Anthropic.APIKeyEnv)}
	}
	return CheckResult{
		Name:    "API Key",
		Status:  "WARN",
		Message: fmt.Sprintf("%s not set", cfg.Anthropic.APIKeyEnv),
		Detail:  "direct correspondent queries will report unavailable; the file bridge still works",
	}
}
