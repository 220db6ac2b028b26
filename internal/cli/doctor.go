// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for rigchat.
//
// Command: doctor
// Short:   Run system health checks
// Aliases: diag
//
// Examples:
//   rigchat doctor              Run all health checks
//   rigchat doctor --json       Results as JSON
//
// Health Checks Performed:
//   1. Config Valid       - Config file parses and validates
//   2. Data Dir Writable  - State, logs and history can be written
//   3. Storage            - The configured backend opens
//   4. Ollama Running     - The server responds
//   5. Primary Model      - The primary model is downloaded
//   6. Fallback Model     - The fallback model is downloaded
//   7. GPU Detected       - An accelerated backend is present
//   8. Disk Space         - Room is left for model files
//
// Exit Codes:
//   0   No check failed (warnings allowed)
//   1   One or more checks failed

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/detect"
	"github.com/jeranaias/rigchat/internal/modelcache"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

// checkTimeout bounds each network check.
const checkTimeout = 5 * time.Second

// minFreeBytes is the free space below which the disk check warns. The
// default primary model is about 1.4GB.
const minFreeBytes = 2 << 30

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "Pass"
	case CheckWarn:
		return "Warn"
	case CheckFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Symbol returns the styled marker for the check status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return successStyle.Render("[OK]")
	case CheckWarn:
		return warningStyle.Render("[!!]")
	case CheckFail:
		return errorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// MarshalJSON encodes the status by name.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"` // Suggested fix command or instruction
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + dimStyle.Render("     -> "+c.Fix)
	}
	return result
}

// =============================================================================
// COMMAND
// =============================================================================

func newDoctorCommand(global *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Run system health checks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runDoctor(cmd.Context(), global)
			return reportChecks(cmd.OutOrStdout(), checks, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

// runDoctor runs every check. A broken config is reported and the other
// checks run against the defaults.
func runDoctor(ctx context.Context, global *globalOptions) []HealthCheck {
	cfg, err := global.loadConfig()
	configCheck := HealthCheck{Name: "Config Valid", Status: CheckPass, Message: "Configuration valid"}
	if err != nil {
		path, _ := global.resolveConfigPath()
		configCheck = HealthCheck{
			Name:    "Config Valid",
			Status:  CheckFail,
			Message: "Configuration invalid: " + err.Error(),
			Fix:     "Edit " + path + " or run: rigchat config set KEY VALUE",
		}
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: cfg.Engine.OllamaURL})
	gate := detect.NewSystemGate(nil)

	checks := make([]HealthCheck, 8)
	checks[0] = configCheck

	var g errgroup.Group
	g.Go(func() error {
		checks[1] = checkDataDir(cfg.DataDir())
		checks[2] = checkStorage(cfg)
		checks[7] = checkDiskSpace(cfg.DataDir(), modelcache.FreeSpace)
		return nil
	})
	g.Go(func() error {
		checks[3], checks[4], checks[5] = checkOllama(ctx, client, cfg.Engine.PrimaryModel, cfg.Engine.FallbackModel)
		return nil
	})
	g.Go(func() error {
		checks[6] = checkGPU(gate.Info(ctx), cfg.Engine.RequireAccelerator)
		return nil
	})
	g.Wait()
	return checks
}

// reportChecks prints the results and fails when any check failed.
func reportChecks(w io.Writer, checks []HealthCheck, asJSON bool) error {
	passed, warned, failed := 0, 0, 0
	for _, check := range checks {
		switch check.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	if asJSON {
		data, err := json.MarshalIndent(map[string]any{
			"checks": checks,
			"passed": passed,
			"warned": warned,
			"failed": failed,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	} else {
		fmt.Fprintln(w, titleStyle.Render("rigchat doctor"))
		fmt.Fprintln(w, separatorStyle.Render(strings.Repeat("=", 41)))
		for i := range checks {
			fmt.Fprintln(w, checks[i].Render())
		}
		fmt.Fprintln(w, separatorStyle.Render(strings.Repeat("-", 41)))

		parts := []string{fmt.Sprintf("%d passed", passed)}
		if warned > 0 {
			parts = append(parts, warningStyle.Render(fmt.Sprintf("%d warning", warned)))
		}
		if failed > 0 {
			parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failed", failed)))
		}
		fmt.Fprintln(w, dimStyle.Render(strings.Join(parts, ", ")))
	}

	if failed > 0 {
		return fmt.Errorf("%d health check(s) failed", failed)
	}
	return nil
}

// =============================================================================
// CHECKS
// =============================================================================

func checkDataDir(dir string) HealthCheck {
	check := HealthCheck{Name: "Data Dir Writable"}
	if err := os.MkdirAll(dir, 0700); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Cannot create %s: %v", dir, err)
		check.Fix = "Set storage.data_dir or RIGCHAT_DATA_DIR to a writable directory"
		return check
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s is not writable: %v", dir, err)
		check.Fix = "Check the permissions of " + dir
		return check
	}
	f.Close()
	os.Remove(f.Name())

	check.Status = CheckPass
	check.Message = "Data dir writable: " + dir
	return check
}

func checkStorage(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "Storage"}
	kv, err := storage.Open(cfg.Storage.Backend, cfg.DataDir())
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s storage unavailable: %v", cfg.Storage.Backend, err)
		check.Fix = "Run: rigchat config set storage.backend file"
		return check
	}
	if c, ok := kv.(io.Closer); ok {
		c.Close()
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Storage backend %q opens", cfg.Storage.Backend)
	return check
}

// checkOllama reports the server and the two configured models.
func checkOllama(ctx context.Context, client *ollama.Client, primary, fallback string) (server, primaryCheck, fallbackCheck HealthCheck) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	server = HealthCheck{Name: "Ollama Running"}
	primaryCheck = HealthCheck{Name: "Primary Model"}
	fallbackCheck = HealthCheck{Name: "Fallback Model"}

	version, err := client.Version(ctx)
	if err != nil {
		server.Status = CheckFail
		switch {
		case ollama.IsTimeout(err):
			server.Message = fmt.Sprintf("Ollama at %s did not respond within %s", client.BaseURL(), checkTimeout)
			server.Fix = "Check that the server is not stuck, then run: ollama serve"
		case ollama.IsNotRunning(err):
			server.Message = fmt.Sprintf("Ollama not reachable at %s", client.BaseURL())
			server.Fix = "Run: ollama serve"
		default:
			server.Message = fmt.Sprintf("Ollama at %s: %v", client.BaseURL(), err)
			server.Fix = "Check engine.ollama_url"
		}

		skipped := "Skipped: Ollama not reachable"
		primaryCheck.Status, primaryCheck.Message = CheckWarn, skipped
		fallbackCheck.Status, fallbackCheck.Message = CheckWarn, skipped
		return server, primaryCheck, fallbackCheck
	}
	server.Status = CheckPass
	server.Message = fmt.Sprintf("Ollama running (v%s)", strings.TrimPrefix(version, "v"))

	models, err := client.ListModels(ctx)
	if err != nil {
		msg := "Could not list models: " + err.Error()
		primaryCheck.Status, primaryCheck.Message = CheckWarn, msg
		fallbackCheck.Status, fallbackCheck.Message = CheckWarn, msg
		return server, primaryCheck, fallbackCheck
	}

	primaryCheck = modelCheck("Primary Model", primary, models)
	fallbackCheck = modelCheck("Fallback Model", fallback, models)
	return server, primaryCheck, fallbackCheck
}

// modelCheck warns for a missing model: it is pulled on first load.
func modelCheck(name, modelID string, models []ollama.ModelInfo) HealthCheck {
	check := HealthCheck{Name: name}
	if modelID == "" {
		check.Status = CheckWarn
		check.Message = name + " not configured"
		return check
	}
	if hasModel(models, modelID) {
		check.Status = CheckPass
		check.Message = fmt.Sprintf("%s available: %s", name, modelID)
		return check
	}
	check.Status = CheckWarn
	check.Message = fmt.Sprintf("%s %s not downloaded (pulled on first load)", name, modelID)
	check.Fix = "Run: ollama pull " + modelID
	return check
}

// hasModel matches names with and without the implicit ":latest" tag.
func hasModel(models []ollama.ModelInfo, modelID string) bool {
	want := modelID
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if m.Name == modelID || m.Name == want {
			return true
		}
	}
	return false
}

// checkDiskSpace warns when little room is left; it never fails since the
// models live in the Ollama store, which may be on another volume.
func checkDiskSpace(dir string, freeSpace func(string) (uint64, error)) HealthCheck {
	check := HealthCheck{Name: "Disk Space"}
	free, err := freeSpace(dir)
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Could not read free space: " + err.Error()
		return check
	}
	gb := float64(free) / (1 << 30)
	if free < minFreeBytes {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Low disk space: %.1fGB free in %s", gb, dir)
		check.Fix = "Run: rigchat cache clear"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Disk space: %.1fGB free", gb)
	return check
}

func checkGPU(info *detect.GpuInfo, requireAccelerator bool) HealthCheck {
	check := HealthCheck{Name: "GPU Detected"}
	if info.Accelerated() {
		check.Status = CheckPass
		check.Message = "GPU: " + info.String()
		return check
	}
	if requireAccelerator {
		check.Status = CheckFail
		check.Message = "No accelerated backend available; model loading is disabled"
		check.Fix = "Run: rigchat config set engine.require_accelerator false"
		return check
	}
	check.Status = CheckWarn
	check.Message = "No GPU detected; models run on the CPU"
	return check
}
