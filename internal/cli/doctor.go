package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/config"
	"chatrelay/internal/provider/ollama"
)

const doctorTimeout = 5 * time.Second

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the relay setup",
		Long: `Run diagnostic checks on your chatrelay setup.

This command checks:
- Configuration file validity
- The system context file
- Ollama reachability and version
- That the configured model is installed
- The audit database, when enabled
- Whether a local server is answering`,
		RunE: runDoctor,
	}

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

// modelBackend is the part of the Ollama client doctor needs.
type modelBackend interface {
	CheckVersion(ctx context.Context) (string, error)
	Models(ctx context.Context) ([]string, error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cliCtx, err := requireCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "chatrelay doctor")
	fmt.Fprintln(out, "================")
	fmt.Fprintln(out)

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*doctorTimeout)
	defer cancel()

	results := []checkResult{
		checkSystemInfo(),
		checkConfigFile(cliCtx.ConfigPath),
		checkContextFile(cfg.Chat.ContextFile),
	}
	results = append(results, checkBackend(ctx, cliCtx.Backend(), cfg.Ollama.Endpoint, cfg.Ollama.Model)...)
	results = append(results, checkAudit(cliCtx))
	results = append(results, checkServerConnectivity(cfg.Server))

	hasErrors, hasWarnings := printResults(out, results)

	fmt.Fprintln(out)
	switch {
	case hasErrors:
		fmt.Fprintln(out, "❌ Some checks failed. Please address the issues above.")
	case hasWarnings:
		fmt.Fprintln(out, "⚠️  Some warnings detected. The relay should work but may have issues.")
	default:
		fmt.Fprintln(out, "✅ All checks passed! chatrelay is ready to use.")
	}

	return nil
}

func printResults(out io.Writer, results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		icon := "✓"
		switch r.status {
		case "warning":
			icon = "⚠️"
			hasWarnings = true
		case "error":
			icon = "✗"
			hasErrors = true
		}
		fmt.Fprintf(out, "%s %s: %s\n", icon, r.name, r.message)
	}
	return hasErrors, hasWarnings
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:   "System",
		status: "ok",
		message: fmt.Sprintf("Go %s on %s/%s",
			runtime.Version(),
			runtime.GOOS,
			runtime.GOARCH,
		),
	}
}

func checkConfigFile(configPath string) checkResult {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return checkResult{
			name:    "Config File",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s (using defaults, run: chatrelay config init)", configPath),
		}
	}
	return checkResult{
		name:    "Config File",
		status:  "ok",
		message: fmt.Sprintf("Loaded: %s", configPath),
	}
}

func checkContextFile(path string) checkResult {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return checkResult{
			name:    "Context File",
			status:  "warning",
			message: fmt.Sprintf("Cannot read %s, replies will have no system context", path),
		}
	case info.IsDir():
		return checkResult{
			name:    "Context File",
			status:  "error",
			message: fmt.Sprintf("%s is a directory", path),
		}
	case info.Size() == 0:
		return checkResult{
			name:    "Context File",
			status:  "warning",
			message: fmt.Sprintf("%s is empty", path),
		}
	}
	return checkResult{
		name:    "Context File",
		status:  "ok",
		message: fmt.Sprintf("%s (%d bytes)", path, info.Size()),
	}
}

// checkBackend reports on the Ollama server version and the configured
// model. The model check is skipped when the server is unreachable.
func checkBackend(ctx context.Context, backend modelBackend, endpoint, model string) []checkResult {
	vctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	version, err := backend.CheckVersion(vctx)
	switch {
	case errors.Is(err, ollama.ErrUnsupportedVersion):
		return []checkResult{{
			name:    "Ollama",
			status:  "error",
			message: fmt.Sprintf("Version %s at %s, need >= %s", version, endpoint, ollama.MinVersion),
		}}
	case err != nil && version == "":
		return []checkResult{{
			name:    "Ollama",
			status:  "error",
			message: fmt.Sprintf("Not reachable at %s: %v", endpoint, err),
		}}
	case err != nil:
		return []checkResult{{
			name:    "Ollama",
			status:  "warning",
			message: fmt.Sprintf("Unrecognized version %q at %s", version, endpoint),
		}}
	}

	results := []checkResult{{
		name:    "Ollama",
		status:  "ok",
		message: fmt.Sprintf("Version %s at %s", version, endpoint),
	}}

	mctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	models, err := backend.Models(mctx)
	if err != nil {
		return append(results, checkResult{
			name:    "Model",
			status:  "error",
			message: fmt.Sprintf("Cannot list models: %v", err),
		})
	}
	if !hasModel(models, model) {
		return append(results, checkResult{
			name:    "Model",
			status:  "error",
			message: fmt.Sprintf("%s is not installed. Pull it with: ollama pull %s", model, model),
		})
	}
	return append(results, checkResult{
		name:    "Model",
		status:  "ok",
		message: fmt.Sprintf("%s installed", model),
	})
}

// hasModel matches names the way Ollama resolves them, where a name
// without a tag means ":latest".
func hasModel(models []string, want string) bool {
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if !strings.Contains(m, ":") {
			m += ":latest"
		}
		if m == want {
			return true
		}
	}
	return false
}

func checkAudit(cliCtx *CLIContext) checkResult {
	if !cliCtx.Config.Audit.Enabled {
		return checkResult{
			name:    "Audit Log",
			status:  "ok",
			message: "Disabled",
		}
	}

	db, err := cliCtx.GetAuditDB()
	if err != nil {
		return checkResult{
			name:    "Audit Log",
			status:  "error",
			message: fmt.Sprintf("Cannot open %s: %v", cliCtx.Config.Audit.Path, err),
		}
	}

	version, err := db.SchemaVersion()
	if err != nil {
		return checkResult{
			name:    "Audit Log",
			status:  "error",
			message: fmt.Sprintf("Cannot read schema: %v", err),
		}
	}
	return checkResult{
		name:    "Audit Log",
		status:  "ok",
		message: fmt.Sprintf("%s (schema v%d)", db.Path(), version),
	}
}

func checkServerConnectivity(srv config.ServerConfig) checkResult {
	client := &http.Client{Timeout: doctorTimeout}

	host := srv.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/health", host, srv.Port)

	resp, err := client.Get(url)
	if err != nil {
		return checkResult{
			name:    "Server",
			status:  "warning",
			message: "Not running. Start with: chatrelay serve",
		}
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return checkResult{
			name:    "Server",
			status:  "warning",
			message: fmt.Sprintf("Port %d answered with status %d", srv.Port, resp.StatusCode),
		}
	}

	status := "ok"
	if resp.StatusCode != http.StatusOK {
		status = "warning"
	}
	return checkResult{
		name:    "Server",
		status:  status,
		message: fmt.Sprintf("Running on port %d (status: %s)", srv.Port, health.Status),
	}
}
