package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chatrelay/internal/cli/defaults"
	"chatrelay/internal/config"

	"github.com/spf13/cobra"
)

// InitOptions configures config init.
type InitOptions struct {
	Force bool
	Dir   string // defaults to ~/.chatrelay
}

// InitResult lists the files written by RunInit.
type InitResult struct {
	ConfigPath  string
	ContextPath string
}

func newConfigInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and context file",
		Long: `Write config.yaml with every default value and a starter context.txt
to the configuration directory (default ~/.chatrelay).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := RunInit(opts)
			if err != nil {
				return err
			}
			printInitResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "configuration directory")

	return cmd
}

// RunInit writes the default configuration. An existing config.yaml is
// kept unless Force is set; an existing context.txt is always kept.
func RunInit(opts *InitOptions) (*InitResult, error) {
	configDir := opts.Dir
	if configDir == "" {
		var err error
		configDir, err = config.DefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("get config dir: %w", err)
		}
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return nil, fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", configDir, err)
	}

	contextPath := filepath.Join(configDir, "context.txt")
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		if err := os.WriteFile(contextPath, defaults.ContextFile(), 0644); err != nil {
			return nil, fmt.Errorf("write context: %w", err)
		}
	}

	cfg, err := config.Defaults()
	if err != nil {
		return nil, err
	}
	cfg.Chat.ContextFile = contextPath
	cfg.Audit.Path = filepath.Join(configDir, "audit.db")

	if err := config.SaveTo(cfg, configPath); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}

	return &InitResult{ConfigPath: configPath, ContextPath: contextPath}, nil
}

func printInitResult(out io.Writer, res *InitResult) {
	fmt.Fprintf(out, "Initialized chatrelay at %s\n", filepath.Dir(res.ConfigPath))
	fmt.Fprintf(out, "  Config:  %s\n", res.ConfigPath)
	fmt.Fprintf(out, "  Context: %s\n", res.ContextPath)
}
