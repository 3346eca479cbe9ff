// Command fernet generates keys and encrypts, decrypts and rotates fernet tokens.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/oarkflow/fernet/config"
	"github.com/oarkflow/fernet/token"
)

const version = "1.0.0"

// app carries global flag values and the resources built from them.
type app struct {
	configPath string
	envFiles   []string
	keys       []string
	logLevel   string
	logFormat  string
	copy       bool

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "fernet",
		Short:        "Fernet key and token tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("FERNET_CONFIG"), "YAML config file (or set FERNET_CONFIG)")
	pf.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, ".env files to load; missing files are ignored")
	pf.StringArrayVarP(&a.keys, "key", "k", nil, "master key, newest first; repeat for a ring (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text, json")
	pf.BoolVarP(&a.copy, "copy", "c", false, "copy the printed key or token to the clipboard")

	root.AddCommand(
		keyCmd(a),
		encryptCmd(a),
		decryptCmd(a),
		rotateCmd(a),
		timestampCmd(a),
		versionCmd(),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}
	if len(a.keys) > 0 {
		cfg.Keys = a.keys
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(stderr)
	return nil
}

func (a *app) ring() (*token.MultiFernet, error) {
	ring, err := a.cfg.Ring()
	if err != nil {
		return nil, fmt.Errorf("loading keys: %w", err)
	}
	a.logger.Debug("key ring loaded", "keys", ring.Len())
	return ring, nil
}

// emit prints value on its own line and optionally copies it to the clipboard.
func (a *app) emit(cmd *cobra.Command, value string) {
	fmt.Fprintln(cmd.OutOrStdout(), value)
	if !a.copy || value == "" {
		return
	}
	if err := clipboard.WriteAll(value); err != nil {
		a.logger.Warn("unable to copy to clipboard", "error", err)
		return
	}
	a.logger.Info("copied to clipboard")
}

// readInput returns args[0] when given, else all of stdin without a trailing newline.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fernet version %s\n", version)
		},
	}
}
