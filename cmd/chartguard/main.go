// ABOUTME: Entry point for the chartguard administration CLI
// ABOUTME: Provisions users, clients and edges, and inspects access, sessions and the audit log

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/config"
)

// version is set at build time.
var version = "dev"

const banner = `
      _                _                             _
  ___| |__   __ _ _ __| |_ __ _ _   _  __ _ _ __ __| |
 / __| '_ \ / _' | '__| __/ _' | | | |/ _' | '__/ _' |
| (__| | | | (_| | |  | || (_| | |_| | (_| | | | (_| |
 \___|_| |_|\__,_|_|   \__\__, |\__,_|\__,_|_|  \__,_|
                          |___/
`

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("usage")

// getConfigPath returns the config file to load, or "" for defaults only.
// Priority: CHARTGUARD_CONFIG env var > XDG_CONFIG_HOME/chartguard/config.yaml > ~/.config/chartguard/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHARTGUARD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "chartguard", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	case "version":
		fmt.Println(version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load(ctx, getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.Logging)

	a, err := newApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.dispatch(audit.WithOrigin(ctx, "cli"), args)
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: chartguard <command> [flags]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init                                  Create the database schema")
	fmt.Fprintln(w, "  user add -username -name -password    Provision a user (-email, -roles admin,provider,...)")
	fmt.Fprintln(w, "  user list                             List users")
	fmt.Fprintln(w, "  user passwd -username -password       Reset a password and clear lockout")
	fmt.Fprintln(w, "  user roles -username -roles           Replace a user's roles")
	fmt.Fprintln(w, "  user deactivate|activate|delete -username")
	fmt.Fprintln(w, "  client add -id -name                  Register a client")
	fmt.Fprintln(w, "  assign -username -client -role        Start a client assignment")
	fmt.Fprintln(w, "  unassign -id                          End a client assignment")
	fmt.Fprintln(w, "  supervise -supervisor -supervisee     Start a supervision edge")
	fmt.Fprintln(w, "  unsupervise -id                       End a supervision edge")
	fmt.Fprintln(w, "  access -username [-client]            Show accessible clients or per-client permissions")
	fmt.Fprintln(w, "  login -username -password             Authenticate and open a session")
	fmt.Fprintln(w, "  sessions gc                           Remove idle sessions")
	fmt.Fprintln(w, "  sessions revoke -username             Destroy all sessions of a user")
	fmt.Fprintln(w, "  audit recent [-action] [-limit]       Show recent audit events")
	fmt.Fprintln(w, "  audit trail -type -id [-limit]        Show the audit trail of a resource")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  CHARTGUARD_CONFIG          Config file (.yaml or .toml)")
	fmt.Fprintln(w, "  CHARTGUARD_DATABASE_PATH   SQLite database path")
	fmt.Fprintln(w, "  CHARTGUARD_SESSION_BACKEND sqlite or redis")
	fmt.Fprintln(w)
}
