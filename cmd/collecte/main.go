package main

import (
	"fmt"
	"os"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands are the subcommands that select CLI mode.
var cliCommands = map[string]bool{
	"serve": true, "preview": true, "list": true, "action": true,
	"tabs": true, "tui": true, "mcp": true, "stub": true,
	"help": true, "h": true,
}

// isCLIMode reports whether args name a subcommand rather than the default MCP mode.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion reports a help or version request.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	switch args[1] {
	case "--help", "-h", "--version", "-v", "help":
		return true
	}
	return false
}

// isTerminal reports whether stdin is a character device.
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner is shown when collecte runs on a terminal without arguments.
func printBanner() {
	fmt.Println(`
             _ _           _
   ___ ___ | | | ___  ___| |_ ___
  / __/ _ \| | |/ _ \/ __| __/ _ \
 | (_| (_) | | |  __/ (__| ||  __/
  \___\___/|_|_|\___|\___|\__\___|

  Data collection dashboards and file preview

  Usage: collecte <command> [options]
         collecte --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need neither config nor logger.
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(config.DefaultConfig(), logging.Nop())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := config.LoadWithRepo(config.DefaultDir(), wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	app := newCLIApp(cfg, logger)

	if isCLIMode(os.Args) {
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// An MCP client always pipes stdin, so a terminal here means a typo.
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'collecte --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := app.Run([]string{os.Args[0], "mcp"}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
