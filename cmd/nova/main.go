// Command nova runs the consciousness daemon and ships the thin socket
// clients that talk to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cathedral/nova/internal/config"
	"github.com/cathedral/nova/internal/daemon"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the daemon in the foreground

SUBCOMMANDS:
  %s chat                     Interactive chat with the daemon
  %s status                   Print the daemon's status document
  %s call <command> [json]    Send a raw command over the socket
                              Example: nova call conversation '{"text":"hello"}'
  %s say <text>               Ask the daemon to speak
  %s doctor [-json]           Run diagnostic checks

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  NOVA_HOME               Data directory (default: ~/.nova)
  ANTHROPIC_API_KEY       Enables the direct correspondent (query command)
`)
}

func main() {
	quiet := flag.Bool("quiet", false, "log to file only, keep stdout clean")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			return
		case "chat":
			os.Exit(runChatCommand())
		case "status":
			os.Exit(runStatusCommand())
		case "call":
			os.Exit(runCallCommand(args[1:]))
		case "say":
			os.Exit(runSayCommand(args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup("E_CONFIG_LOAD", err)
	}

	if err := daemon.Run(ctx, cfg, Version, *quiet); err != nil {
		fatalStartup("E_DAEMON_START", err)
	}
}

func fatalStartup(code string, err error) {
	slog.Error("fatal startup error", "code", code, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", code, err)
	os.Exit(1)
}
