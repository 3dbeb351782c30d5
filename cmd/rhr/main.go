package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"

	"github.com/jrsteele09/rhr-session/internal/config"
	"github.com/jrsteele09/rhr-session/internal/logging"
	"github.com/rs/zerolog/log"
)

// command is a CLI subcommand. args excludes the command name.
type command struct {
	summary string
	run     func(ctx context.Context, cfg config.Config, args []string, out io.Writer) error
}

var commands = map[string]command{
	"serve":    {summary: "run the local identity service", run: serveCmd},
	"login":    {summary: "log in and store the session", run: loginCmd},
	"register": {summary: "create an account (and tenant) and log in", run: registerCmd},
	"logout":   {summary: "end the stored session", run: logoutCmd},
	"status":   {summary: "show the stored session", run: statusCmd},
	"tenant":   {summary: "list memberships or switch the active tenant", run: tenantCmd},
	"get":      {summary: "GET an API path with the session's credentials", run: getCmd},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	cfg := config.Load()
	logging.InitLogger(cfg.GetLogLevel(), cfg.GetLogFormat())
	return cmd.run(ctx, cfg, args[1:], out)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: rhr <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
}
