package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyArgv0Alias(os.Args)
	root := newRootCmd()
	root.SetArgs(args[1:])

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	switch {
	case err == nil:
	case code == exitFailed:
		pslog.Ctx(ctx).Warn("noctrace investigation did not complete", "err", err, "exit_code", code)
	default:
		pslog.Ctx(ctx).Error("noctrace command failed", "err", err, "exit_code", code)
	}
	return code
}

const (
	exitOK        = 0
	exitUsage     = 1
	exitFailed    = 2
	exitCancelled = 3
)

// exitCode separates a run that reached the orchestrator but ended badly from
// a command that could not run at all.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInvestigationCancelled):
		return exitCancelled
	case errors.Is(err, errInvestigationFailed):
		return exitFailed
	default:
		return exitUsage
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "noctrace",
		Short:         "Incident investigation client for the NOC agent orchestrator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newInvestigateCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newMockOrchestratorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// argv0Aliases maps installed binary names to the subcommand they run.
var argv0Aliases = map[string][]string{
	"noctrace-mock":     {"mock-orchestrator"},
	"mock-orchestrator": {"mock-orchestrator"},
	"noctrace-serve":    {"serve"},
	"noc-investigate":   {"investigate"},
}

func argv0Alias(base string) []string {
	base = strings.TrimSuffix(base, ".exe")
	return argv0Aliases[base]
}

func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if len(alias) == 0 || (len(args) > 1 && args[1] == alias[0]) {
		return args
	}
	out := make([]string, 0, len(args)+len(alias))
	out = append(out, args[0])
	out = append(out, alias...)
	return append(out, args[1:]...)
}
