package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/noctrace"
	"pkt.systems/noctrace/internal/appconfig"
	"pkt.systems/noctrace/internal/eventbus"
	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

var (
	errInvestigationFailed    = errors.New("investigation failed")
	errInvestigationCancelled = errors.New("investigation cancelled")
)

type investigateOptions struct {
	cfgPath  string
	format   string
	scenario string
	baseURL  string
	timeout  time.Duration
	save     bool
	quiet    bool
}

func newInvestigateCmd() *cobra.Command {
	var opts investigateOptions
	cmd := &cobra.Command{
		Use:   "investigate [alert text|-]",
		Short: "Run one investigation and print the transcript",
		Long: "Run one investigation against the orchestrator. The alert is taken from the\n" +
			"arguments, or read from stdin when it is piped or the argument is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvestigate(cmd.Context(), opts, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.cfgPath, "config", "c", "", "config file path (default ~/.noctrace/config.yaml)")
	cmd.Flags().StringVarP(&opts.format, "format", "o", formatText, "output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "orchestrator scenario (overrides session.scenario)")
	cmd.Flags().StringVar(&opts.baseURL, "orchestrator", "", "orchestrator base URL (overrides orchestrator.base_url)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up and cancel the run after this long (0 waits indefinitely)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the transcript to history when the run completes")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress to stderr")
	return cmd
}

func runInvestigate(ctx context.Context, opts investigateOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	format, err := normalizeFormat(opts.format)
	if err != nil {
		return err
	}
	alert, err := resolveAlert(args, stdin)
	if err != nil {
		return err
	}
	cfg, err := appconfig.Load(opts.cfgPath)
	if err != nil {
		return err
	}
	if opts.baseURL != "" {
		cfg.Orchestrator.BaseURL = opts.baseURL
	}
	if opts.scenario != "" {
		cfg.Session.Scenario = opts.scenario
	}
	client, err := orchestrator.New(cfg.ClientSettings())
	if err != nil {
		return err
	}
	logger := pslog.Ctx(ctx)
	srv, err := noctrace.New(noctrace.ServerConfig{Session: cfg.SessionSettings()}, noctrace.ServerDeps{
		Orchestrator: client,
		History:      client,
		Logger:       logger,
	}, noctrace.WithEventBus())
	if err != nil {
		return err
	}
	engine := srv.Engine()

	updates, unsubscribe := srv.Bus().Subscribe(eventbus.AllSessions)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		progress := newProgressPrinter(stderr, opts.quiet)
		for update := range updates {
			progress.Print(update.Session)
		}
	}()

	runCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	if _, err := engine.Start(runCtx, alert); err != nil {
		unsubscribe()
		<-progressDone
		return err
	}
	if err := engine.Wait(runCtx); err != nil {
		logger.Warn("investigation interrupted", "err", err)
		if cancelErr := engine.Cancel(context.Background()); cancelErr != nil && !errors.Is(cancelErr, schema.ErrNoRun) {
			logger.Warn("investigation cancel failed", "err", cancelErr)
		}
		_ = engine.Wait(context.Background())
	}
	unsubscribe()
	<-progressDone

	snapshot := engine.Snapshot()
	if opts.save && snapshot.State == schema.RunCompleted {
		id, err := engine.SaveHistory(ctx)
		if err != nil {
			logger.Warn("history save failed", "err", err)
		} else if !opts.quiet {
			_, _ = fmt.Fprintf(stderr, "saved as %s\n", id)
		}
	}

	if format == formatText {
		err = renderSnapshotText(stdout, snapshot)
	} else {
		err = writeStructured(stdout, format, snapshot)
	}
	if err != nil {
		return err
	}
	switch snapshot.State {
	case schema.RunErrored:
		if snapshot.Error != nil {
			return fmt.Errorf("%w: %s: %s", errInvestigationFailed, snapshot.Error.Summary, snapshot.Error.Detail)
		}
		return errInvestigationFailed
	case schema.RunCancelled:
		return errInvestigationCancelled
	}
	return nil
}

func resolveAlert(args []string, stdin io.Reader) (string, error) {
	arg := strings.TrimSpace(strings.Join(args, " "))
	if arg == "-" {
		return readStdinAlert(stdin)
	}
	if arg != "" {
		return arg, nil
	}
	if stdin == nil || isTerminalReader(stdin) {
		return "", errors.New("no alert provided")
	}
	return readStdinAlert(stdin)
}

func readStdinAlert(stdin io.Reader) (string, error) {
	if stdin == nil {
		return "", errors.New("no alert provided via stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read alert from stdin: %w", err)
	}
	alert := strings.TrimSpace(string(data))
	if alert == "" {
		return "", errors.New("no alert provided via stdin")
	}
	return alert, nil
}

func isTerminalReader(stdin io.Reader) bool {
	file, ok := stdin.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
