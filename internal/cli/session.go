package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/app"
	"github.com/roach88/mnemosyne/internal/config"
	"github.com/roach88/mnemosyne/internal/logger"
)

// session is one command invocation against a wired App.
type session struct {
	app *app.App
	ctx context.Context
	out *OutputFormatter
}

// withApp resolves the configuration, wires the services and runs fn.
// Errors from fn are reported in the configured format and mapped to an
// exit code.
func withApp(opts *RootOptions, cmd *cobra.Command, op string, fn func(s *session) error) error {
	opID := opts.IDs.Generate()
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
		OpID:      opID,
	}

	cfg, err := config.Load(viper.New(), opts.ConfigFile, cmd.Flags())
	if err != nil {
		return report(out, op, WrapExitError(ExitCommandError, "load config", err))
	}
	a, err := app.New(cfg, opts.AppOptions...)
	if err != nil {
		return report(out, op, WrapExitError(exitCodeFor(err), "open data dir", err))
	}
	defer a.Close()

	out.VerboseLog("data dir %s (quorum %d, %s)", cfg.DataDir, a.Engine.Threshold(), a.Claims.Policy())

	ctx := logger.WithOperation(a.Context(cmd.Context()), op, opID)
	logger.FromContext(ctx).Debug("command started", zap.Strings("args", cmd.Flags().Args()))

	s := &session{app: a, ctx: ctx, out: out}
	if err := fn(s); err != nil {
		logger.FromContext(ctx).Debug("command failed", zap.Error(err))
		return report(out, op, err)
	}

	if opts.Metrics {
		if err := a.Metrics.WriteText(cmd.ErrOrStderr()); err != nil {
			return report(out, op, WrapExitError(ExitCommandError, "write metrics", err))
		}
	}
	return nil
}

// report writes err in the configured format and returns it with an exit
// code attached.
func report(out *OutputFormatter, op string, err error) error {
	if out.Format == "json" {
		if werr := out.Error(errorCode(err), err.Error(), nil); werr != nil {
			return WrapExitError(ExitCommandError, "write output", werr)
		}
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(exitCodeFor(err), op, err)
}
