// Package cli implements the cryptonet command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/config"
	"github.com/prividentity/cryptonet-go/internal/logging"
	"github.com/prividentity/cryptonet-go/internal/service"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	driver     string
	workDir    string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
	svc    *service.Service
	out    io.Writer
}

// NewRootCommand builds the command tree. Results are written to out as JSON.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "cryptonet",
		Short:         "Private biometric enrollment, matching and document scanning",
		Version:       cryptonet.WrapperVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML configuration file")
	pf.StringVar(&a.driver, "driver", "", "library driver: native or shim (overrides config)")
	pf.StringVar(&a.workDir, "workdir", "", "library working directory (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		a.versionCommand(),
		a.modelsCommand(),
		a.imageCommand("enroll", "Enroll the face in an image", (*service.Service).Enroll),
		a.imageCommand("predict", "Identify the face in an image", (*service.Service).Predict),
		a.imageCommand("scan-front", "Scan the front of an identity document", (*service.Service).ScanFront),
		a.imageCommand("scan-back", "Scan the back of an identity document", (*service.Service).ScanBack),
		a.compareCommand(),
		a.encryptCommand(),
		a.enrollDirCommand(),
		a.serveCommand(),
	)
	a.closeAfter(root)
	return root
}

// closeAfter makes every command release the service when it returns. Cobra
// skips post-run hooks after a failed RunE, so the hook would leak sessions.
func (a *app) closeAfter(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		a.closeAfter(sub)
	}
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			return errors.Join(err, a.teardown())
		}
	}
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Library.Driver = a.driver
	}
	if a.workDir != "" {
		cfg.Library.WorkingDir = a.workDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.New(logging.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		File:         cfg.Log.File,
		RotationTime: cfg.Log.RotationTime,
		MaxAge:       cfg.Log.MaxAge,
	})
	return err
}

func (a *app) teardown() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
		a.svc = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// service opens the service on first use.
func (a *app) service(ctx context.Context) (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := service.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome writes out even when the call failed so the library's failure
// payload reaches the user.
func (a *app) printOutcome(out *service.Outcome, err error) error {
	if out != nil {
		if perr := a.print(out); perr != nil {
			return perr
		}
	}
	return err
}

// argValue reads "@path" arguments from the file and returns others as is.
func argValue(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(arg), nil
}
