package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prividentity/cryptonet-go/internal/service"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

var errModelsMissing = errors.New("models are not loaded")

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print wrapper and library versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if errors.Is(err, cryptonet.ErrNotBuilt) {
				return a.print(service.Versions{
					Wrapper:  cryptonet.WrapperVersion(),
					Upstream: cryptonet.UpstreamVersion(),
				})
			}
			if err != nil {
				return err
			}
			return a.print(svc.Version())
		},
	}
}

func (a *app) modelsCommand() *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Inspect the models in the working directory",
	}

	var enroll bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether the models for a mode are loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			mode := cryptonet.ModePredict
			if enroll {
				mode = cryptonet.ModeEnroll
			}
			loaded := svc.CheckModels(mode)
			if err := a.print(map[string]any{"mode": mode.String(), "loaded": loaded}); err != nil {
				return err
			}
			if !loaded {
				return fmt.Errorf("%s: %w", mode, errModelsMissing)
			}
			return nil
		},
	}
	check.Flags().BoolVar(&enroll, "enroll", false, "check the enroll model set instead of predict")

	about := &cobra.Command{
		Use:   "about",
		Short: "Print the library's description of its models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			about, err := svc.AboutModels(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(about)
		},
	}

	models.AddCommand(check, about)
	return models
}

type imageMethod func(*service.Service, context.Context, []byte, json.RawMessage) (*service.Outcome, error)

func (a *app) imageCommand(use, short string, call imageMethod) *cobra.Command {
	var configArg string
	cmd := &cobra.Command{
		Use:   use + " <image>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := configValue(configArg)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.printOutcome(call(svc, cmd.Context(), image, cfg))
		},
	}
	cmd.Flags().StringVar(&configArg, "config-json", "", "per-call JSON configuration, or @file")
	return cmd
}

func (a *app) compareCommand() *cobra.Command {
	var configArg string
	cmd := &cobra.Command{
		Use:   "compare <embedding-one> <embedding-two>",
		Short: "Compare two encrypted embeddings (values or @file)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			one, err := argValue(args[0])
			if err != nil {
				return err
			}
			two, err := argValue(args[1])
			if err != nil {
				return err
			}
			cfg, err := configValue(configArg)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.printOutcome(svc.Compare(cmd.Context(), string(one), string(two), cfg))
		},
	}
	cmd.Flags().StringVar(&configArg, "config-json", "", "per-call JSON configuration, or @file")
	return cmd
}

func (a *app) encryptCommand() *cobra.Command {
	var configArg string
	cmd := &cobra.Command{
		Use:   "encrypt <payload>",
		Short: "Encrypt a JSON payload (value or @file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := argValue(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(payload) {
				return errors.New("payload is not valid JSON")
			}
			cfg, err := configValue(configArg)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.printOutcome(svc.Encrypt(cmd.Context(), payload, cfg))
		},
	}
	cmd.Flags().StringVar(&configArg, "config-json", "", "per-call JSON configuration, or @file")
	return cmd
}

func configValue(arg string) (json.RawMessage, error) {
	if arg == "" {
		return nil, nil
	}
	data, err := argValue(arg)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("--config-json is not valid JSON")
	}
	return data, nil
}
