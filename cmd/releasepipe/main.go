package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spachava753/releasepipe/internal/config"
	"github.com/spachava753/releasepipe/internal/executor"
	"github.com/spachava753/releasepipe/internal/models"
)

// errRunFailed signals a completed run whose result is failure; the summary
// has already been printed.
var errRunFailed = errors.New("run failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "releasepipe",
		Short:         "Build, package and publish tagged releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `releasepipe builds a source revision for every platform in the matrix,
tests and packages each build, and for version tags creates a draft release
with one archive per platform attached.`,
	}
	addPersistentFlags(root)
	root.AddCommand(runCmd())
	root.AddCommand(planCmd())
	return root
}

func main() {
	cobra.OnInitialize(initConfig)

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RELEASEPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().StringP("config", "c", "pipeline.yaml", "pipeline config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))
}

var triggerKeys = map[string][]string{
	"event":  {"RELEASEPIPE_EVENT", "GITHUB_EVENT_NAME"},
	"ref":    {"RELEASEPIPE_REF", "GITHUB_REF"},
	"commit": {"RELEASEPIPE_COMMIT", "GITHUB_SHA"},
}

// addTriggerFlags registers the trigger flags on cmd. They are read from the
// executing command; unset flags fall back to RELEASEPIPE_* and then to the
// GITHUB_* variables set by Actions runners.
func addTriggerFlags(cmd *cobra.Command) {
	cmd.Flags().String("event", "", "trigger event (push, pull_request)")
	cmd.Flags().String("ref", "", "git reference, e.g. refs/tags/v1.2.0")
	cmd.Flags().String("commit", "", "commit SHA to check out")
	for key, envs := range triggerKeys {
		_ = viper.BindEnv(append([]string{key}, envs...)...)
	}
}

func triggerValue(cmd *cobra.Command, key string) string {
	if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString(key)
}

func triggerFromFlags(cmd *cobra.Command) (models.Trigger, error) {
	event := triggerValue(cmd, "event")
	if event == "" {
		event = string(models.EventPush)
	}
	t := models.Trigger{
		Event: models.Event(event),
		Revision: models.Revision{
			Ref:    triggerValue(cmd, "ref"),
			Commit: triggerValue(cmd, "commit"),
		},
	}
	if !t.Event.Valid() {
		return t, fmt.Errorf("unsupported event %q", event)
	}
	if t.Revision.Ref == "" {
		return t, fmt.Errorf("--ref is required")
	}
	return t, nil
}

func loadConfig() (models.PipelineConfig, error) {
	cfg, err := config.LoadPipelineConfig(viper.GetString("config"))
	if err != nil {
		return cfg, fmt.Errorf("loading pipeline config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(cfgLevel string) {
	level := viper.GetString("log-level")
	if level == "" {
		level = cfgLevel
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := triggerFromFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer func() {
				signal.Stop(sigChan)
				cancel()
			}()
			go func() {
				select {
				case sig := <-sigChan:
					slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			result, err := executor.RunWithConfig(ctx, cfg, trigger)
			if err != nil {
				return err
			}

			if viper.GetBool("json") {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printRunSummary(cmd.OutOrStdout(), result)
			}

			if result.Failed {
				return errRunFailed
			}
			return nil
		},
	}
	addTriggerFlags(cmd)
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which stages a trigger would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := triggerFromFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			plan := executor.NewCoordinator(cfg, nil, nil).Plan(trigger)
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), plan)
			}
			printPlan(cmd.OutOrStdout(), cfg.Product, plan)
			return nil
		},
	}
	addTriggerFlags(cmd)
	return cmd
}
