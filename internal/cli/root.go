package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vorpal/internal/app"
	"vorpal/internal/shared"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	envPrefix       = "VORPAL"
	defaultEndpoint = "[::1]:15323"
)

var newAppService = app.NewService

type RootConfig struct {
	ConfigFile string
	LogLevel   string
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().
			Str("kind", string(shared.KindOf(err))).
			Str("stage", string(shared.StageOf(err))).
			Err(err).
			Msg(errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "vorpal",
		Short:         "Content-addressed package builds on a remote executor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newHashCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newKeysCommand())
	cmd.AddCommand(newPruneCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("vorpal")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/vorpal")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".vorpal")
	viper.SetDefault("endpoint", defaultEndpoint)
	viper.SetDefault("package_root", filepath.Join(base, "package"))
	viper.SetDefault("keys.private", filepath.Join(base, "key", "private.pem"))
	viper.SetDefault("keys.public", filepath.Join(base, "key", "public.pem"))
	viper.SetDefault("keys.age_identity", "")
	viper.SetDefault("fingerprint.algorithm", "sha256")
	viper.SetDefault("jobs", 1)
	viper.SetDefault("prune.keep_last", 1)
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// exitCodeForError maps a failure to a process exit code so scripts can
// tell a bad declaration from an unreachable executor.
func exitCodeForError(err error) int {
	switch shared.KindOf(err) {
	case shared.KindInvalidGraph, shared.KindInvalidPackage:
		return 2
	case shared.KindEmptySource:
		return 3
	case shared.KindSigningKeyUnavailable:
		return 4
	case shared.KindTransport:
		return 5
	case shared.KindProtocolViolation:
		return 6
	case shared.KindIO, shared.KindStoreConsistency:
		return 7
	}
	if errbuilder.CodeOf(err) == errbuilder.CodeInvalidArgument {
		return 2
	}
	return 1
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
