// Package main provides the Genre Roulette CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"genreroulette/internal/auth"
	"genreroulette/internal/core"
	httpserver "genreroulette/internal/http"
	"genreroulette/internal/spotify"
	"genreroulette/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "genreroulette",
	Short: "Genre Roulette - timed random-genre Spotify playback",
	Long: `Genre Roulette cycles your Spotify playback across randomly chosen genres
at a fixed round duration, pausing between rounds until you advance.`,
	RunE: runGenreRoulette,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-scopes", "", "comma-separated OAuth scopes")
	rootCmd.PersistentFlags().Int("round-minutes", core.DefaultRoundMinutes, "round duration in minutes")
	rootCmd.PersistentFlags().String("genres-file", "./genres.yaml", "genre catalog file")
	rootCmd.PersistentFlags().String("local-player-name", "Genre Roulette Player", "name of the local player device")
	rootCmd.PersistentFlags().Int("server-port", core.DefaultServerPort, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("GENREROULETTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	if redirect := viper.GetString("spotify-redirect-url"); redirect != "" {
		cfg.Spotify.RedirectURL = redirect
	}
	if scopes := viper.GetString("spotify-scopes"); scopes != "" {
		cfg.Spotify.Scopes = strings.Split(scopes, ",")
	}

	// Non-positive or unparseable round durations are ignored and the
	// default is retained.
	if minutes := viper.GetInt("round-minutes"); minutes > 0 {
		cfg.Roulette.RoundMinutes = minutes
	}
	if path := viper.GetString("genres-file"); path != "" {
		cfg.Roulette.GenresPath = path
	}
	cfg.Roulette.LocalPlayerName = viper.GetString("local-player-name")

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runGenreRoulette(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Genre Roulette",
		zap.Int("round_minutes", config.Roulette.RoundMinutes),
		zap.String("genres_file", config.Roulette.GenresPath))

	catalog, err := core.LoadCatalog(config.Roulette.GenresPath)
	if err != nil {
		return fmt.Errorf("failed to load genre catalog: %w", err)
	}
	logger.Info("Genre catalog loaded", zap.Int("genres", catalog.Len()))

	credentials := store.NewCredentialStore()
	session := auth.NewSession(&config.Spotify, credentials, logger.Named("auth"))

	server := httpserver.NewServer(&config.Server, logger.Named("http"))

	gateway := spotify.NewGateway(session, server, logger.Named("spotify"))

	history := store.NewRoundHistory(config.Roulette.HistorySize)

	controller := core.NewRouletteController(
		&config.Roulette,
		catalog,
		gateway,
		server,
		history,
		logger.Named("controller"),
	)
	defer controller.Stop()

	server.Attach(controller, session)

	// A cached credential from a previous session is picked up and probed
	// here; absence just means the login affordance is shown.
	if _, err := session.Acquire(ctx, nil); err != nil {
		logger.Info("No cached credential, login required")
	} else if session.Validate(ctx) {
		logger.Info("Cached credential validated")
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	logger.Info("Genre Roulette started",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Genre Roulette stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Genre Roulette stopped gracefully")
	return nil
}
