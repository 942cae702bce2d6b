package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/immxrtalbeast/meetsync/internal/app"
	"github.com/immxrtalbeast/meetsync/internal/config"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
	"github.com/immxrtalbeast/meetsync/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "meetsync",
	Short:        "Real-time meeting state server",
	Long:         `HTTP + WebSocket API keeping every client's view of a meeting in sync. Commands: serve.`,
	RunE:         runServe,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad(configPath)
	log := setupLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to build application", sl.Err(err))
		return err
	}

	log.Info("starting application", slog.String("env", cfg.Env))
	if err := application.Run(ctx); err != nil {
		log.Error("application stopped", sl.Err(err))
		return err
	}
	log.Info("application stopped")
	return nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
