// Ingestor CLI - инструмент командной строки для управления
// pipeline runs через HTTP API и локальной работы с файлами.
//
// Использование:
//
//	ingestor [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run   Управление runs
//	task  Сброс узлов
//	job   Очередь jobs
//	file  Локальный анализ файлов
//	db    Миграции схемы
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Ingestor/internal/cli"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var dbURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "ingestor",
		Short:         "Ingestor CLI - pipeline run orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Логи в stderr, чтобы не смешивать их с данными в stdout
	logger := telemetry.NewLogger(os.Stderr, "text", telemetry.LogLevel())
	slog.SetDefault(logger)

	defaultDB := os.Getenv("DB_URL")
	if defaultDB == "" {
		defaultDB = repo.DefaultDSN
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", defaultDB, "PostgreSQL connection string (db commands)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	dsnFn := func() string { return dbURL }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewFileCmd(outputFn),
		cli.NewDBCmd(dsnFn, outputFn, logger),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
