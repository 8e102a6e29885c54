// Batchflow CLI — инструмент командной строки для проверки спецификаций
// workflows и наблюдения за их выполнением через HTTP API.
//
// Использование:
//
//	batchflow [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	validate  Проверка спецификации (локально)
//	plan      Разрешённые пути и параметры jobs (локально)
//	submit    Отправка workflow на выполнение
//	list      Workflows по статусу
//	status    Статус workflow и прогресс jobs
//	jobs      Jobs выполняющегося workflow
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Batchflow/internal/cli"
	"github.com/shaiso/Batchflow/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "batchflow",
		Short:         "Batchflow CLI — batch workflow engine tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// API_URL или batchflow.yaml задают адрес по умолчанию
	defaultURL := "http://localhost:8083"
	if cfg, err := config.Load(); err == nil {
		defaultURL = cfg.APIURL
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewValidateCmd(outputFn),
		cli.NewPlanCmd(outputFn),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewListCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewJobsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
