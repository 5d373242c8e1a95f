package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/usestring/harslim/internal/compare"
	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/internal/filtering"
	"github.com/usestring/harslim/internal/logging"
	"github.com/usestring/harslim/internal/minimize"
	"github.com/usestring/harslim/internal/replay"
	"github.com/usestring/harslim/internal/report"
	"github.com/usestring/harslim/internal/runner"
	"github.com/usestring/harslim/pkg/har"
)

const appName = "harslim"

var flags struct {
	configFile string
	input      string
	output     string
	reportPath string
	logLevel   string
	dryRun     bool
	noAnnotate bool
}

var app = &cli.App{
	Name:   appName,
	Usage:  "reduce captured HAR requests to their load-bearing headers and body fields",
	Action: run,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the YAML policy file",
			Destination: &flags.configFile,
			EnvVars:     []string{"HARSLIM_CONFIG"},
		},
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Input HAR file (overrides config)",
			Destination: &flags.input,
			EnvVars:     []string{"HARSLIM_INPUT_HAR"},
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Rewritten HAR output path (overrides config)",
			Destination: &flags.output,
			EnvVars:     []string{"HARSLIM_OUTPUT_HAR"},
		},
		&cli.StringFlag{
			Name:        "report",
			Usage:       "JSON report output path (overrides config)",
			Destination: &flags.reportPath,
			EnvVars:     []string{"HARSLIM_REPORT"},
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level: debug, info, warn, error (overrides config)",
			Destination: &flags.logLevel,
			EnvVars:     []string{"HARSLIM_LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "List the selected records without probing the endpoint",
			Destination: &flags.dryRun,
			EnvVars:     []string{"HARSLIM_DRY_RUN"},
		},
		&cli.BoolFlag{
			Name:        "no-annotate",
			Usage:       "Skip the _minimized metadata block on rewritten entries",
			Destination: &flags.noAnnotate,
			EnvVars:     []string{"HARSLIM_NO_ANNOTATE"},
		},
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(cc *cli.Context) error {
	configPath := flags.configFile
	if configPath == "" {
		if _, err := os.Stat("harslim.yaml"); err == nil {
			configPath = "harslim.yaml"
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()

	capture, err := har.LoadFile(cfg.InputHAR)
	if err != nil {
		return err
	}

	selector, err := filtering.New(cfg.Filter, cfg.Scope)
	if err != nil {
		return err
	}

	if flags.dryRun {
		for _, rec := range selector.Select(capture.Records()) {
			fmt.Printf("%4d  %-7s %s\n", rec.Index, rec.Method, rec.URL)
		}
		return nil
	}

	client, err := replay.New(cfg.Client)
	if err != nil {
		return err
	}
	cmp, err := compare.New(cfg.Compare)
	if err != nil {
		return err
	}
	minimizer, err := minimize.New(cfg, client, cmp)
	if err != nil {
		return err
	}

	results, err := runner.New(cfg, selector, minimizer).Run(cc.Context, capture)
	if err != nil {
		return err
	}

	doc := report.NewDocument(results)
	if err := doc.WriteFile(cfg.Report); err != nil {
		return err
	}
	slog.Info("report written", slog.String("path", cfg.Report), slog.String("run_id", doc.RunID))

	if err := report.Apply(capture, results, !flags.noAnnotate); err != nil {
		return err
	}
	if err := capture.WriteFile(cfg.OutputHAR); err != nil {
		return err
	}
	slog.Info("minimized HAR written", slog.String("path", cfg.OutputHAR))
	return nil
}

// applyFlags layers explicit flag values over file and environment
// configuration.
func applyFlags(cfg *config.Config) {
	if flags.input != "" {
		cfg.InputHAR = flags.input
	}
	if flags.output != "" {
		cfg.OutputHAR = flags.output
	}
	if flags.reportPath != "" {
		cfg.Report = flags.reportPath
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
}
