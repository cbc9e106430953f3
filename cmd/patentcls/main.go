package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"yashubustudio/patentcls/config"
	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/internal/app"
	"yashubustudio/patentcls/labels"
)

const runLogFile = "run.log"

type cliOptions struct {
	command    string
	configPath string
	runID      string
	decodeMode string
	threshold  float64
	topK       int
	oneHotMode string
}

var commands = []string{"prepare", "predict", "evaluate", "history", "metadata"}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "patentcls: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		stop()
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		logger.Fatal().Err(err).Str("command", opts.command).Msg("patentcls failed")
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <%s> [options]\n", filepath.Base(os.Args[0]), strings.Join(commands, "|"))
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions
	if len(args) == 0 {
		usage(os.Stderr)
		return opts, errors.New("missing command")
	}
	opts.command = args[0]

	fs := flag.NewFlagSet(opts.command, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config.json or config.yaml (default: ./config.json)")
	switch opts.command {
	case "prepare", "metadata":
	case "predict":
		fs.StringVar(&opts.runID, "run", "", "Restore this 10-digit run instead of the configured run")
		fs.StringVar(&opts.decodeMode, "mode", "", "Decode mode override: threshold or topk")
		fs.Float64Var(&opts.threshold, "threshold", 0, "Threshold override for threshold decoding")
		fs.IntVar(&opts.topK, "topk", 0, "K override for top-k decoding")
	case "evaluate":
		fs.StringVar(&opts.runID, "run", "", "Run whose predictions.json is evaluated (default: configured run id)")
		fs.StringVar(&opts.oneHotMode, "one-hot-mode", "", "Tier encoding override: offset or absolute")
	case "history":
		fs.StringVar(&opts.runID, "run", "", "Only list evaluations of this run")
	default:
		usage(os.Stderr)
		return opts, fmt.Errorf("unknown command %q", opts.command)
	}
	fs.Usage = func() {
		usage(fs.Output())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return opts, err
	}
	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.runID = strings.TrimSpace(opts.runID)
	return opts, nil
}

func applyOverrides(cfg *config.Config, opts cliOptions) {
	if opts.decodeMode != "" {
		cfg.Decode.Mode = labels.Mode(opts.decodeMode)
	}
	if opts.threshold > 0 {
		cfg.Decode.Threshold = opts.threshold
	}
	if opts.topK > 0 {
		cfg.Decode.TopK = opts.topK
	}
	if opts.oneHotMode != "" {
		cfg.Eval.OneHotMode = hierarchy.OneHotMode(opts.oneHotMode)
	}
	if opts.runID != "" && opts.command == "predict" {
		cfg.Run.Mode = config.RunRestore
		cfg.Run.ID = opts.runID
	}
}

func run(ctx context.Context, opts cliOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var (
		runInfo app.Run
		extra   []io.Writer
	)
	if opts.command == "predict" {
		runInfo, err = app.ResolveRun(cfg.Run, time.Now())
		if err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(runInfo.Dir, runLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		defer f.Close()
		extra = append(extra, f)
	}
	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr, extra...)
	if err != nil {
		return err
	}

	svc, err := app.NewService(cfg, app.Options{Logger: &logger, Out: os.Stdout})
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer svc.Close()

	switch opts.command {
	case "prepare":
		files, err := svc.Prepare(ctx)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("%s: %d samples -> %s\n", f.Split, f.Samples, f.Path)
		}
	case "predict":
		logger.Info().Str("run", runInfo.ID).Bool("fresh", runInfo.Fresh).Str("checkpoints", runInfo.CheckpointDir).Msg("using run")
		res, err := svc.Predict(ctx, runInfo)
		if err != nil {
			return err
		}
		fmt.Printf("%d predictions saved to %s\n", res.Records, res.Path)
	case "evaluate":
		runID := opts.runID
		if runID == "" {
			runID = cfg.Run.ID
		}
		if runID == "" {
			return errors.New("evaluate needs -run or run.id in the config")
		}
		if _, err := svc.Evaluate(ctx, runID); err != nil {
			return err
		}
	case "history":
		if _, err := svc.History(ctx, opts.runID); err != nil {
			return err
		}
	case "metadata":
		res, err := svc.Metadata(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d tokens written to %s\n", res.Tokens, res.Path)
		if res.Dim > 0 {
			fmt.Printf("word2vec covers %d tokens with %d-dimensional vectors\n", res.Covered, res.Dim)
		}
	}
	return nil
}
