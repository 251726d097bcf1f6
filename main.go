package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pthm-cable/weathering/builder"
	"github.com/pthm-cable/weathering/config"
	"github.com/pthm-cable/weathering/errcode"
	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/telemetry"
)

func main() {
	var fragments []builder.Fragment

	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	threads := flag.Int("threads", 0, "Worker goroutines (0 = use config)")
	verbose := flag.Bool("v", false, "Log at debug level")
	logFormat := flag.String("log-format", "", "Log format, json or text (empty = use config)")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path")
	var basePaths, logFiles []string
	flag.Func("base", "Additional directory to resolve spec inputs against (repeatable)", func(s string) error {
		basePaths = append(basePaths, s)
		return nil
	})
	flag.Func("log", "Additional file receiving the log (repeatable)", func(s string) error {
		logFiles = append(logFiles, s)
		return nil
	})
	flag.Func("spec", "Inline YAML spec fragment, merged in command line order (repeatable)", func(s string) error {
		fragments = append(fragments, builder.Fragment{Inline: true, Content: s})
		return nil
	})
	flag.Func("spec-file", "Spec fragment file, merged in command line order (repeatable)", func(s string) error {
		fragments = append(fragments, builder.Fragment{Content: s})
		return nil
	})
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [spec.yml ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	for _, arg := range flag.Args() {
		fragments = append(fragments, builder.Fragment{Content: arg})
	}

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *threads > 0 {
		cfg.Derived.Threads = *threads
	}
	if *verbose {
		cfg.Derived.LogLevel = slog.LevelDebug
	}
	if *logFormat != "" {
		cfg.Runtime.LogFormat = *logFormat
	}
	if *writeConfig != "" {
		if err := cfg.WriteYAML(*writeConfig); err != nil {
			slog.Error("failed to write config", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, fragments, basePaths, logFiles); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		n := 1
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			fmt.Fprintf(os.Stderr, "  cause %d: %v\n", n, cause)
			n++
		}
		slog.Error("simulation failed", "code", errcode.Of(err), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, fragments []builder.Fragment, basePaths, logFiles []string) error {
	if len(fragments) == 0 {
		return errors.New("no simulation spec given")
	}
	creationTime := time.Now()

	outs := []io.Writer{os.Stderr}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	openLog := func(path string) error {
		f, err := files.Create(path)
		if err != nil {
			return fmt.Errorf("opening log: %w", err)
		}
		outs = append(outs, f)
		closers = append(closers, f)
		return nil
	}
	for _, path := range logFiles {
		if err := openLog(path); err != nil {
			return err
		}
	}
	slog.SetDefault(telemetry.NewLogger(cfg.Derived.LogLevel, cfg.Runtime.LogFormat, outs...))

	b, err := builder.New(nil, creationTime)
	if err != nil {
		return err
	}
	for _, dir := range basePaths {
		if err := b.AddBasePath(dir); err != nil {
			return err
		}
	}
	if err := b.AppendFragments(fragments); err != nil {
		return err
	}

	// The simulation spec may name a log target of its own.
	if s := b.Spec(); s.Log != nil {
		path := files.Pattern(*s.Log).Expand(files.Vars{Datetime: files.Timestamp(creationTime)})
		if err := openLog(path); err != nil {
			return err
		}
		slog.SetDefault(telemetry.NewLogger(cfg.Derived.LogLevel, cfg.Runtime.LogFormat, outs...))
	}

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Runtime.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	r, err := b.Build(ctx, builder.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(r.String(), "\n") {
		slog.Info(line)
	}

	runErr := r.Run(ctx)
	return errors.Join(runErr, r.Close())
}
