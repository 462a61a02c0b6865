// Command crmctl runs one-off CRM operations: migrations, seeding, crontab
// inspection and task enqueueing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	flag "github.com/spf13/pflag"

	"crmapi/internal/app"
	"crmapi/internal/config"
	"crmapi/internal/logger"
	"crmapi/internal/seed"
	"crmapi/internal/task"
)

const usage = `usage: crmctl <command> [flags]

commands:
  migrate                         apply pending database migrations
  seed                            load sample customers, products and orders
  crontab show                    list scheduled jobs and their next run
  crontab run <entry|task>        run one scheduled job now
  enqueue <task> [--args JSON] [--countdown 30s]
  status <task-id>                show a task record
  worker-check                    ping the broker and report queue depth
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "crmctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	logLevel := fs.String("log-level", "", "override LOG_LEVEL")
	taskArgs := fs.String("args", "", "task arguments as JSON")
	countdown := fs.Duration("countdown", 0, "delay before the task becomes runnable")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	pos := fs.Args()

	switch cmd {
	case "migrate", "seed", "crontab", "enqueue", "status", "worker-check":
	default:
		return errUsage
	}

	cfg := config.Load()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	lg := logger.SetupWithWriter(logger.Options{Level: cfg.LogLevel, Component: "crmctl"}, os.Stderr)

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "migrate":
		return a.Migrate(ctx)
	case "seed":
		return runSeed(ctx, a, lg, out)
	case "crontab":
		return runCrontab(ctx, a, pos, out)
	case "enqueue":
		if len(pos) != 1 {
			return errUsage
		}
		var payload any
		if *taskArgs != "" {
			if !json.Valid([]byte(*taskArgs)) {
				return fmt.Errorf("--args must be valid JSON")
			}
			payload = json.RawMessage(*taskArgs)
		}
		rec, err := a.Tasks.EnqueueIn(ctx, pos[0], payload, *countdown)
		if err != nil {
			return err
		}
		return writeJSON(out, rec)
	case "status":
		if len(pos) != 1 {
			return errUsage
		}
		rec, err := a.Tasks.Status(ctx, pos[0])
		if err != nil {
			return err
		}
		return writeJSON(out, rec)
	default:
		return workerCheck(ctx, a, out)
	}
}

func runSeed(ctx context.Context, a *app.App, lg *slog.Logger, out io.Writer) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	res, err := seed.New(a.Customers, a.Products, a.Orders, lg).Run(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runCrontab(ctx context.Context, a *app.App, pos []string, out io.Writer) error {
	s, err := a.Scheduler()
	if err != nil {
		return err
	}
	switch {
	case len(pos) == 1 && pos[0] == "show":
		return writeJSON(out, s.Entries())
	case len(pos) == 2 && pos[0] == "run":
		return s.RunNow(ctx, pos[1])
	}
	return errUsage
}

type queueDepth struct {
	Queue   string `json:"queue"`
	Pending int64  `json:"pending"`
}

func workerCheck(ctx context.Context, a *app.App, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.Broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	var depths []queueDepth
	for _, q := range task.Queues() {
		n, err := a.Broker.Len(ctx, q)
		if err != nil {
			return fmt.Errorf("queue %s: %w", q, err)
		}
		depths = append(depths, queueDepth{Queue: q, Pending: n})
	}
	return writeJSON(out, map[string]any{
		"broker": "ok",
		"queues": depths,
		"tasks":  a.Tasks.Registered(),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
