package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskcal/internal/config"
	appLog "taskcal/internal/log"
	"taskcal/internal/notify"
	"taskcal/internal/store"
	"taskcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	tasksFile  string
	logLevel   string
	once       bool
}

func main() {
	appLog.Info("taskcal starting", "version", "0.1.0")

	flags := parseFlags()
	appLog.SetLevel(appLog.ParseLevel(flags.logLevel))

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override config file values if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.tasksFile != "" {
		conf.TasksFile = flags.tasksFile
	}

	loc := resolveLocationOrLocal(conf.Timezone)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"tasks_file", conf.TasksFile,
		"check_schedule", conf.CheckSchedule,
		"notify", conf.Notify,
		"once", flags.once,
	)

	sender := senderFor(conf.Notify)
	runner := notify.NewRunner(conf.TasksFile, conf.CheckSchedule, loc, sender)

	if flags.once {
		// Single deadline sweep, then exit.
		runner.Sweep()
		appLog.Info("taskcal exiting")
		return
	}

	st, err := store.Open(conf.TasksFile)
	if err != nil {
		// Corrupt data is a decision for the user: fix or remove the file.
		appLog.Error("failed to open task store; fix or remove the file and restart",
			err, "tasks_file", conf.TasksFile)
		os.Exit(1)
	}
	appLog.Info("task store loaded", "tasks_file", conf.TasksFile, "task_count", st.Count())

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := runner.Start(ctx); err != nil {
		appLog.Error("failed to start deadline sweep", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(conf, st, loc).Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}

	appLog.Info("taskcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.tasksFile, "tasks", "", "Path to tasks file (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.once, "once", false, "Run one deadline sweep and exit")

	flag.Parse()

	return cfg
}

func senderFor(backend string) notify.Sender {
	switch backend {
	case config.NotifyDesktop:
		return notify.DesktopSender{}
	case config.NotifyOff:
		return discardSender{}
	default:
		return notify.LogSender{}
	}
}

// discardSender drops reminders entirely (notify: "off").
type discardSender struct{}

func (discardSender) Notify(string, string) error { return nil }

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
