/*
Package main implements goAuthScythe, a one-shot analyzer for sshd auth logs.
It counts failed password attempts per source address and per targeted
username, flags addresses reaching a threshold, prints a summary and can
write the full tables as CSV and as Prometheus textfile metrics.
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/authlog"
	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/config"
	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/metrics"
	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/report"
)

const (
	APP        = "goAuthScythe"
	VERSION    = "0.1.0"
	REPOSITORY = "https://github.com/lao-tseu-is-alive/go-auth-scythe"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("app", APP, "run_id", uuid.NewString())
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case errors.Is(err, config.ErrUsage):
			fmt.Fprintf(stderr, "❌ %v\n", err)
			return exitUsage
		default:
			fmt.Fprintf(stderr, "❌ FATAL: %v\n", err)
			return exitError
		}
	}
	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "%s ver:%s, Repo: %s\n", APP, VERSION, REPOSITORY)
		return exitOK
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := newLogger(stderr, level)
	logger.Debug("configuration loaded",
		"log_path", cfg.LogPath,
		"threshold", cfg.Threshold,
		"top", cfg.Top,
		"csv", cfg.CSVPath,
		"metrics", cfg.MetricsPath,
		"config", cfg.ConfigPath)

	matcher, err := authlog.NewMatcher(cfg.Pattern)
	if err != nil {
		fmt.Fprintf(stderr, "❌ FATAL: %v\n", err)
		return exitError
	}
	if cfg.Pattern != "" {
		logger.Info("using pattern override", "pattern", matcher.String())
	}

	rep, err := authlog.NewAnalyzer(matcher, cfg.Threshold, logger).AnalyzeFile(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(stderr, "❌ FATAL: Cannot analyze log: %v\n", err)
		return exitError
	}
	for _, ip := range rep.SuspiciousIPs {
		logger.Warn("suspicious address", "address", ip, "failed_logins", rep.IPCounts[ip], "threshold", rep.Threshold)
	}

	if err := report.PrintSummary(stdout, rep, cfg.Top); err != nil {
		fmt.Fprintf(stderr, "❌ ERROR: writing summary: %v\n", err)
		return exitError
	}

	status := exitOK
	if cfg.CSVPath != "" {
		if err := report.WriteCSV(cfg.CSVPath, rep); err != nil {
			fmt.Fprintf(stderr, "❌ ERROR: %v\n", err)
			status = exitError
		} else if err := report.PrintCSVConfirmation(stdout, cfg.CSVPath); err != nil {
			fmt.Fprintf(stderr, "❌ ERROR: writing summary: %v\n", err)
			status = exitError
		}
	}

	if cfg.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.MetricsPath, rep); err != nil {
			fmt.Fprintf(stderr, "❌ ERROR: %v\n", err)
			status = exitError
		} else {
			logger.Info("metrics written", "path", cfg.MetricsPath)
		}
	}
	return status
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
