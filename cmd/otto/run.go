package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/marcomuellner/otto/internal/api"
	"github.com/marcomuellner/otto/internal/config"
	"github.com/marcomuellner/otto/internal/consts"
	"github.com/marcomuellner/otto/internal/executor"
	"github.com/marcomuellner/otto/internal/heartbeat"
	"github.com/marcomuellner/otto/internal/outbound"
	"github.com/marcomuellner/otto/internal/pkg/logs"
	"github.com/marcomuellner/otto/internal/scheduler"
	"github.com/marcomuellner/otto/internal/sessiongateway"
	"github.com/marcomuellner/otto/internal/store"
	"github.com/marcomuellner/otto/internal/transport/telegram"
)

const drainIntervalMs = 15_000

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the scheduler, outbound drain loop, and control-plane API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the runtime config file",
				Value:   "config.yaml",
			},
		},
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := getConfigPath(cmd.String("config"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err := r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	env, err := config.LoadRuntimeEnv()
	if err != nil {
		return fmt.Errorf("loading runtime env error: %w", err)
	}

	logs.CtxInfo(ctx, "booting otto, using config file: %s...", cfgPath)

	ottoHome := consts.HomeDir()
	st := store.NewStore(consts.DataDir())
	if err := st.Load(); err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	now := time.Now().UnixMilli()
	if err := heartbeat.EnsureHeartbeatTask(st.Jobs, now); err != nil {
		return fmt.Errorf("ensure heartbeat task: %w", err)
	}

	var defaultChatID *int64
	if cfg.Telegram.DefaultChatID != 0 {
		chatID := cfg.Telegram.DefaultChatID
		defaultChatID = &chatID
	}

	anthropicClient, err := sessiongateway.NewAnthropicClient(cfg.Anthropic.APIKeyEnv, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	if err != nil {
		return fmt.Errorf("create anthropic client: %w", err)
	}
	transcripts, err := sessiongateway.NewJSONLTranscriptStore(consts.TranscriptsDir())
	if err != nil {
		return fmt.Errorf("create transcript store: %w", err)
	}
	sessions := sessiongateway.NewManager(anthropicClient, transcripts)

	exec := &executor.Executor{
		Jobs:          st.Jobs,
		RunSessions:   st.RunSessions,
		Outbound:      st.Outbound,
		Profile:       st.Profile,
		Bindings:      st.Bindings,
		Gateway:       sessions,
		DefaultChatID: defaultChatID,
	}

	sched := scheduler.New(st.Jobs, scheduler.Config{
		Enabled:     env.SchedulerEnabled,
		TickMs:      env.SchedulerTickMS,
		BatchSize:   env.SchedulerBatchSize,
		LockLeaseMs: env.SchedulerLockLeaseMS,
	}, exec)

	botToken := os.Getenv(cfg.Telegram.BotTokenEnv)
	sender, err := telegram.NewSender(botToken)
	if err != nil {
		return fmt.Errorf("create telegram sender: %w", err)
	}

	drainer := &outbound.Drainer{
		Outbound:  st.Outbound,
		Jobs:      st.Jobs,
		Profile:   st.Profile,
		Transport: sender,
		Retry: outbound.RetryPolicy{
			MaxAttempts: 5,
			BaseDelayMs: 2_000,
			MaxDelayMs:  5 * 60_000,
		},
	}

	apiServer, err := api.NewServer(env.InternalAPIHost, env.InternalAPIPort, &api.Deps{
		Jobs:          st.Jobs,
		Outbound:      st.Outbound,
		Profile:       st.Profile,
		Bindings:      st.Bindings,
		RunSessions:   st.RunSessions,
		Audit:         st.Audit,
		Sessions:      sessions,
		DefaultChatID: defaultChatID,
		OttoHome:      ottoHome,
		OutboxDir:     consts.TelegramOutboxDir(),
		MaxFileBytes:  20 * 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("create control-plane api server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched.Start(runCtx)
	if err := apiServer.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start control-plane api server: %w", err)
	}
	stopDrain := r.startDrainLoop(runCtx, drainer)

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-runCtx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	stopDrain()
	sched.Stop()
	if err := apiServer.Stop(context.Background()); err != nil {
		logs.CtxError(ctx, "stop control-plane api server error: %v", err)
	}

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

// startDrainLoop runs the outbound drainer on a fixed interval until the
// returned stop function is called.
func (r *RunRunner) startDrainLoop(ctx context.Context, drainer *outbound.Drainer) func() {
	ticker := time.NewTicker(drainIntervalMs * time.Millisecond)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				drainer.DrainDueMessages(ctx, time.Now().UnixMilli())
			}
		}
	}()

	return func() {
		ticker.Stop()
		<-done
	}
}

func (r *RunRunner) initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

func getConfigPath(customPath string) string {
	if customPath != "" && customPath != "config.yaml" {
		return customPath
	}

	defaultPaths := []string{
		"config.yaml",
		filepath.Join(consts.HomeDir(), consts.ConfigFileName),
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultPaths[0]
}
