package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("PANIC in main", "panic", r, "stack", string(debug.Stack()))
			closeLogger()
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "", "path to config.json (default $FLOWWATCH_CONFIG or ./config.json)")
	flag.Parse()

	loadEnv()
	if *configPath != "" {
		configFile = *configPath
	} else if env := os.Getenv("FLOWWATCH_CONFIG"); env != "" {
		configFile = env
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Config error", "err", err)
		os.Exit(1)
	}

	setupLogger(cfg.DataDir)
	defer closeLogger()
	slog.Info("FlowWatch starting", "config", configFile, "data_dir", cfg.DataDir)

	app := InitApp(cfg)
	app.StartEngine()

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var api *apiServer
	if cfg.HTTP.Enabled {
		api = newAPIServer(app)
		if err := api.Start(cfg.HTTP.Listen); err != nil {
			app.LogError("HTTP API disabled", "err", err)
			api = nil
		}
	}

	var bot *tgbotapi.BotAPI
	if cfg.TelegramEnabled() {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			app.LogError("Telegram bot disabled", "err", err)
			bot = nil
		} else {
			slog.Info("Bot connected", "username", bot.Self.UserName)
		}
	}

	var botAPI BotAPI
	if bot != nil {
		botAPI = bot
	}
	sched, err := newScheduler(app, botAPI)
	if err != nil {
		app.LogError("Scheduler disabled", "err", err)
	} else {
		sched.Start()
		slog.Info("Scheduler started", "next_run", sched.Next().Format(time.RFC3339))
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	goSafe("reload", func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-hup:
				if err := app.ReloadSettings(); err != nil {
					app.LogError("Config reload failed", "err", err)
				}
			}
		}
	})

	if bot != nil {
		goSafe("telegram", func() { runBot(runCtx, app, bot) })
	}

	<-runCtx.Done()
	slog.Info("Shutdown signal received")

	if bot != nil {
		bot.StopReceivingUpdates()
	}
	if sched != nil {
		sched.Stop()
	}
	if api != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			app.LogError("HTTP shutdown", "err", err)
		}
		cancelShutdown()
	}
	app.StopEngine()
	slog.Info("FlowWatch stopped")
}

// runBot consumes updates until ctx ends. Each update is handled on its own
// goroutine so a slow reply does not stall polling.
func runBot(ctx context.Context, app *AppContext, bot *tgbotapi.BotAPI) {
	reg := SetupCommandRegistry()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			goSafe("update", func() { handleUpdate(app, reg, bot, update) })
		}
	}
}
