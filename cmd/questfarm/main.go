// Package main is the entry point for the quest farm daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"questfarm-go/application/orchestrator"
	"questfarm-go/application/run"
	"questfarm-go/application/scheduler"
	"questfarm-go/application/session"
	"questfarm-go/core/event"
	"questfarm-go/core/eventbus"
	"questfarm-go/domain/account"
	"questfarm-go/domain/ledger"
	"questfarm-go/domain/quest"
	"questfarm-go/infrastructure/browser"
	"questfarm-go/infrastructure/config"
	"questfarm-go/infrastructure/controlapi"
	"questfarm-go/infrastructure/logging"
	"questfarm-go/infrastructure/notify"
)

// gatewayAdapter narrows the session gateway to the scheduler's view.
type gatewayAdapter struct {
	gw *session.Gateway
}

func (a gatewayAdapter) Acquire(ctx context.Context, acct string, questComplete bool) (scheduler.Session, error) {
	sess, err := a.gw.Acquire(ctx, acct, questComplete)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func main() {
	// Initialize logging (dev: console only, prod: rotating file)
	logger, closeLog, err := logging.Setup(nil)
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	logger.Info("Starting quest farm")

	cfg, err := config.Load("settings.txt")
	if err != nil {
		logger.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	answers, err := quest.LoadAnswers(cfg.AnswersFile)
	if err != nil {
		logger.Error("Failed to load answers", "error", err)
		os.Exit(1)
	}

	var catalog *quest.Catalog
	if cfg.CatalogFile != "" {
		catalog, err = quest.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			logger.Error("Failed to load quest catalog", "error", err)
			os.Exit(1)
		}
	}

	completion, err := ledger.LoadCompletionLedger(cfg.CompletionFile)
	if err != nil {
		logger.Error("Failed to load completion ledger", "error", err)
		os.Exit(1)
	}
	logger.Info("Completion ledger loaded", "accounts", completion.Len())

	balances := ledger.NewBalanceLedger()
	registration := ledger.NewRegistrationLog(cfg.RegistrationFile)
	accounts := account.NewStore(cfg.AccountsFile)
	records := account.NewRecordSet()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(100)
	defer bus.Close()

	if cfg.WatchAccount != "" {
		watched := cfg.WatchAccount
		bus.SubscribeAccount(watched, func(e event.Event) {
			logger.Info("Watched account event", "account", watched, "event", e.EventName())
		})
		logger.Info("Watching account", "account", watched)
	}

	notifier, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		logger.Error("Failed to initialize telegram notifier", "error", err)
		os.Exit(1)
	}
	if notifier.Enabled() {
		notifier.Attach(bus)
		defer notifier.Detach(bus)
		logger.Info("Telegram summaries enabled", "chat", cfg.TelegramChatID)
	}

	gateway := session.NewGateway(session.Config{
		API: controlapi.New(cfg.ControlAPIBase),
		NewDriver: func() browser.Driver {
			return browser.NewChromeDPDriver()
		},
		ClosePollInterval: cfg.ClosePollInterval,
		CloseWaitTimeout:  cfg.CloseWaitTimeout,
		Logger:            logger,
	})

	runner := run.NewRunner(run.Config{
		GroupURL:     cfg.GroupURL,
		BotLink:      cfg.BotLink,
		RefLink:      cfg.RefLink,
		Answers:      answers,
		AnswersPath:  cfg.AnswersFile,
		Catalog:      catalog,
		Balances:     balances,
		Completion:   completion,
		Registration: registration,
		Logger:       logger,
	})

	sched, err := scheduler.New(scheduler.Config{
		Gateway:    gatewayAdapter{gw: gateway},
		Runner:     runner,
		Records:    records,
		Completion: completion,
		Jobs:       scheduler.NewJobStore(cfg.ScheduleFile),
		Bus:        bus,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to initialize scheduler", "error", err)
		os.Exit(1)
	}
	go sched.Loop(ctx)

	orch, err := orchestrator.New(orchestrator.Config{
		Scheduler:        sched,
		Accounts:         accounts,
		Records:          records,
		Balances:         balances,
		Bus:              bus,
		BalancesCSV:      cfg.BalancesCSV,
		CooldownMinHours: cfg.CooldownMinHours,
		CooldownMaxHours: cfg.CooldownMaxHours,
		MaxFailures:      cfg.MaxConsecutiveFailures,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	if err := orch.RunForever(ctx); err != nil && err != context.Canceled {
		logger.Error("Orchestrator stopped", "error", err)
	}

	logger.Info("Application shutdown complete")
}
