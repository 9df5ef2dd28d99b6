package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lansoai/agentbridge/pkg/auth"
	"github.com/lansoai/agentbridge/pkg/browser"
	"github.com/lansoai/agentbridge/pkg/browserbase"
	"github.com/lansoai/agentbridge/pkg/config"
	"github.com/lansoai/agentbridge/pkg/detector"
	"github.com/lansoai/agentbridge/pkg/logging"
	"github.com/lansoai/agentbridge/pkg/orchestrator"
	"github.com/lansoai/agentbridge/pkg/registry"
)

// app owns the wired component graph shared by the serve and ask commands.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	driver   *browser.Driver
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logging.NewLogger("agentbridge")

	driver := browser.NewDriver()
	if err := driver.Start(); err != nil {
		log.Close()
		return nil, fmt.Errorf("starting browser driver: %w", err)
	}

	provider := browserbase.NewClient(cfg.BrowserbaseAPIKey, cfg.BrowserbaseProjectID)
	authManager := auth.NewManager(cfg, log.Scope("auth"))
	reg := registry.New(provider, driver, authManager, log.Scope("registry"))

	orch := orchestrator.New(reg, buildStrategy(cfg), cfg, log.Scope("orchestrator"))

	return &app{cfg: cfg, log: log, driver: driver, registry: reg, orch: orch}, nil
}

// buildStrategy selects the completion detection strategy from configuration.
func buildStrategy(cfg *config.Config) detector.Strategy {
	if cfg.Strategy == config.StrategyVisual {
		var judge detector.Judge
		if cfg.JudgeAPIKey != "" {
			judge = detector.NewCompletionJudge(cfg.JudgeAPIKey, cfg.JudgeModel)
		}
		return detector.NewVisual(detector.VisualConfig{
			PollInterval:    cfg.PollInterval,
			Timeout:         cfg.PollInterval * time.Duration(cfg.MaxPolls),
			AnswerSelector:  cfg.Selectors.AnswerContainer,
			SpinnerSelector: cfg.Selectors.Spinner,
		}, judge)
	}

	return detector.New(detector.Config{
		MessagesSelector: cfg.Selectors.Messages,
		PollInterval:     cfg.PollInterval,
		MaxPolls:         cfg.MaxPolls,
		SettleDelay:      cfg.SettleDelay,
		Sentinels: detector.Sentinels{
			Done:  cfg.DoneToken,
			Error: cfg.ErrorToken,
		},
	})
}

// close tears down sessions and the driver in dependency order.
func (a *app) close(ctx context.Context) {
	a.registry.Close(ctx)
	if err := a.driver.Stop(); err != nil {
		a.log.Warnf("stopping browser driver: %v", err)
	}
	a.log.Close()
}
