package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lansoai/agentbridge/pkg/scheduler"
	"github.com/lansoai/agentbridge/pkg/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer a.close(context.Background())

	store, err := scheduler.OpenStore(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := scheduler.RunnerFunc(func(ctx context.Context, conversationID, prompt string) (string, error) {
		result, err := a.orch.Run(ctx, conversationID, prompt)
		if err != nil {
			return "", err
		}
		return result.Answer, nil
	})
	sched := scheduler.NewScheduler(store, runner, a.log.Scope("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	srv := server.New(a.orch, sched, a.cfg, a.log.Scope("http"))
	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		a.log.Infof("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Errorf("shutdown: %v", err)
		}
		cancel()
	}()

	a.log.Infof("listening on :%s", a.cfg.Port)
	fmt.Printf("agentbridge listening on :%s (log: %s)\n", a.cfg.Port, a.log.LogPath())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
