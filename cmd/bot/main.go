/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the formatting bot: an HTTP webhook receiver that
// turns GitHub issue and pull request events into queued formatting
// runs against a single repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chainguard.dev/formatbot/event"
	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/prdiff"
	"chainguard.dev/formatbot/publisher"
	"chainguard.dev/formatbot/workflow"
	"chainguard.dev/formatbot/workqueue"
	"chainguard.dev/formatbot/workspace"
	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v84/github"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type config struct {
	Port int `env:"PORT,default=8080"`

	GitHubToken   string `env:"GITHUB_TOKEN,required"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Repository the bot serves, as owner/name.
	RepoFullName string `env:"REPO_FULL_NAME,required"`

	BotUsername string `env:"BOT_USERNAME,required"`
	BotEmail    string `env:"BOT_EMAIL,required"`
	BotFullName string `env:"BOT_FULL_NAME"`

	BaseBranch   string `env:"BASE_BRANCH,default=master"`
	TriggerLabel string `env:"TRIGGER_LABEL,default=black out"`
	FormatterBin string `env:"FORMATTER_BIN,default=black"`

	Workers      int           `env:"WORKERS,default=2"`
	TaskInterval time.Duration `env:"TASK_INTERVAL,default=1m"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	owner, repo, ok := strings.Cut(cfg.RepoFullName, "/")
	if !ok || owner == "" || repo == "" {
		clog.FatalContextf(ctx, "REPO_FULL_NAME %q is not owner/name", cfg.RepoFullName)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	workspaces, err := workspace.New(ts, workspace.Identity{
		Name:  cfg.BotUsername,
		Email: cfg.BotEmail,
	})
	if err != nil {
		clog.FatalContextf(ctx, "creating workspace manager: %v", err)
	}

	pub := publisher.New(gh, owner, repo, publisher.Identity{
		Username:    cfg.BotUsername,
		Email:       cfg.BotEmail,
		DisplayName: cfg.BotFullName,
	})

	orch := workflow.New(
		workflow.Pool{Manager: workspaces},
		formatter.New(cfg.FormatterBin),
		prdiff.New(nil),
		pub,
		workflow.WithBaseRef(cfg.BaseBranch),
		workflow.WithTriggerLabel(cfg.TriggerLabel),
	)

	router := event.NewRouter(event.DefaultTriggerPhrases, cfg.TriggerLabel)
	queue := workqueue.New(workqueue.WithRateLimit(rate.Every(cfg.TaskInterval), 1))

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Post("/webhook", webhookHandler(cfg, router, queue, orch))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return queue.Run(ctx, cfg.Workers)
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		clog.InfoContextf(ctx, "Serving webhooks for %s on port %d", cfg.RepoFullName, cfg.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

// webhookHandler parses and routes incoming deliveries, enqueuing a
// formatting task for each event that matches a workflow.
func webhookHandler(cfg config, router *event.Router, queue *workqueue.Queue, orch *workflow.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := clog.FromContext(ctx)

		body, err := github.ValidatePayload(r, []byte(cfg.WebhookSecret))
		if err != nil {
			log.With("error", err).Warn("Rejecting webhook delivery")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		ev, err := event.ParsePayload(github.WebHookType(r), body)
		if err != nil {
			// Deliveries for event kinds the bot does not handle are
			// normal, not errors.
			if errors.Is(err, event.ErrUnsupportedKind) {
				w.WriteHeader(http.StatusOK)
				return
			}
			log.With("error", err).Warn("Failed to parse webhook payload")
			http.Error(w, "unparseable payload", http.StatusBadRequest)
			return
		}

		if ev.Repo.FullName() != cfg.RepoFullName {
			log.With("repo", ev.Repo.FullName()).Info("Ignoring event for unserved repository")
			w.WriteHeader(http.StatusOK)
			return
		}

		wf, ok := router.Route(ev)
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}

		key := fmt.Sprintf("%s/%s/%d", wf, ev.Repo.FullName(), ev.Number)
		if queue.Enqueue(key, func(ctx context.Context) error {
			return orch.Run(ctx, wf, ev)
		}) {
			log.With("key", key).Info("Enqueued formatting task")
		} else {
			log.With("key", key).Info("Coalesced duplicate formatting task")
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
