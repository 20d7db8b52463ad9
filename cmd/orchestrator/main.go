// Command orchestrator runs the work-orchestration core: HTTP API, agent
// runtime, and the substrate gateway, wired the way cmd/tarsy wires TARSy's
// services.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/agentruntime"
	"github.com/codeready-toolchain/agentcore/pkg/api"
	"github.com/codeready-toolchain/agentcore/pkg/authjwt"
	"github.com/codeready-toolchain/agentcore/pkg/cleanup"
	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/codeready-toolchain/agentcore/pkg/database"
	"github.com/codeready-toolchain/agentcore/pkg/llmclient"
	"github.com/codeready-toolchain/agentcore/pkg/models"
	"github.com/codeready-toolchain/agentcore/pkg/permission"
	"github.com/codeready-toolchain/agentcore/pkg/policy"
	"github.com/codeready-toolchain/agentcore/pkg/progress"
	"github.com/codeready-toolchain/agentcore/pkg/scaffold"
	"github.com/codeready-toolchain/agentcore/pkg/session"
	"github.com/codeready-toolchain/agentcore/pkg/substrate"
	"github.com/codeready-toolchain/agentcore/pkg/supervision"
	"github.com/codeready-toolchain/agentcore/pkg/ticket"
	"github.com/codeready-toolchain/agentcore/pkg/tools"
	"github.com/codeready-toolchain/agentcore/pkg/version"
	"github.com/codeready-toolchain/agentcore/pkg/workrequest"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orchestrator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting orchestrator", "version", version.Full())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}

	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("closing database client", "error", err)
		}
	}()
	slog.Info("connected to database")

	substrateClient := substrate.New(substrate.Config{
		BaseURL:          cfg.SubstrateAPIURL,
		ServiceSecret:    cfg.SubstrateServiceSecret,
		FailureThreshold: cfg.CBFailureThreshold,
		Cooldown:         cfg.CBCooldown,
		HalfOpenProbes:   cfg.CBHalfOpenProbes,
	})

	gate := permission.New(dbClient.DB(), policy.NoSubscriptions{}, cfg.TrialCap)
	requests := workrequest.New(dbClient.DB())
	sessions := session.New(dbClient.DB())
	progressChannel := progress.New()
	bridge := supervision.New(substrateClient, policy.ManualPromotion{})

	llmClient := llmclient.New(cfg.LLMProviderAPIKey, "")

	catalog := tools.NewCatalog()
	recipes := policy.NewStaticRecipes(nil)
	schemas := policy.NoSchemas{}
	governance := policy.NoGovernance{}

	var executor *ticket.Executor
	triggerRecipe := func(ctx context.Context, callCtx tools.CallContext, recipeSlug string, parameters map[string]any, priority string) (string, error) {
		return admitRecipe(ctx, admitDeps{
			gate:     gate,
			requests: requests,
			sessions: sessions,
			db:       dbClient,
			executor: executor,
		}, callCtx, recipeSlug, parameters)
	}

	if err := tools.RegisterCoreTools(catalog, substrateClient, recipes, schemas, governance, triggerRecipe); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	runtimeFactory := func() *agentruntime.Runtime {
		return agentruntime.New(llmClient, catalog, progressChannel)
	}

	executor = ticket.New(dbClient.DB(), sessions, requests, substrateClient, runtimeFactory)

	scaffolder := scaffold.New(dbClient.DB(), gate, substrateClient, sessions, requests)
	verifier := authjwt.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	retention := cleanup.NewService(dbClient.DB(), cfg.TicketRetentionDays, cfg.CleanupInterval)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(api.Deps{
		DB:             dbClient,
		Verifier:       verifier,
		Gate:           gate,
		Requests:       requests,
		Sessions:       sessions,
		Executor:       executor,
		Bridge:         bridge,
		Progress:       progressChannel,
		Scaffolder:     scaffolder,
		Substrate:      substrateClient,
		Catalog:        catalog,
		RuntimeFactory: runtimeFactory,
		TriggerRecipe:  triggerRecipe,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr, ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("orchestrator stopped")
	return nil
}

type admitDeps struct {
	gate     *permission.Gate
	requests *workrequest.Recorder
	sessions *session.Registry
	db       *database.Client
	executor *ticket.Executor
}

// admitRecipe implements trigger_recipe's contract: admit another work
// request through the same gate/record/session/ticket path as
// POST /api/work/queue, for a recipe slug rather than a free-form task.
func admitRecipe(ctx context.Context, d admitDeps, callCtx tools.CallContext, recipeSlug string, parameters map[string]any) (string, error) {
	agentKind := callCtx.AgentKind
	if agentKind == "" {
		agentKind = models.AgentKindResearch
	}

	if _, err := d.gate.Check(ctx, callCtx.User, callCtx.Workspace, agentKind); err != nil {
		return "", err
	}

	workRequestID, err := d.requests.Create(ctx, callCtx.User, callCtx.Workspace, callCtx.Basket, agentKind, "recipe:"+recipeSlug, parameters, false)
	if err != nil {
		return "", err
	}

	sess, err := d.sessions.GetOrCreate(ctx, callCtx.Basket, callCtx.Workspace, agentKind)
	if err != nil {
		return "", err
	}

	t, err := ticket.Create(ctx, d.db.DB(), workRequestID, sess)
	if err != nil {
		return "", err
	}

	input := agentruntime.Input{
		Session:         sess,
		AgentKind:       agentKind,
		TaskDescription: "Execute recipe " + recipeSlug,
		Parameters:      parameters,
		CallCtx: tools.CallContext{
			Basket:    callCtx.Basket,
			Workspace: callCtx.Workspace,
			User:      callCtx.User,
			Ticket:    t.ID,
			AgentKind: agentKind,
			SessionID: sess.ID,
			UserToken: callCtx.UserToken,
		},
	}

	go func() {
		if err := d.executor.Run(context.Background(), t.ID, input, callCtx.UserToken); err != nil {
			slog.Warn("recipe-triggered ticket failed", "ticket_id", t.ID, "recipe", recipeSlug, "error", err)
		}
	}()

	return t.ID, nil
}
