package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/engine"
	"github.com/updownhq/updown/internal/oracle"
	"github.com/updownhq/updown/internal/server"
	"github.com/updownhq/updown/internal/server/handler"
	"github.com/updownhq/updown/internal/server/ws"
	"github.com/updownhq/updown/internal/service"
)

// ServeMode runs the HTTP API only. Settlement is left to a keeper
// replica; the shared stores and the signal bus keep this instance
// current.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildMarket(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// KeeperMode runs the settlement worker without the HTTP API. The
// archiver also lives here: keeper replicas are the singleton of a
// deployment, so cold-storage sweeps never run twice.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildMarket(ctx, deps)
	if err != nil {
		return fmt.Errorf("keeper mode: %w", err)
	}

	source, err := a.newReportSource(ctx)
	if err != nil {
		return fmt.Errorf("keeper mode: %w", err)
	}

	a.startKeeper(ctx, g, deps, svc, source)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything in one process: the HTTP API, the settlement
// worker, and the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildMarket(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	source, err := a.newReportSource(ctx)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startKeeper(ctx, g, deps, svc, source)
	a.startArchiver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// DevMode runs a self-contained market on the in-memory stores: seeded
// participant balances, a random-walked static outcome source, the
// settlement worker, and the HTTP API. Nothing survives a restart.
func (a *App) DevMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dev mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildMarket(ctx, deps)
	if err != nil {
		return fmt.Errorf("dev mode: %w", err)
	}

	a.seedDevAccounts(ctx, deps)

	source := oracle.NewStaticSource(a.cfg.Oracle.Static.Value)
	g.Go(func() error {
		return a.devRandomWalk(ctx, source)
	})

	a.startKeeper(ctx, g, deps, svc, source)
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// buildMarket boots the engine from the wired stores and fronts it with a
// MarketService.
func (a *App) buildMarket(ctx context.Context, deps *Dependencies) (*service.MarketService, error) {
	market, err := engine.New(ctx, a.marketParams(), a.cfg.Market.GenesisOutcome, engine.Deps{
		Rounds: deps.Rounds,
		Bets:   deps.Bets,
		Claims: deps.Claims,
		Params: deps.Params,
		Bank:   deps.Bank,
		Events: deps.Events,
		Logger: a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build market: %w", err)
	}

	return service.NewMarketService(
		market, deps.Rounds, deps.Bets, deps.Claims,
		deps.Bank, deps.Admin, deps.StateCache, 0, a.logger,
	), nil
}

// marketParams converts the genesis section of the config into engine
// parameters. They only matter on a fresh store; afterwards the persisted
// snapshot wins.
func (a *App) marketParams() domain.MarketParams {
	mc := a.cfg.Market
	return domain.MarketParams{
		MinBet:     mc.MinBet,
		MaxBet:     mc.MaxBet,
		FeeBps:     mc.FeeBps,
		Interval:   mc.Interval.Duration,
		CutoffLead: mc.CutoffLead.Duration,
		OutcomeMin: mc.OutcomeMin,
		OutcomeMax: mc.OutcomeMax,
		Owner:      mc.Owner,
		Keeper:     mc.Keeper,
		Treasury:   mc.Treasury,
	}
}

// newReportSource builds the configured outcome source.
func (a *App) newReportSource(ctx context.Context) (domain.ReportSource, error) {
	switch strings.ToLower(a.cfg.Oracle.Source) {
	case "chainlink":
		return oracle.NewChainlinkSource(
			ctx,
			a.cfg.Oracle.Chainlink.RPCURL,
			a.cfg.Oracle.Chainlink.Aggregator,
			a.cfg.Oracle.Chainlink.StaleAfter.Duration,
		)
	case "http":
		return oracle.NewHTTPSource(a.cfg.Oracle.HTTP.URL, a.cfg.Oracle.HTTP.Field), nil
	case "static":
		return oracle.NewStaticSource(a.cfg.Oracle.Static.Value), nil
	default:
		return nil, fmt.Errorf("unknown oracle source %q", a.cfg.Oracle.Source)
	}
}

// startKeeper adds the settlement worker to the errgroup.
func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.MarketService, source domain.ReportSource) {
	identity := strings.TrimSpace(a.cfg.Keeper.Identity)
	if identity == "" {
		identity = a.cfg.Market.Keeper
	}

	keeper := service.NewKeeperService(
		svc, source, deps.Locks, deps.Notifier, deps.Metrics,
		identity, a.cfg.Keeper.PollInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return keeper.Run(ctx)
	})
}

// startArchiver adds the cold-storage sweep loop to the errgroup when the
// archiver is configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}

	retain := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	arch := service.NewArchiveService(deps.Archiver, retain, a.cfg.Archive.Interval.Duration, a.logger)
	g.Go(func() error {
		return arch.Run(ctx)
	})
}

// startHTTPServer adds the API server and the WebSocket hub to the
// errgroup. The server shuts down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.MarketService) {
	checks := make(map[string]handler.Pinger, len(deps.HealthChecks))
	for name, ping := range deps.HealthChecks {
		checks[name] = ping
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Market:   handler.NewMarketHandler(svc, a.logger),
		Bets:     handler.NewBetHandler(svc, a.logger),
		Rounds:   handler.NewRoundHandler(svc, a.logger),
		Claims:   handler.NewClaimHandler(svc, a.logger),
		Admin:    handler.NewAdminHandler(svc, deps.Audit, deps.BlobReader, a.logger),
		Accounts: handler.NewAccountHandler(svc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminKey:    deps.AdminKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, server.Infra{
		Limiter:  deps.Limiter,
		Gatherer: deps.Gatherer,
		Metrics:  deps.Metrics,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// seedDevAccounts credits a few well-known participants so dev mode is
// playable immediately.
func (a *App) seedDevAccounts(ctx context.Context, deps *Dependencies) {
	for _, account := range []string{"alice", "bob", "carol"} {
		if err := deps.Admin.Credit(ctx, account, 1_000_000, "seed:dev"); err != nil {
			a.logger.WarnContext(ctx, "dev seed failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "dev account seeded",
			slog.String("account", account),
			slog.Int64("balance", 1_000_000),
		)
	}
}

// devRandomWalk nudges the static source every couple of seconds so dev
// rounds settle with varied outcomes.
func (a *App) devRandomWalk(ctx context.Context, source *oracle.StaticSource) error {
	lo, hi := a.cfg.Market.OutcomeMin, a.cfg.Market.OutcomeMax

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v, _ := source.Report(ctx)

			// Drift up to ±0.3% per tick, never settling entirely still.
			step := v * int64(rand.IntN(61)-30) / 10_000
			if step == 0 {
				step = int64(rand.IntN(3) - 1)
			}
			v += step
			if v < lo {
				v = lo
			}
			if v > hi {
				v = hi
			}
			source.Set(v)
		}
	}
}
