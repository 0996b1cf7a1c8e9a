package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	bidding "lot-auction/internal/biddingService"
	"lot-auction/internal/config"
	model "lot-auction/internal/models"
	"lot-auction/internal/repository"
	"lot-auction/internal/server"
	"lot-auction/utils"
)

// store is what the backend needs from a repository implementation
type store interface {
	repository.AuctionDB
	repository.Seeder
}

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)

	repo, closeRepo := openStore(cfg)
	defer closeRepo()

	if cfg.SeedDemoData {
		if err := seedDemoData(repo); err != nil {
			utils.Fatal("failed to seed demo data", map[string]any{"error": err.Error()})
		}
	}

	biddingSvc := bidding.NewBiddingService(repo)

	router := server.SetupRouter(biddingSvc)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
	utils.Info("auction server stopped", nil)
}

// openStore picks the SQL repository when DATABASE_URL is set
func openStore(cfg *config.Config) (store, func()) {
	if cfg.DatabaseURL == "" {
		utils.Info("using in-memory repository", nil)
		return repository.NewMemoryRepo(), func() {}
	}

	repo, err := repository.OpenGormRepo(cfg.DatabaseURL)
	if err != nil {
		utils.Fatal("failed to open database", map[string]any{"error": err.Error()})
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			utils.Warn("failed to close database", map[string]any{"error": err.Error()})
		}
	}
}

// seedDemoData adds a project with one lot per auction state plus a client
// and an admin account. A store that already holds lots is left untouched.
func seedDemoData(repo repository.Seeder) error {
	n, err := repo.CountLots()
	if err != nil {
		return err
	}
	if n > 0 {
		utils.Info("demo data already present, skipping seed", map[string]any{"lots": n})
		return nil
	}

	closesAt := time.Now().Add(72 * time.Hour).UTC()
	lots := []model.Lot{
		{ID: 1, Name: "Lote 1 - Parcela norte", BasePrice: decimal.NewFromInt(100000), Status: model.AuctionActive, ClosesAt: &closesAt, ProjectID: 1},
		{ID: 2, Name: "Lote 2 - Parcela sur", BasePrice: decimal.NewFromInt(250000), Status: model.AuctionActive, ClosesAt: &closesAt, ProjectID: 1},
		{ID: 3, Name: "Lote 3 - Esquina", BasePrice: decimal.NewFromInt(150000), Status: model.AuctionPending, ProjectID: 1},
		{ID: 4, Name: "Lote 4 - Frente al lago", BasePrice: decimal.NewFromInt(300000), Status: model.AuctionClosed, ProjectID: 1},
	}
	for _, lot := range lots {
		if err := repo.AddLot(lot); err != nil {
			return err
		}
	}

	users := []model.User{
		{ID: 1, Name: "Administrador", Role: model.RoleAdmin},
		{ID: 2, Name: "Cliente demo", Role: model.RoleClient},
		{ID: 3, Name: "Cliente sin tokens", Role: model.RoleClient},
	}
	for _, u := range users {
		if err := repo.AddUser(u); err != nil {
			return err
		}
	}

	subs := []model.Subscription{
		{UserID: 2, ProjectID: 1, TokensAvailable: 3},
		{UserID: 3, ProjectID: 1, TokensAvailable: 0},
	}
	for _, s := range subs {
		if err := repo.AddSubscription(s); err != nil {
			return err
		}
	}

	utils.Info("demo data seeded", map[string]any{"lots": len(lots), "users": len(users)})
	return nil
}
