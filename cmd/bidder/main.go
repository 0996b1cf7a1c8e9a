package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"lot-auction/internal/api"
	"lot-auction/internal/bidcalc"
	"lot-auction/internal/bidclient"
	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/cache"
	"lot-auction/internal/config"
	"lot-auction/internal/synchronizer"
	"lot-auction/utils"
)

type options struct {
	lotID     int64
	projectID int64
	amount    string
	watch     time.Duration
}

func main() {
	fs := pflag.NewFlagSet("bidder", pflag.ExitOnError)
	var opts options
	fs.Int64Var(&opts.lotID, "lot", 0, "lot id to watch (required)")
	fs.Int64Var(&opts.projectID, "project", 0, "project id of the lot; taken from the lot when omitted")
	fs.StringVar(&opts.amount, "amount", "", "bid amount to submit once the lot is loaded")
	fs.DurationVar(&opts.watch, "watch", 0, "keep watching the lot for this long (0 exits after the first snapshot or bid)")
	fs.String("api", "", "backend base URL")
	fs.Int64("viewer", 0, "user id to act as")
	fs.String("token", "", "bearer token")
	fs.String("redis", "", "redis URL for a shared query cache")
	fs.Duration("interval", 0, "poll interval")
	fs.String("increment", "", "minimum bid increment")
	fs.String("log-level", "", "log level")
	_ = fs.Parse(os.Args[1:])

	if opts.lotID <= 0 {
		fmt.Fprintln(os.Stderr, "--lot is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.watch > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.watch)
		defer cancel()
	}

	if err := run(ctx, cfg, opts); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		utils.Fatal("bidder failed", map[string]any{"error": err.Error()})
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client := api.NewClient(cfg.APIBaseURL, cfg.ViewerID,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithAuthToken(cfg.AuthToken),
	)
	view := bidclient.NewLotView(client, cache.New(store), bidcalc.NewCalculator(cfg.MinBidIncrement), synchronizer.Config{
		LotID:     opts.lotID,
		ProjectID: opts.projectID,
		ViewerID:  cfg.ViewerID,
		Interval:  cfg.PollInterval,
	})
	if err := view.Open(ctx); err != nil {
		return fmt.Errorf("open lot view: %w", err)
	}
	defer view.Close()

	dialog := view.NewDialog()
	submitted := opts.amount == ""

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-view.Snapshots():
			logSnapshot(dialog, snap)
			// the token balance arrives in a later snapshot
			if cfg.ViewerID != 0 && snap.Subscription == nil {
				continue
			}

			if !submitted {
				submitted = true
				submit(ctx, view, dialog, opts.amount)
			}
			if opts.watch == 0 {
				return nil
			}
		}
	}
}

func openStore(cfg *config.Config) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryStore(), func() {}, nil
	}
	store, err := cache.OpenRedisStore(cfg.RedisURL, 10*time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("open redis cache: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			utils.Warn("failed to close redis cache", map[string]any{"error": err.Error()})
		}
	}, nil
}

func logSnapshot(d *bidclient.Dialog, snap synchronizer.Snapshot) {
	fields := map[string]any{
		"lot_id":     snap.Lot.ID,
		"lot":        snap.Lot.Name,
		"status":     string(snap.Lot.Status),
		"stale":      snap.Stale,
		"fetched_at": snap.FetchedAt.Format(time.RFC3339),
	}
	if snap.Err != nil {
		fields["error"] = biddingerrors.UserMessage(snap.Err)
	}
	if snap.Subscription != nil {
		fields["tokens"] = snap.Subscription.TokensAvailable
	}
	if eval := d.Evaluate(snap, ""); eval.Quote.MinimumNextBid.IsPositive() {
		fields["current_top"] = eval.Quote.CurrentTopAmount.String()
		fields["minimum_next_bid"] = eval.Quote.MinimumNextBid.String()
		fields["leader"] = eval.Quote.IsLeader
	}
	utils.Info("lot snapshot", fields)
}

func submit(ctx context.Context, view *bidclient.LotView, d *bidclient.Dialog, amount string) {
	eval, err := view.Evaluate(d, amount)
	if err != nil {
		utils.Warn("cannot evaluate bid", map[string]any{"error": err.Error()})
		return
	}
	if !eval.CanSubmit {
		utils.Warn("bid not allowed", map[string]any{
			"amount": amount,
			"reason": biddingerrors.UserMessage(eval.Reason),
		})
		return
	}

	bid, err := view.Submit(ctx, d, amount)
	if err != nil {
		utils.Error("bid rejected", map[string]any{
			"amount": amount,
			"error":  d.ErrorMessage(),
		})
		return
	}
	utils.Info("bid placed", map[string]any{
		"bid_id": bid.ID,
		"lot_id": bid.LotID,
		"amount": bid.Amount.String(),
	})
}
