package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"lot-auction/internal/biddingerrors"
	model "lot-auction/internal/models"
)

// GormRepo is the SQL-backed implementation of AuctionDB
type GormRepo struct {
	db *gorm.DB
}

// OpenGormRepo connects to dsn and migrates the auction tables. postgres://
// and postgresql:// URLs use the Postgres driver, anything else is treated as
// a SQLite path (":memory:" included).
func OpenGormRepo(dsn string) (*GormRepo, error) {
	var dialector gorm.Dialector
	sqliteDB := false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	} else {
		dialector = sqlite.Open(dsn)
		sqliteDB = true
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if sqliteDB {
		// every sqlite connection would otherwise see its own :memory: database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormRepo(db)
}

// NewGormRepo wraps an open connection and runs migrations
func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&model.Lot{}, &model.Bid{}, &model.Subscription{}, &model.User{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormRepo{db: db}, nil
}

// Close releases the underlying connection pool
func (r *GormRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormRepo) GetLot(lotID int64) (model.Lot, error) {
	var lot model.Lot
	if err := r.db.First(&lot, lotID).Error; err != nil {
		return model.Lot{}, notFound(err, biddingerrors.ErrLotNotFound, "get lot %d", lotID)
	}
	if err := r.attachLastBid(r.db, &lot); err != nil {
		return model.Lot{}, err
	}
	return lot, nil
}

func (r *GormRepo) GetLotsByProject(projectID int64) ([]model.Lot, error) {
	lots := make([]model.Lot, 0)
	if err := r.db.Where("project_id = ?", projectID).Order("id").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("get lots of project %d: %w", projectID, err)
	}
	for i := range lots {
		if err := r.attachLastBid(r.db, &lots[i]); err != nil {
			return nil, err
		}
	}
	return lots, nil
}

// RecordBid runs rule and the writes in one transaction. On Postgres the lot
// row is locked so concurrent bids on the same lot serialize.
func (r *GormRepo) RecordBid(bid model.Bid, rule BidRule) (model.Bid, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var lot model.Lot
		if err := q.First(&lot, bid.LotID).Error; err != nil {
			return notFound(err, biddingerrors.ErrLotNotFound, "record bid for lot %d", bid.LotID)
		}
		if err := r.attachLastBid(tx, &lot); err != nil {
			return err
		}

		var sub *model.Subscription
		var found model.Subscription
		err := tx.Where("user_id = ? AND project_id = ?", bid.BidderID, lot.ProjectID).First(&found).Error
		switch {
		case err == nil:
			sub = &found
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load subscription: %w", err)
		}

		consume, err := rule(lot, sub)
		if err != nil {
			return err
		}
		if consume {
			res := tx.Model(&model.Subscription{}).
				Where("user_id = ? AND project_id = ? AND tokens_available > 0", bid.BidderID, lot.ProjectID).
				UpdateColumn("tokens_available", gorm.Expr("tokens_available - 1"))
			if res.Error != nil {
				return fmt.Errorf("consume token: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("record bid for lot %d: %w", bid.LotID, biddingerrors.ErrNoTokens)
			}
		}

		if bid.CreatedAt.IsZero() {
			bid.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(&bid).Error; err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		return tx.Model(&model.Lot{}).Where("id = ?", lot.ID).Updates(map[string]any{
			"winner_id":      bid.BidderID,
			"winning_amount": bid.Amount,
		}).Error
	})
	if err != nil {
		return model.Bid{}, err
	}
	return bid, nil
}

func (r *GormRepo) GetBidsByUser(userID int64) ([]model.Bid, error) {
	var bids []model.Bid
	if err := r.db.Where("bidder_id = ?", userID).Order("id desc").Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("get bids for user %d: %w", userID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for user %d: %w", userID, biddingerrors.ErrNoBids)
	}
	return bids, nil
}

func (r *GormRepo) GetSubscription(userID, projectID int64) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ? AND project_id = ?", userID, projectID).First(&sub).Error
	if err != nil {
		return model.Subscription{}, notFound(err, biddingerrors.ErrSubscriptionNotFound,
			"get subscription of user %d to project %d", userID, projectID)
	}
	return sub, nil
}

func (r *GormRepo) GetUser(userID int64) (model.User, error) {
	var u model.User
	if err := r.db.First(&u, userID).Error; err != nil {
		return model.User{}, notFound(err, biddingerrors.ErrUserNotFound, "get user %d", userID)
	}
	return u, nil
}

// AddLot upserts a lot. Used for seeding and tests.
func (r *GormRepo) AddLot(lot model.Lot) error {
	lot.LastBid = nil
	return r.db.Save(&lot).Error
}

// CountLots reports how many lots are stored
func (r *GormRepo) CountLots() (int64, error) {
	var n int64
	if err := r.db.Model(&model.Lot{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count lots: %w", err)
	}
	return n, nil
}

// AddSubscription upserts a subscription. Used for seeding and tests.
func (r *GormRepo) AddSubscription(sub model.Subscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tokens_available"}),
	}).Create(&sub).Error
}

// AddUser upserts a user. Used for seeding and tests.
func (r *GormRepo) AddUser(u model.User) error {
	if _, err := model.ParseRole(string(u.Role)); err != nil {
		return fmt.Errorf("add user %d: %w", u.ID, err)
	}
	return r.db.Save(&u).Error
}

func (r *GormRepo) attachLastBid(db *gorm.DB, lot *model.Lot) error {
	var last model.Bid
	err := db.Where("lot_id = ?", lot.ID).Order("id desc").Limit(1).Find(&last).Error
	if err != nil {
		return fmt.Errorf("load last bid of lot %d: %w", lot.ID, err)
	}
	if last.ID == 0 {
		lot.LastBid = nil
		return nil
	}
	lot.LastBid = &model.LastBid{Amount: last.Amount, BidderID: last.BidderID, CreatedAt: last.CreatedAt}
	return nil
}

func notFound(err, sentinel error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
