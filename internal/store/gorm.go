package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/user/isp-cabinet/pkg/isp"
)

// AccountEntry is the GORM model: one row per account, replaced on
// every poll.
type AccountEntry struct {
	AccountID           string    `gorm:"primaryKey;column:account_id"`
	LastGoodJSON        string    `gorm:"column:last_good_json"`
	LastErrorClass      string    `gorm:"column:last_error_class"`
	LastErrorMessage    string    `gorm:"column:last_error_message"`
	LastErrorAt         time.Time `gorm:"column:last_error_at"`
	ConsecutiveFailures int       `gorm:"column:consecutive_failures"`
	NextAllowedAttempt  time.Time `gorm:"column:next_allowed_attempt"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (AccountEntry) TableName() string { return "account_entries" }

// Gorm persists entries over sqlite or postgres. It embeds the same
// notifier as the memory backend, so subscriptions behave identically.
type Gorm struct {
	db     *gorm.DB
	notify *notifier
}

func NewGorm(driver, dsn string) (*Gorm, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &Gorm{db: db, notify: newNotifier()}, nil
}

func (s *Gorm) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&AccountEntry{})
}

func (s *Gorm) Get(ctx context.Context, accountID string) (*Entry, error) {
	var row AccountEntry
	result := s.db.WithContext(ctx).First(&row, "account_id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	e, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Gorm) List(ctx context.Context) ([]Entry, error) {
	var rows []AccountEntry
	result := s.db.WithContext(ctx).Order("account_id").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Gorm) Put(ctx context.Context, accountID string, res PollResult) error {
	prev, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	e := apply(prev, accountID, res)

	row, err := toRow(e)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return err
	}

	s.notify.publish(e)
	return nil
}

func (s *Gorm) Delete(ctx context.Context, accountID string) error {
	err := s.db.WithContext(ctx).Delete(&AccountEntry{}, "account_id = ?", accountID).Error
	if err != nil {
		return err
	}
	s.notify.dropAccount(accountID)
	return nil
}

func (s *Gorm) Subscribe(accountID string, fn func(Entry)) uuid.UUID {
	return s.notify.subscribe(accountID, fn)
}

func (s *Gorm) Unsubscribe(id uuid.UUID) {
	s.notify.unsubscribe(id)
}

func (s *Gorm) Close() error {
	s.notify.close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toRow(e Entry) (AccountEntry, error) {
	row := AccountEntry{
		AccountID:           e.AccountID,
		ConsecutiveFailures: e.ConsecutiveFailures,
		NextAllowedAttempt:  e.NextAllowedAttempt,
		UpdatedAt:           e.UpdatedAt,
	}
	if e.LastGood != nil {
		b, err := json.Marshal(e.LastGood)
		if err != nil {
			return AccountEntry{}, fmt.Errorf("marshal snapshot: %w", err)
		}
		row.LastGoodJSON = string(b)
	}
	if e.LastError != nil {
		row.LastErrorClass = string(e.LastError.Class)
		row.LastErrorMessage = e.LastError.Message
		row.LastErrorAt = e.LastError.At
	}
	return row, nil
}

func fromRow(row AccountEntry) (Entry, error) {
	e := Entry{
		AccountID:           row.AccountID,
		ConsecutiveFailures: row.ConsecutiveFailures,
		NextAllowedAttempt:  row.NextAllowedAttempt,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.LastGoodJSON != "" {
		var snap isp.Snapshot
		if err := json.Unmarshal([]byte(row.LastGoodJSON), &snap); err != nil {
			return Entry{}, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		e.LastGood = &snap
	}
	if row.LastErrorClass != "" {
		e.LastError = &FailureInfo{
			Class:   isp.FailureClass(row.LastErrorClass),
			Message: row.LastErrorMessage,
			At:      row.LastErrorAt,
		}
	}
	return e, nil
}
