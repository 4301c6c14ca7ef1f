package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/regforms/internal/models"
)

// GormStore persists sessions in the relational database.
type GormStore struct {
	db    *gorm.DB
	opts  StoreOptions
	local *keyedMutex
}

// NewGormStore constructs a database-backed store. The schema must already be migrated.
func NewGormStore(db *gorm.DB, opts StoreOptions) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("session store: db is required")
	}
	return &GormStore{db: db, opts: opts.normalised(), local: newKeyedMutex()}, nil
}

func (s *GormStore) Insert(ctx context.Context, record Record) error {
	return insertRow(s.db.WithContext(ctx), record)
}

func (s *GormStore) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	return findRowsByUser(s.db.WithContext(ctx), userID, s.opts.cutoff())
}

func (s *GormStore) FindByID(ctx context.Context, sessionID string) (Record, error) {
	return findRowByID(s.db.WithContext(ctx), sessionID, s.opts.cutoff())
}

func (s *GormStore) DeleteByID(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.Session{}).Error
}

func (s *GormStore) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.Session{}).Error
}

// WithUserLock opens a transaction holding a row lock on the user's lock row, so the
// section is exclusive across every process sharing the database. A process-local
// mutex in front of it keeps same-node callers from queueing on the database.
func (s *GormStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	unlock, err := s.local.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := models.SessionUserLock{UserID: userID, UpdatedAt: s.opts.Clock().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&lock, "user_id = ?", userID).Error; err != nil {
			return err
		}

		return fn(&gormTx{tx: tx, opts: s.opts})
	})
}

// PurgeExpired deletes rows whose TTL has elapsed.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at <= ?", s.opts.cutoff()).
		Delete(&models.Session{})
	return result.RowsAffected, result.Error
}

// gormTx is the Store handed to WithUserLock callbacks.
type gormTx struct {
	tx   *gorm.DB
	opts StoreOptions
}

func (t *gormTx) Insert(ctx context.Context, record Record) error {
	return insertRow(t.tx.WithContext(ctx), record)
}

func (t *gormTx) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	return findRowsByUser(t.tx.WithContext(ctx), userID, t.opts.cutoff())
}

func (t *gormTx) FindByID(ctx context.Context, sessionID string) (Record, error) {
	return findRowByID(t.tx.WithContext(ctx), sessionID, t.opts.cutoff())
}

func (t *gormTx) DeleteByID(ctx context.Context, sessionID string) error {
	return t.tx.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.Session{}).Error
}

func (t *gormTx) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	return t.tx.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.Session{}).Error
}

func (t *gormTx) WithUserLock(_ context.Context, _ string, fn func(Store) error) error {
	return fn(t)
}

// insertRow uses ON CONFLICT DO NOTHING so a duplicate id does not abort an enclosing
// Postgres transaction; zero affected rows means the id was taken.
func insertRow(db *gorm.DB, record Record) error {
	row := toModel(record)
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSessionID
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateSessionID
	}
	return nil
}

func findRowsByUser(db *gorm.DB, userID string, cutoff time.Time) ([]Record, error) {
	var rows []models.Session
	err := db.
		Where("user_id = ? AND created_at > ?", userID, cutoff).
		Order("created_at ASC").
		Order("session_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func findRowByID(db *gorm.DB, sessionID string, cutoff time.Time) (Record, error) {
	var row models.Session
	err := db.Where("session_id = ? AND created_at > ?", sessionID, cutoff).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return fromModel(row), nil
}

func toModel(record Record) models.Session {
	return models.Session{
		SessionID:  record.SessionID,
		UserID:     record.UserID,
		DeviceInfo: record.DeviceInfo,
		CreatedAt:  record.CreatedAt.UTC(),
	}
}

func fromModel(row models.Session) Record {
	return Record{
		UserID:     row.UserID,
		SessionID:  row.SessionID,
		DeviceInfo: row.DeviceInfo,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}
