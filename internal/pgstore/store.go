// Package pgstore keeps room documents in Postgres. Writes are conditional on
// a version column and every commit is announced with pg_notify.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

const notifyChannel = "room_changes"

type Store struct {
	db     *gorm.DB
	pool   *pgxpool.Pool
	feeds  *listener
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

var _ store.Backend = (*Store)(nil)

func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&RoomRecord{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, config.DBConnectTimeout)
	defer cancel()
	pool, err := pgxpool.New(pctx, dsn)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("connect listener pool: %w", err)
	}
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		closeDB(db)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db, pool: pool, logger: logger}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.feeds = newListener(s.ctx, s.snapshot)
	s.feeds.wg.Add(1)
	go s.listen()
	return s, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *Store) Load(ctx context.Context, code string) (room.Room, int64, error) {
	rec, err := s.load(s.db.WithContext(ctx), code)
	if err != nil {
		return room.Room{}, 0, err
	}
	r, err := rec.toRoom()
	return r, rec.Version, err
}

func (s *Store) load(db *gorm.DB, code string) (RoomRecord, error) {
	var rec RoomRecord
	err := db.Where("code = ?", code).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoomRecord{}, room.ErrRoomNotFound
	}
	if err != nil {
		return RoomRecord{}, fmt.Errorf("load room %s: %w", code, err)
	}
	return rec, nil
}

func (s *Store) Insert(ctx context.Context, r room.Room) (int64, error) {
	rec, err := toRecord(r, 1)
	if err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return notify(tx, r.Code)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, store.ErrCodeTaken
	}
	if err != nil {
		return 0, fmt.Errorf("insert room %s: %w", r.Code, err)
	}
	return rec.Version, nil
}

func (s *Store) Swap(ctx context.Context, code string, version int64, next *room.Room) (int64, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res *gorm.DB
		if next == nil {
			res = tx.Where("code = ? AND version = ?", code, version).Delete(&RoomRecord{})
		} else {
			rec, err := toRecord(*next, version+1)
			if err != nil {
				return err
			}
			res = tx.Model(&RoomRecord{}).
				Where("code = ? AND version = ?", code, version).
				Updates(map[string]any{
					"version":         rec.Version,
					"document":        rec.Document,
					"participant_ids": rec.ParticipantIDs,
					"completed":       rec.Completed,
					"ended_at":        rec.EndedAt,
				})
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&RoomRecord{}).Where("code = ?", code).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return room.ErrRoomNotFound
			}
			return store.ErrConflict
		}
		return notify(tx, code)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, room.ErrRoomNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("swap room %s: %w", code, err)
	}
	return version + 1, nil
}

// notify is delivered to listeners only when the surrounding transaction commits.
func notify(tx *gorm.DB, code string) error {
	return tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, code).Error
}

func (s *Store) History(ctx context.Context, refs ...string) ([]room.Room, error) {
	q := s.db.WithContext(ctx).Where("completed = ?", true)
	for _, ref := range refs {
		q = q.Where("jsonb_exists(participant_ids, ?)", ref)
	}

	var recs []RoomRecord
	if err := q.Order("ended_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	games := make([]room.Room, 0, len(recs))
	for _, rec := range recs {
		r, err := rec.toRoom()
		if err != nil {
			s.logger.Warn("skipping unreadable room", zap.String("code", rec.Code), zap.Error(err))
			continue
		}
		games = append(games, r)
	}
	return games, nil
}

// Close ends every watch stream, then releases the listener and both pools.
func (s *Store) Close() error {
	s.cancel()
	s.feeds.wait()
	s.pool.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// snapshot reads the current document. Read failures become an unavailable
// snapshot rather than ending the stream.
func (s *Store) snapshot(ctx context.Context, code string) store.Snapshot {
	r, version, err := s.Load(ctx, code)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return store.Snapshot{}
	case err != nil:
		return store.Snapshot{Err: err}
	default:
		return store.Snapshot{Room: &r, Version: version}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
