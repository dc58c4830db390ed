// Package store keeps finished match results in a SQLite database.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
)

// Match is one finished match as seen by the host.
type Match struct {
	ID        uint      `gorm:"primarykey"`
	MatchID   uuid.UUID `gorm:"type:text;uniqueIndex"`
	SessionID uuid.UUID `gorm:"type:text;index"`
	Outcome   uint8
	Result    string
	Duration  time.Duration
	LeftHP    float64
	RightHP   float64
	Peer      string
	EndedAt   time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (Match) TableName() string {
	return "matches"
}

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens or creates the database at path. An empty path opens a private
// in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := path
	if dsn == "" {
		// named so that each store gets its own shared-cache database
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&Match{}); err != nil {
		return nil, fmt.Errorf("failed to migrate results db: %w", err)
	}
	log.Debug().Str("path", dsn).Msg("results db ready")
	return &Store{db: db, log: log}, nil
}

// SaveResult records r. It satisfies lanenet.ResultSink.
func (s *Store) SaveResult(ctx context.Context, r lanenet.MatchResult) error {
	m := Match{
		MatchID:   uuid.New(),
		SessionID: r.SessionID,
		Outcome:   uint8(r.Outcome),
		Result:    r.Outcome.String(),
		Duration:  r.Duration,
		LeftHP:    r.LeftHP,
		RightHP:   r.RightHP,
		Peer:      r.Peer,
		EndedAt:   r.EndedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to save match result: %w", err)
	}
	s.log.Info().
		Str("match", m.MatchID.String()).
		Str("result", m.Result).
		Dur("duration", m.Duration).
		Msg("match result saved")
	return nil
}

// Recent returns up to n results, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]lanenet.MatchResult, error) {
	var rows []Match
	err := s.db.WithContext(ctx).
		Order("ended_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list match results: %w", err)
	}

	results := make([]lanenet.MatchResult, len(rows))
	for i, m := range rows {
		results[i] = lanenet.MatchResult{
			SessionID: m.SessionID,
			Outcome:   sim.Outcome(m.Outcome),
			Duration:  m.Duration,
			LeftHP:    m.LeftHP,
			RightHP:   m.RightHP,
			Peer:      m.Peer,
			EndedAt:   m.EndedAt,
		}
	}
	return results, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
