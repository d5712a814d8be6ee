// Package archive records the outcome of finished games. It never stores
// live session state; rooms only hand it a Result once play is over.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Result struct {
	RoomCode   string
	Secret     string
	WinnerID   string
	Rounds     int
	Players    []string
	FinishedAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Nop discards results. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Result) error { return nil }

// GameResult is the game_results row.
type GameResult struct {
	ID         uint      `gorm:"primaryKey"`
	RoomCode   string    `gorm:"size:8;index"`
	Secret     string    `gorm:"size:4"`
	WinnerID   string    `gorm:"size:64"`
	Rounds     int
	Players    string // comma separated participant ids in turn order
	FinishedAt time.Time `gorm:"index"`
}

func (GameResult) TableName() string { return "game_results" }

func toRow(res Result) GameResult {
	return GameResult{
		RoomCode:   res.RoomCode,
		Secret:     res.Secret,
		WinnerID:   res.WinnerID,
		Rounds:     res.Rounds,
		Players:    strings.Join(res.Players, ","),
		FinishedAt: res.FinishedAt.UTC(),
	}
}

type GormRecorder struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to postgres and migrates the results table.
func Open(dsn string, logger *zap.Logger) (*GormRecorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	return NewGormRecorder(db, logger)
}

func NewGormRecorder(db *gorm.DB, logger *zap.Logger) (*GormRecorder, error) {
	if err := db.AutoMigrate(&GameResult{}); err != nil {
		return nil, fmt.Errorf("migrate game_results: %w", err)
	}
	return &GormRecorder{db: db, log: logger.Named("archive")}, nil
}

func (g *GormRecorder) Record(ctx context.Context, res Result) error {
	row := toRow(res)
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert result for room %s: %w", res.RoomCode, err)
	}
	g.log.Debug("recorded result", zap.String("room", res.RoomCode), zap.Uint("id", row.ID))
	return nil
}

func (g *GormRecorder) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
