package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver, registers itself as "sqlite" in
	// database/sql. No CGO required.
	_ "modernc.org/sqlite"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// lastProcessedRecord is one row per network holding the highest processed
// block number.
type lastProcessedRecord struct {
	NetworkSlug string `gorm:"primaryKey"`
	BlockNumber uint64
	UpdatedAt   time.Time
}

func (lastProcessedRecord) TableName() string { return "last_processed_blocks" }

// missedBlockRecord is one row per missed block, append-only.
type missedBlockRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	NetworkSlug string `gorm:"index"`
	BlockNumber uint64
	CreatedAt   time.Time
}

func (missedBlockRecord) TableName() string { return "missed_blocks" }

// storedBlockRecord holds one full block payload as JSON.
type storedBlockRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	NetworkSlug string `gorm:"index"`
	BlockNumber uint64
	Payload     []byte
	CreatedAt   time.Time
}

func (storedBlockRecord) TableName() string { return "stored_blocks" }

// SQLiteStorage implements BlockStorage on a SQLite database through GORM.
type SQLiteStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStorage opens the database and migrates the schema. The
// connection is opened manually via database/sql using the modernc driver,
// then handed to GORM so it does not try to open a second connection with
// go-sqlite3.
func NewSQLiteStorage(dsn string, logger *zap.Logger) (*SQLiteStorage, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite: %v", ErrStorage, err)
	}
	// SQLite supports only one writer at a time.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing gorm with sqlite: %v", ErrStorage, err)
	}

	if err := db.AutoMigrate(&lastProcessedRecord{}, &missedBlockRecord{}, &storedBlockRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrating schema: %v", ErrStorage, err)
	}
	return &SQLiteStorage{db: db, logger: logger.Named("sqlite_storage")}, nil
}

// GetLastProcessedBlock returns the stored number for the network.
func (s *SQLiteStorage) GetLastProcessedBlock(ctx context.Context, networkSlug string) (uint64, bool, error) {
	var rec lastProcessedRecord
	err := s.db.WithContext(ctx).First(&rec, "network_slug = ?", networkSlug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: loading last block for %q: %v", ErrStorage, networkSlug, err)
	}
	return rec.BlockNumber, true, nil
}

// SaveLastProcessedBlock upserts the network's row.
func (s *SQLiteStorage) SaveLastProcessedBlock(ctx context.Context, networkSlug string, number uint64) error {
	rec := lastProcessedRecord{NetworkSlug: networkSlug, BlockNumber: number, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Save(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: saving last block for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// SaveMissedBlock inserts one missed-block row.
func (s *SQLiteStorage) SaveMissedBlock(ctx context.Context, networkSlug string, number uint64) error {
	rec := missedBlockRecord{NetworkSlug: networkSlug, BlockNumber: number, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: saving missed block for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// SaveBlocks inserts one row per block with the JSON payload.
func (s *SQLiteStorage) SaveBlocks(ctx context.Context, networkSlug string, blocks []models.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	records := make([]storedBlockRecord, 0, len(blocks))
	now := time.Now()
	for _, b := range blocks {
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("%w: encoding block for %q: %v", ErrStorage, networkSlug, err)
		}
		records = append(records, storedBlockRecord{
			NetworkSlug: networkSlug,
			BlockNumber: b.Number(),
			Payload:     payload,
			CreatedAt:   now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("%w: saving blocks for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// DeleteBlocks removes every stored payload row for the network.
func (s *SQLiteStorage) DeleteBlocks(ctx context.Context, networkSlug string) error {
	res := s.db.WithContext(ctx).Where("network_slug = ?", networkSlug).Delete(&storedBlockRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: deleting blocks for %q: %v", ErrStorage, networkSlug, res.Error)
	}
	s.logger.Debug("deleted stored blocks",
		zap.String("network", networkSlug),
		zap.Int64("rows", res.RowsAffected))
	return nil
}
