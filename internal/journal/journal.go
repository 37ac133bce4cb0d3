package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"okinoko_treasury/contract"
	"okinoko_treasury/sdk"
)

// Entry is one committed engine event.
type Entry struct {
	ID           uint    `gorm:"primarykey"`
	Event        string  `gorm:"index;size:4"`
	Identity     string  `gorm:"index"`
	Counterparty string
	ProposalID   *uint32 `gorm:"index"`
	OrderID      string  `gorm:"index"`
	// Amount is kept as decimal text: sqlite integers are signed.
	Amount string
	Result string
	Line   string
	At     time.Time `gorm:"index"`
}

func (Entry) TableName() string {
	return "journal_entry"
}

// AmountValue parses the stored amount back.
func (e Entry) AmountValue() (sdk.Amount, error) {
	v, err := strconv.ParseUint(e.Amount, 10, 64)
	return sdk.Amount(v), err
}

// Journal is the audit trail of the treasury, stored in sqlite through gorm.
// It implements contract.EventSink.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ contract.EventSink = (*Journal)(nil)

// Open opens the journal at dsn ("file:<path>"). An empty dsn keeps the
// journal in memory, useful for testing.
// Example payload: journal.Open("file:.treasury/journal.db", logger)
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	inMemory := dsn == ""
	if inMemory {
		dsn = "file::memory:"
	} else if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if inMemory {
		// a private in-memory database lives as long as its only connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	logger.Debug(fmt.Sprintf("creating table: %#v", &Entry{}))
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// ensureDir creates the parent directory of a file: dsn.
func ensureDir(dsn string) error {
	path, ok := filePath(dsn)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read journal dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create journal dir: %w", err)
		}
	}
	return nil
}

func filePath(dsn string) (string, bool) {
	path, ok := strings.CutPrefix(dsn, "file:")
	if !ok {
		return "", false
	}
	path, _, _ = strings.Cut(path, "?")
	if path == "" || strings.HasPrefix(path, ":") {
		return "", false
	}
	return path, true
}

// Record stores the event.
func (j *Journal) Record(ctx context.Context, ev contract.Event) error {
	entry := Entry{
		Event:        ev.Code,
		Identity:     ev.Identity.String(),
		Counterparty: ev.Counterparty.String(),
		ProposalID:   ev.ProposalID,
		OrderID:      ev.OrderID,
		Amount:       strconv.FormatUint(uint64(ev.Amount), 10),
		Result:       ev.Result,
		Line:         ev.String(),
		At:           ev.At.UTC(),
	}
	if result := j.db.WithContext(ctx).Create(&entry); result.Error != nil {
		return fmt.Errorf("record %s: %w", ev.Code, result.Error)
	}
	return nil
}

// Query narrows List. Zero values match everything; Limit 0 means no limit.
type Query struct {
	Identity   sdk.Address
	ProposalID *uint32
	Event      string
	Limit      int
}

// List returns matching entries, oldest first.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	tx := j.db.WithContext(ctx).Model(&Entry{})
	if q.Identity != "" {
		tx = tx.Where("identity = ?", q.Identity.String())
	}
	if q.ProposalID != nil {
		tx = tx.Where("proposal_id = ?", *q.ProposalID)
	}
	if q.Event != "" {
		tx = tx.Where("event = ?", q.Event)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	entries := make([]Entry, 0)
	if result := tx.Order("id ASC").Find(&entries); result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
