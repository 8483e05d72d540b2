// Package sqlstore persists chat messages in a relational database through
// gorm. MySQL is used in deployment and SQLite for local runs and tests.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	"github.com/mattn/go-sqlite3"
	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"go.uber.org/zap"
)

const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite3"

	mysqlDuplicateEntry = 1062
)

// messageRow maps onto the existing messages table: eventid, userid, msgtxt, Ts
type messageRow struct {
	EventID string    `gorm:"column:eventid;primary_key;type:varchar(64)"`
	UserID  string    `gorm:"column:userid;index;type:varchar(64)"`
	Text    string    `gorm:"column:msgtxt;type:text"`
	Ts      time.Time `gorm:"column:Ts;index"`
}

// Store is a message store. Each call opens and closes its own connection.
type Store struct {
	dialect string
	dsn     string
	table   string
	now     func() time.Time
}

// MySQLOptions describes a MySQL connection
type MySQLOptions struct {
	Host           string
	Username       string
	Password       string
	Database       string
	Table          string
	ConnectTimeout time.Duration
}

// NewMySQL returns a store backed by MySQL
func NewMySQL(opts MySQLOptions) (*Store, error) {
	addr := opts.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "3306")
	}

	cfg := mysql.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = opts.Database
	cfg.Timeout = opts.ConnectTimeout
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	return New(DialectMySQL, cfg.FormatDSN(), opts.Table)
}

// NewSQLite returns a store backed by the SQLite file at dbPath. Relative
// paths are resolved against the working directory.
func NewSQLite(dbPath, table string) (*Store, error) {
	if !path.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		dbPath = path.Join(wd, dbPath)
	}
	if err := os.MkdirAll(path.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return New(DialectSQLite, dbPath, table)
}

// New returns a store for the given gorm dialect and migrates the table
func New(dialect, dsn, table string) (*Store, error) {
	s := &Store{
		dialect: dialect,
		dsn:     dsn,
		table:   table,
		now:     time.Now,
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.Table(table).AutoMigrate(&messageRow{}).Error; err != nil {
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return s, nil
}

func (s *Store) open() (*gorm.DB, error) {
	db, err := gorm.Open(s.dialect, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.dialect, err)
	}
	db.LogMode(false)
	return db, nil
}

// Insert stores one record. An existing event id yields apperr.ErrDuplicate.
func (s *Store) Insert(ctx context.Context, record models.MessageRecord) error {
	const op = "sqlstore.Insert"

	db, err := s.open()
	if err != nil {
		return apperr.Storage(op, err)
	}
	defer db.Close()

	ts := record.Ts
	if ts.IsZero() {
		ts = s.now()
	}
	row := messageRow{
		EventID: record.EventID,
		UserID:  record.UserID,
		Text:    record.Text,
		Ts:      ts.UTC(),
	}

	if err := db.Table(s.table).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return apperr.Storage(op, apperr.ErrDuplicate)
		}
		return apperr.Storage(op, err)
	}

	logger.FromContext(ctx).Debug("Stored message",
		zap.String("event_id", record.EventID),
		zap.String("table", s.table))
	return nil
}

// RecentByUser returns the user's records with Ts >= since
func (s *Store) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.MessageRecord, error) {
	const op = "sqlstore.RecentByUser"

	db, err := s.open()
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer db.Close()

	var rows []messageRow
	err = db.Table(s.table).
		Where("userid = ? AND Ts >= ?", userID, since.UTC()).
		Order("Ts asc").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	records := make([]models.MessageRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.MessageRecord{
			EventID: row.EventID,
			UserID:  row.UserID,
			Text:    row.Text,
			Ts:      row.Ts,
		})
	}

	logger.FromContext(ctx).Debug("Loaded recent messages",
		zap.String("user_id", userID),
		zap.Int("count", len(records)))
	return records, nil
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
