package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"LIBRA-backend/internal/platform/config"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Conn は *sql.DB にドライバ名を添えたもの。
// MySQL と SQLite で行ロック構文が異なるため store 側が参照する。
type Conn struct {
	*sql.DB
	Driver string
}

// ForUpdate は行ロック句を返す。
// SQLite には FOR UPDATE が無い代わりに _txlock=immediate で書き込み Tx 全体が直列化される。
func (c *Conn) ForUpdate() string {
	if c.Driver == DriverMySQL {
		return " FOR UPDATE"
	}
	return ""
}

func Connect(c config.DatabaseConfig) (*Conn, error) {
	switch c.Driver {
	case DriverMySQL:
		return connectMySQL(c)
	case DriverSQLite:
		return OpenSQLite(c.Path)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

func connectMySQL(c config.DatabaseConfig) (*Conn, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Conn{DB: db, Driver: DriverMySQL}, nil
}

// OpenSQLite は開発・テスト用。ファイルが無ければ作る。
func OpenSQLite(path string) (*Conn, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return &Conn{DB: db, Driver: DriverSQLite}, nil
}
