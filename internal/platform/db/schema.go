package db

import (
	"context"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Bootstrap はテーブルが無ければ作成する（開発用 SQLite とテスト向け）。
// 本番のスキーマ変更は DBA 管理なのでここでは扱わない。
func Bootstrap(ctx context.Context, conn *Conn) error {
	var name string
	switch conn.Driver {
	case DriverMySQL:
		name = "schema/mysql.sql"
	case DriverSQLite:
		name = "schema/sqlite.sql"
	default:
		return fmt.Errorf("no schema for driver %s", conn.Driver)
	}

	buf, err := schemaFS.ReadFile(name)
	if err != nil {
		return err
	}

	// go-sql-driver/mysql は multiStatements 無しだと複文を受け付けないので1文ずつ流す
	for _, stmt := range strings.Split(string(buf), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
