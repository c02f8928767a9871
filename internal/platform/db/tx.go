package db

import (
	"context"
	"database/sql"
	"fmt"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx は COMMIT 成功後にだけ実行される副作用を登録できるトランザクション。
type Tx interface {
	DBTX
	// OnCommit は COMMIT 成功後に登録順で fn を実行する。ROLLBACK 時は破棄。
	OnCommit(fn func())
}

type hookTx struct {
	*sql.Tx
	hooks []func()
}

func (t *hookTx) OnCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// Txを開始して fn を実行。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// COMMIT が成功した場合のみ OnCommit で積まれた処理を流す。
func RunInTx(ctx context.Context, conn *Conn, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &hookTx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, h := range tx.hooks {
		h()
	}
	return nil
}
