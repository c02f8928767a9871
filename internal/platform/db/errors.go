package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ER_DUP_ENTRY
const mysqlErrDupEntry = 1062

// IsUniqueViolation は UNIQUE / PRIMARY KEY 制約違反かを見る。
// 事前の存在チェックをすり抜けた同時 INSERT をここで拾う。
func IsUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDupEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
