// Package books は蔵書カタログ。閲覧は誰でも、更新はスタッフのみ。
package books

import (
	"github.com/shopspring/decimal"
)

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

func (c Cover) Valid() bool { return c == CoverHard || c == CoverSoft }

// daily_fee は DECIMAL(6,2)
var maxDailyFee = decimal.RequireFromString("9999.99")

type Book struct {
	ID        int64
	Title     string
	Author    string
	Cover     Cover
	Inventory int
	DailyFee  decimal.Decimal
}

func (b *Book) IsAvailable() bool { return b.Inventory > 0 }
