// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinPrice は価格として受け付ける最小値（1セント）。
var MinPrice = decimal.New(1, -2)

// IsValidPrice は価格が MinPrice 以上かつ小数第2位までで表せるかを返す。
// 保存先の NUMERIC(18, 2) で丸めが起きない値だけを受け付ける。
func IsValidPrice(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(MinPrice) && d.Equal(d.Truncate(2))
}

// Product は交渉対象となる商品を表す。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	CreatedAt   time.Time
}
