package database

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	Symbol    string          `db:"symbol" json:"symbol"`
	Name      string          `db:"name" json:"name"`
	Shares    int64           `db:"shares" json:"shares"`
	AvgCost   decimal.Decimal `db:"avg_cost" json:"avg_cost"`
	UpdatedAt time.Time       `db:"updated_at" json:"-"`
}
