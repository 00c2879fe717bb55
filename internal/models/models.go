package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionBuy     = "BUY"
	ActionSell    = "SELL"
	ActionDeposit = "DEPOSIT"
)

// Sentinel values recorded on deposit rows, which carry no real symbol.
const (
	DepositSymbol = "DEPOSIT"
	DepositName   = "Account Deposit"
)

type User struct {
	ID        int64           `db:"id" json:"id"`
	Username  string          `db:"username" json:"username"`
	Hash      string          `db:"hash" json:"-"`
	Cash      decimal.Decimal `db:"cash" json:"cash"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Transaction struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"-"`
	Symbol    string          `db:"symbol" json:"symbol"`
	Name      string          `db:"name" json:"name"`
	Shares    int64           `db:"shares" json:"shares"`
	Action    string          `db:"action" json:"action"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CreatedAt time.Time       `db:"created_at" json:"timestamp"`
}
