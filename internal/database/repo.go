package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrNoUser        = errors.New("user not found")
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// LedgerTx is the set of mutations available inside a single trade
// transaction. All of them touch rows owned by the user whose row lock the
// transaction holds; the whole set commits or rolls back together.
type LedgerTx interface {
	Cash() (decimal.Decimal, error)
	SetCash(cash decimal.Decimal) error
	Holding(symbol string) (Holding, bool, error)
	PutHolding(h Holding) error
	DeleteHolding(symbol string) error
	Append(rec models.Transaction) error
}

// InTrade runs fn inside one database transaction. It locks the user's row
// up front, so trades for the same user are serialized; an error from fn
// rolls every mutation back.
func (r *Repo) InTrade(ctx context.Context, userID int64, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lt := &ledgerTx{ctx: ctx, tx: tx, userID: userID}
	if _, err := lt.Cash(); err != nil {
		return err
	}
	if err := fn(lt); err != nil {
		return err
	}
	return tx.Commit()
}

type ledgerTx struct {
	ctx    context.Context
	tx     *sqlx.Tx
	userID int64
}

func (t *ledgerTx) Cash() (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := t.tx.QueryRowContext(t.ctx, `SELECT cash FROM users WHERE id = $1 FOR UPDATE`, t.userID).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNoUser
	}
	return cash, err
}

func (t *ledgerTx) SetCash(cash decimal.Decimal) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE users SET cash = $1::numeric WHERE id = $2`, cash.StringFixed(2), t.userID)
	return err
}

func (t *ledgerTx) Holding(symbol string) (Holding, bool, error) {
	var h Holding
	err := t.tx.QueryRowxContext(t.ctx,
		`SELECT symbol, name, shares, avg_cost, updated_at FROM portfolio WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		t.userID, symbol).StructScan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return Holding{}, false, nil
	}
	if err != nil {
		return Holding{}, false, err
	}
	return h, true, nil
}

func (t *ledgerTx) PutHolding(h Holding) error {
	upsert := `INSERT INTO portfolio (user_id, symbol, name, shares, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, now())
		ON CONFLICT (user_id, symbol)
		DO UPDATE SET name = EXCLUDED.name, shares = EXCLUDED.shares, avg_cost = EXCLUDED.avg_cost, updated_at = now()`
	_, err := t.tx.ExecContext(t.ctx, upsert, t.userID, h.Symbol, h.Name, h.Shares, h.AvgCost.StringFixed(4))
	return err
}

func (t *ledgerTx) DeleteHolding(symbol string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM portfolio WHERE user_id = $1 AND symbol = $2`, t.userID, symbol)
	return err
}

func (t *ledgerTx) Append(rec models.Transaction) error {
	q := `INSERT INTO transactions (user_id, symbol, name, shares, action, price, total)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`
	_, err := t.tx.ExecContext(t.ctx, q,
		t.userID, rec.Symbol, rec.Name, rec.Shares, rec.Action, rec.Price.StringFixed(4), rec.Total.StringFixed(2))
	return err
}

func (r *Repo) CreateUser(ctx context.Context, username, hash string, startingCash decimal.Decimal) (int64, error) {
	var id int64
	q := `INSERT INTO users (username, hash, cash) VALUES ($1, $2, $3::numeric) RETURNING id`
	err := r.db.QueryRowContext(ctx, q, username, hash, startingCash.StringFixed(2)).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, username, hash, cash, created_at FROM users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNoUser
	}
	return u, err
}

func (r *Repo) Cash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT cash FROM users WHERE id = $1`, userID).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNoUser
	}
	return cash, err
}

func (r *Repo) Holdings(ctx context.Context, userID int64) ([]Holding, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT symbol, name, shares, avg_cost, updated_at FROM portfolio WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Holding{}
	for rows.Next() {
		var h Holding
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r *Repo) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, user_id, symbol, name, shares, action, price, total, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var rec models.Transaction
		if err := rows.StructScan(&rec); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
