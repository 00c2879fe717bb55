package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/database"
	"papertrade/internal/models"
	"papertrade/internal/quote"
)

var (
	ErrInvalidQuantity    = errors.New("share count must be a positive whole number")
	ErrInsufficientFunds  = errors.New("not enough cash to complete transaction")
	ErrInsufficientShares = errors.New("request exceeds number of shares owned")
	ErrInvalidAmount      = errors.New("deposit amount must be positive")
)

// Store is the persistence surface the trading service needs. Implemented by
// database.Repo.
type Store interface {
	InTrade(ctx context.Context, userID int64, fn func(tx database.LedgerTx) error) error
	Cash(ctx context.Context, userID int64) (decimal.Decimal, error)
	Holdings(ctx context.Context, userID int64) ([]database.Holding, error)
	Transactions(ctx context.Context, userID int64) ([]models.Transaction, error)
}

type PortfolioItem struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

type PortfolioView struct {
	Items      []PortfolioItem `json:"items"`
	Cash       decimal.Decimal `json:"cash"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type Trading struct {
	store  Store
	quotes quote.Provider
	log    *logrus.Logger
}

func NewTrading(store Store, quotes quote.Provider, log *logrus.Logger) *Trading {
	return &Trading{store: store, quotes: quotes, log: log}
}

// Buy resolves the current price, then debits cash, grows the holding and
// appends a BUY record in one transaction. Returns the updated cash balance.
func (s *Trading) Buy(ctx context.Context, userID int64, symbol string, shares int64) (decimal.Decimal, error) {
	if shares <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	q, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(shares))

	var balance decimal.Decimal
	err = s.store.InTrade(ctx, userID, func(tx database.LedgerTx) error {
		cash, err := tx.Cash()
		if err != nil {
			return err
		}
		if cost.GreaterThan(cash) {
			return ErrInsufficientFunds
		}
		balance = cash.Sub(cost)
		if err := tx.SetCash(balance); err != nil {
			return err
		}

		h, ok, err := tx.Holding(q.Symbol)
		if err != nil {
			return err
		}
		if !ok {
			h = database.Holding{Symbol: q.Symbol}
		}
		oldShares := h.Shares
		h.Shares = oldShares + shares
		h.Name = q.Name
		// avg cost over the whole position, not the raw sum of trade prices
		h.AvgCost = h.AvgCost.Mul(decimal.NewFromInt(oldShares)).Add(cost).
			Div(decimal.NewFromInt(h.Shares)).Round(4)
		if err := tx.PutHolding(h); err != nil {
			return err
		}

		return tx.Append(models.Transaction{
			UserID: userID,
			Symbol: q.Symbol,
			Name:   q.Name,
			Shares: shares,
			Action: models.ActionBuy,
			Price:  q.Price,
			Total:  cost,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Infof("user %d bought %d %s at %s", userID, shares, q.Symbol, q.Price.StringFixed(2))
	return balance, nil
}

// Sell checks the held share count before resolving the price, then credits
// the proceeds, shrinks the holding (deleting it at zero) and appends a SELL
// record in one transaction. Returns the updated cash balance.
func (s *Trading) Sell(ctx context.Context, userID int64, symbol string, shares int64) (decimal.Decimal, error) {
	if shares <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}

	var balance decimal.Decimal
	err := s.store.InTrade(ctx, userID, func(tx database.LedgerTx) error {
		h, ok, err := tx.Holding(normalizeSymbol(symbol))
		if err != nil {
			return err
		}
		if !ok || shares > h.Shares {
			return ErrInsufficientShares
		}

		q, err := s.quotes.Lookup(ctx, h.Symbol)
		if err != nil {
			return err
		}
		proceeds := q.Price.Mul(decimal.NewFromInt(shares))

		cash, err := tx.Cash()
		if err != nil {
			return err
		}
		balance = cash.Add(proceeds)
		if err := tx.SetCash(balance); err != nil {
			return err
		}

		h.Shares -= shares
		if h.Shares == 0 {
			if err := tx.DeleteHolding(h.Symbol); err != nil {
				return err
			}
		} else {
			if err := tx.PutHolding(h); err != nil {
				return err
			}
		}

		return tx.Append(models.Transaction{
			UserID: userID,
			Symbol: h.Symbol,
			Name:   h.Name,
			Shares: shares,
			Action: models.ActionSell,
			Price:  q.Price,
			Total:  proceeds,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Infof("user %d sold %d %s", userID, shares, symbol)
	return balance, nil
}

// Deposit credits cash and appends a DEPOSIT record in one transaction.
// Fractional amounts are accepted down to whole cents.
func (s *Trading) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) || amount.Exponent() < -2 {
		return decimal.Zero, ErrInvalidAmount
	}

	var balance decimal.Decimal
	err := s.store.InTrade(ctx, userID, func(tx database.LedgerTx) error {
		cash, err := tx.Cash()
		if err != nil {
			return err
		}
		balance = cash.Add(amount)
		if err := tx.SetCash(balance); err != nil {
			return err
		}
		return tx.Append(models.Transaction{
			UserID: userID,
			Symbol: models.DepositSymbol,
			Name:   models.DepositName,
			Shares: 0,
			Action: models.ActionDeposit,
			Price:  amount,
			Total:  amount,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Portfolio re-resolves every held symbol's price from the quote service and
// values the position at it. A symbol the feed no longer knows makes the
// whole valuation fail as retryable rather than silently dropping rows.
func (s *Trading) Portfolio(ctx context.Context, userID int64) (PortfolioView, error) {
	holdings, err := s.store.Holdings(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}
	cash, err := s.store.Cash(ctx, userID)
	if err != nil {
		return PortfolioView{}, err
	}

	view := PortfolioView{Items: []PortfolioItem{}, Cash: cash, GrandTotal: cash}
	for _, h := range holdings {
		q, err := s.quotes.Lookup(ctx, h.Symbol)
		if errors.Is(err, quote.ErrUnknownSymbol) {
			s.log.Warnf("held symbol %s missing from quote feed", h.Symbol)
			return PortfolioView{}, quote.ErrUnavailable
		}
		if err != nil {
			return PortfolioView{}, err
		}
		value := q.Price.Mul(decimal.NewFromInt(h.Shares))
		view.Items = append(view.Items, PortfolioItem{
			Symbol: h.Symbol,
			Name:   h.Name,
			Shares: h.Shares,
			Price:  q.Price,
			Value:  value,
		})
		view.GrandTotal = view.GrandTotal.Add(value)
	}
	return view, nil
}

// History returns the user's transaction log, oldest first.
func (s *Trading) History(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return s.store.Transactions(ctx, userID)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
