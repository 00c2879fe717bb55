package service

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"papertrade/internal/database"
	"papertrade/internal/models"
	"papertrade/internal/quote"
)

// memStore implements Store in memory with commit/rollback semantics:
// mutations run on a copy and only replace the live state when the
// transaction callback succeeds.
type memStore struct {
	users map[int64]*memState
}

type memState struct {
	cash     decimal.Decimal
	holdings map[string]database.Holding
	log      []models.Transaction
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*memState{}}
}

func (m *memStore) addUser(id int64, cash decimal.Decimal) {
	m.users[id] = &memState{cash: cash, holdings: map[string]database.Holding{}}
}

func (s *memState) clone() *memState {
	c := &memState{cash: s.cash, holdings: map[string]database.Holding{}}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	c.log = append(c.log, s.log...)
	return c
}

func (m *memStore) InTrade(ctx context.Context, userID int64, fn func(tx database.LedgerTx) error) error {
	st, ok := m.users[userID]
	if !ok {
		return database.ErrNoUser
	}
	work := st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.users[userID] = work
	return nil
}

func (m *memStore) Cash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	st, ok := m.users[userID]
	if !ok {
		return decimal.Zero, database.ErrNoUser
	}
	return st.cash, nil
}

func (m *memStore) Holdings(ctx context.Context, userID int64) ([]database.Holding, error) {
	st, ok := m.users[userID]
	if !ok {
		return nil, database.ErrNoUser
	}
	res := []database.Holding{}
	for _, h := range st.holdings {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res, nil
}

func (m *memStore) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	st, ok := m.users[userID]
	if !ok {
		return nil, database.ErrNoUser
	}
	return append([]models.Transaction{}, st.log...), nil
}

type memTx struct {
	st *memState
}

func (t *memTx) Cash() (decimal.Decimal, error) { return t.st.cash, nil }

func (t *memTx) SetCash(cash decimal.Decimal) error {
	t.st.cash = cash
	return nil
}

func (t *memTx) Holding(symbol string) (database.Holding, bool, error) {
	h, ok := t.st.holdings[symbol]
	return h, ok, nil
}

func (t *memTx) PutHolding(h database.Holding) error {
	t.st.holdings[h.Symbol] = h
	return nil
}

func (t *memTx) DeleteHolding(symbol string) error {
	delete(t.st.holdings, symbol)
	return nil
}

func (t *memTx) Append(rec models.Transaction) error {
	t.st.log = append(t.st.log, rec)
	return nil
}

// stubQuotes serves fixed quotes and counts lookups.
type stubQuotes struct {
	prices  map[string]quote.Quote
	err     error
	lookups int
}

func (s *stubQuotes) Lookup(ctx context.Context, symbol string) (quote.Quote, error) {
	s.lookups++
	if s.err != nil {
		return quote.Quote{}, s.err
	}
	q, ok := s.prices[symbol]
	if !ok {
		return quote.Quote{}, quote.ErrUnknownSymbol
	}
	return q, nil
}

func newTrading(store *memStore, quotes *stubQuotes) *Trading {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTrading(store, quotes, logger)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func quotesFor(pairs map[string]string) *stubQuotes {
	q := &stubQuotes{prices: map[string]quote.Quote{}}
	for sym, price := range pairs {
		q.prices[sym] = quote.Quote{Symbol: sym, Name: sym + " Corp", Price: dec(price)}
	}
	return q
}

func TestBuy(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "50"}))

	balance, err := svc.Buy(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("9500")), "balance = %s", balance)

	st := store.users[1]
	require.True(t, st.cash.Equal(dec("9500")))
	h := st.holdings["AAA"]
	require.EqualValues(t, 10, h.Shares)
	require.True(t, h.AvgCost.Equal(dec("50")))
	require.Len(t, st.log, 1)
	require.Equal(t, models.ActionBuy, st.log[0].Action)
	require.True(t, st.log[0].Total.Equal(dec("500")))
}

func TestBuyAveragesCostBasis(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	quotes := quotesFor(map[string]string{"AAA": "50"})
	svc := newTrading(store, quotes)

	_, err := svc.Buy(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)

	quotes.prices["AAA"] = quote.Quote{Symbol: "AAA", Name: "AAA Corp", Price: dec("100")}
	_, err = svc.Buy(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)

	h := store.users[1].holdings["AAA"]
	require.EqualValues(t, 20, h.Shares)
	require.True(t, h.AvgCost.Equal(dec("75")), "avg cost = %s", h.AvgCost)
}

func TestBuyInsufficientFunds(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "50"}))

	_, err := svc.Buy(context.Background(), 1, "AAA", 10)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	st := store.users[1]
	require.True(t, st.cash.Equal(dec("100")), "cash must be unchanged")
	require.Empty(t, st.holdings)
	require.Empty(t, st.log)
}

func TestBuyExactBalanceSucceeds(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("500"))
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "50"}))

	balance, err := svc.Buy(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestBuyInvalidQuantity(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	quotes := quotesFor(map[string]string{"AAA": "50"})
	svc := newTrading(store, quotes)

	for _, shares := range []int64{0, -5} {
		_, err := svc.Buy(context.Background(), 1, "AAA", shares)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.Zero(t, quotes.lookups, "invalid quantity must fail before the quote fetch")
	require.True(t, store.users[1].cash.Equal(dec("10000")))
}

func TestBuyUnknownSymbol(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	svc := newTrading(store, quotesFor(nil))

	_, err := svc.Buy(context.Background(), 1, "NOPE", 1)
	require.ErrorIs(t, err, quote.ErrUnknownSymbol)
	require.True(t, store.users[1].cash.Equal(dec("10000")))
	require.Empty(t, store.users[1].log)
}

func TestBuyQuoteUnavailable(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	quotes := &stubQuotes{err: quote.ErrUnavailable}
	svc := newTrading(store, quotes)

	_, err := svc.Buy(context.Background(), 1, "AAA", 1)
	require.ErrorIs(t, err, quote.ErrUnavailable)
	require.Empty(t, store.users[1].log, "failed quote must leave no partial mutation")
}

func TestSellAll(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("9500"))
	store.users[1].holdings["AAA"] = database.Holding{Symbol: "AAA", Name: "AAA Corp", Shares: 10, AvgCost: dec("50")}
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	balance, err := svc.Sell(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("10100")), "balance = %s", balance)

	st := store.users[1]
	_, held := st.holdings["AAA"]
	require.False(t, held, "holding must be deleted at zero shares")
	require.Len(t, st.log, 1)
	require.Equal(t, models.ActionSell, st.log[0].Action)
	require.True(t, st.log[0].Total.Equal(dec("600")))
}

func TestSellPartial(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("0"))
	store.users[1].holdings["AAA"] = database.Holding{Symbol: "AAA", Name: "AAA Corp", Shares: 10, AvgCost: dec("50")}
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	balance, err := svc.Sell(context.Background(), 1, "AAA", 4)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("240")))

	h := store.users[1].holdings["AAA"]
	require.EqualValues(t, 6, h.Shares)
	require.True(t, h.AvgCost.Equal(dec("50")), "partial sell must not move avg cost")
}

func TestSellInsufficientShares(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	store.users[1].holdings["AAA"] = database.Holding{Symbol: "AAA", Name: "AAA Corp", Shares: 10, AvgCost: dec("50")}
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	_, err := svc.Sell(context.Background(), 1, "AAA", 11)
	require.ErrorIs(t, err, ErrInsufficientShares)

	st := store.users[1]
	require.True(t, st.cash.Equal(dec("100")))
	require.EqualValues(t, 10, st.holdings["AAA"].Shares)
	require.Empty(t, st.log)
}

func TestSellNothingHeld(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	_, err := svc.Sell(context.Background(), 1, "AAA", 1)
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestSellInvalidQuantity(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	for _, shares := range []int64{0, -1} {
		_, err := svc.Sell(context.Background(), 1, "AAA", shares)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestDeposit(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	svc := newTrading(store, quotesFor(nil))

	balance, err := svc.Deposit(context.Background(), 1, dec("250.75"))
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("350.75")))

	st := store.users[1]
	require.Len(t, st.log, 1)
	rec := st.log[0]
	require.Equal(t, models.ActionDeposit, rec.Action)
	require.Equal(t, models.DepositSymbol, rec.Symbol)
	require.Equal(t, models.DepositName, rec.Name)
	require.Zero(t, rec.Shares)
	require.True(t, rec.Total.Equal(dec("250.75")))
}

func TestDepositInvalidAmount(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	svc := newTrading(store, quotesFor(nil))

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, err := svc.Deposit(context.Background(), 1, dec(amount))
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %s", amount)
	}
	require.True(t, store.users[1].cash.Equal(dec("100")))
	require.Empty(t, store.users[1].log)
}

func TestPortfolioValuation(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("1234.56"))
	store.users[1].holdings["AAA"] = database.Holding{Symbol: "AAA", Name: "AAA Corp", Shares: 10, AvgCost: dec("40")}
	store.users[1].holdings["BBB"] = database.Holding{Symbol: "BBB", Name: "BBB Corp", Shares: 5, AvgCost: dec("15")}
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "50", "BBB": "20"}))

	view, err := svc.Portfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	require.True(t, view.Cash.Equal(dec("1234.56")))

	// grand total recomputed independently: cash + sum(shares * live price)
	want := dec("1234.56").Add(dec("50").Mul(dec("10"))).Add(dec("20").Mul(dec("5")))
	require.True(t, view.GrandTotal.Equal(want), "grand total = %s, want %s", view.GrandTotal, want)

	require.Equal(t, "AAA", view.Items[0].Symbol)
	require.True(t, view.Items[0].Value.Equal(dec("500")))
	require.Equal(t, "BBB", view.Items[1].Symbol)
	require.True(t, view.Items[1].Value.Equal(dec("100")))
}

func TestPortfolioSymbolGoneFromFeed(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("100"))
	store.users[1].holdings["GONE"] = database.Holding{Symbol: "GONE", Name: "Gone Inc", Shares: 1, AvgCost: dec("10")}
	svc := newTrading(store, quotesFor(nil))

	_, err := svc.Portfolio(context.Background(), 1)
	require.ErrorIs(t, err, quote.ErrUnavailable, "delisted symbol is retryable, not a crash")
}

func TestFullTradingRound(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("10000"))
	quotes := quotesFor(map[string]string{"AAA": "50"})
	svc := newTrading(store, quotes)

	balance, err := svc.Buy(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("9500")))

	quotes.prices["AAA"] = quote.Quote{Symbol: "AAA", Name: "AAA Corp", Price: dec("60")}
	balance, err = svc.Sell(context.Background(), 1, "AAA", 10)
	require.NoError(t, err)
	require.True(t, balance.Equal(dec("10100")))

	_, err = svc.Deposit(context.Background(), 1, dec("100"))
	require.NoError(t, err)

	history, err := svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, models.ActionBuy, history[0].Action)
	require.Equal(t, models.ActionSell, history[1].Action)
	require.Equal(t, models.ActionDeposit, history[2].Action)

	view, err := svc.Portfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.True(t, view.GrandTotal.Equal(dec("10200")))
}

func TestSellNormalizesSymbol(t *testing.T) {
	store := newMemStore()
	store.addUser(1, dec("0"))
	store.users[1].holdings["AAA"] = database.Holding{Symbol: "AAA", Name: "AAA Corp", Shares: 1, AvgCost: dec("50")}
	svc := newTrading(store, quotesFor(map[string]string{"AAA": "60"}))

	_, err := svc.Sell(context.Background(), 1, " aaa ", 1)
	require.NoError(t, err)
}
