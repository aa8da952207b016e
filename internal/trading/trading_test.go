package trading_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/internal/database"
	"github.com/moneykids/invest-api/internal/member"
	"github.com/moneykids/invest-api/internal/points"
	"github.com/moneykids/invest-api/internal/stock"
	"github.com/moneykids/invest-api/internal/trading"
)

type testEnv struct {
	db      *gorm.DB
	service *trading.Service
	member  *member.Member
	stock   *stock.Stock
}

// newTestEnv opens a fresh database and seeds one member and one stock with
// today's price snapshot.
func newTestEnv(t *testing.T, balance, todayAvgPrice int64) *testEnv {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	m := &member.Member{
		MemberID: uuid.New().String(),
		Username: "tester",
		Name:     "Tester",
		Points:   balance,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}

	st := &stock.Stock{
		StockID: uuid.New().String(),
		Symbol:  "JJF",
		Name:    "Juju Foods",
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("failed to seed stock: %v", err)
	}

	if todayAvgPrice > 0 {
		seedPrice(t, db, st.StockID, time.Now(), todayAvgPrice)
	}

	return &testEnv{
		db:      db,
		service: trading.NewService(db),
		member:  m,
		stock:   st,
	}
}

func seedPrice(t *testing.T, db *gorm.DB, stockID string, day time.Time, avg int64) {
	t.Helper()
	price := &stock.StockPrice{
		StockID:   stockID,
		PriceDate: stock.Day(day),
		AvgPrice:  avg,
		HighPrice: avg,
		LowPrice:  avg,
	}
	if err := db.Create(price).Error; err != nil {
		t.Fatalf("failed to seed price: %v", err)
	}
}

// seedOpenBuy inserts an open BUY row directly, dated the given number of
// days in the past.
func seedOpenBuy(t *testing.T, db *gorm.DB, memberID, stockID string, daysAgo int, tradePoints, pricePerUnit int64) string {
	t.Helper()
	trade := &trading.StockTrade{
		TradeID:      uuid.New().String(),
		MemberID:     memberID,
		StockID:      stockID,
		TradeDate:    stock.Day(time.Now().AddDate(0, 0, -daysAgo)),
		Side:         trading.SideBuy,
		TradePoints:  tradePoints,
		PricePerUnit: pricePerUnit,
	}
	if err := db.Create(trade).Error; err != nil {
		t.Fatalf("failed to seed trade: %v", err)
	}
	return trade.TradeID
}

func memberBalance(t *testing.T, db *gorm.DB, memberID string) int64 {
	t.Helper()
	var m member.Member
	if err := db.Where("member_id = ?", memberID).First(&m).Error; err != nil {
		t.Fatalf("failed to load member: %v", err)
	}
	return m.Points
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return n
}

func TestBuyDebitsPointsAndRecordsTrade(t *testing.T) {
	env := newTestEnv(t, 1000, 120)

	result, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 400)
	if err != nil {
		t.Fatalf("Buy returned unexpected error: %v", err)
	}

	if result.AllInWarning {
		t.Error("expected no all-in warning for a partial commitment")
	}
	if result.PricePerUnit != 120 {
		t.Errorf("expected price per unit 120, got %d", result.PricePerUnit)
	}

	if got := memberBalance(t, env.db, env.member.MemberID); got != 600 {
		t.Errorf("expected balance 600 after debit, got %d", got)
	}

	var movement points.PointMovement
	if err := env.db.Where("member_id = ?", env.member.MemberID).First(&movement).Error; err != nil {
		t.Fatalf("expected a ledger entry: %v", err)
	}
	if movement.Amount != 400 || movement.Status != points.StatusUsed || movement.Type != points.TypeStock {
		t.Errorf("unexpected ledger entry: amount=%d status=%s type=%s",
			movement.Amount, movement.Status, movement.Type)
	}

	var trade trading.StockTrade
	if err := env.db.Where("trade_id = ?", result.TradeID).First(&trade).Error; err != nil {
		t.Fatalf("expected a trade row: %v", err)
	}
	if trade.Side != trading.SideBuy || trade.TradePoints != 400 || trade.PricePerUnit != 120 {
		t.Errorf("unexpected trade row: side=%s points=%d price=%d",
			trade.Side, trade.TradePoints, trade.PricePerUnit)
	}
}

func TestBuyAllInWarning(t *testing.T) {
	env := newTestEnv(t, 500, 100)

	result, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 500)
	if err != nil {
		t.Fatalf("Buy returned unexpected error: %v", err)
	}
	if !result.AllInWarning {
		t.Error("expected all-in warning when committing the entire balance")
	}
	if got := memberBalance(t, env.db, env.member.MemberID); got != 0 {
		t.Errorf("expected balance 0 after all-in buy, got %d", got)
	}
}

func TestBuyInsufficientPointsLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t, 300, 100)

	_, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 301)
	if !errors.Is(err, trading.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	if got := memberBalance(t, env.db, env.member.MemberID); got != 300 {
		t.Errorf("balance changed on rejected buy: %d", got)
	}
	if n := countRows(t, env.db, &trading.StockTrade{}); n != 0 {
		t.Errorf("expected no trade rows, found %d", n)
	}
	if n := countRows(t, env.db, &points.PointMovement{}); n != 0 {
		t.Errorf("expected no ledger entries, found %d", n)
	}
}

func TestBuyTwiceSameDayRejected(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}

	_, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100)
	if !errors.Is(err, trading.ErrAlreadyBought) {
		t.Fatalf("expected ErrAlreadyBought, got %v", err)
	}

	if got := memberBalance(t, env.db, env.member.MemberID); got != 900 {
		t.Errorf("second buy should not touch the balance, got %d", got)
	}
}

func TestBuyUnknownStockOrMember(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	if _, err := env.service.Buy(env.member.MemberID, "no-such-stock", 100); !errors.Is(err, trading.ErrStockNotFound) {
		t.Errorf("expected ErrStockNotFound, got %v", err)
	}
	if _, err := env.service.Buy("no-such-member", env.stock.StockID, 100); !errors.Is(err, trading.ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestBuyWithoutTodaySnapshot(t *testing.T) {
	env := newTestEnv(t, 1000, 0)
	// Only yesterday's snapshot exists; it must not be used as a fallback
	seedPrice(t, env.db, env.stock.StockID, time.Now().AddDate(0, 0, -1), 100)

	_, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100)
	if !errors.Is(err, stock.ErrPriceNotFound) {
		t.Fatalf("expected ErrPriceNotFound, got %v", err)
	}

	if got := memberBalance(t, env.db, env.member.MemberID); got != 1000 {
		t.Errorf("rejected buy must not debit points, balance %d", got)
	}
}

func TestBuyInvalidTradePoints(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	for _, pts := range []int64{0, -50} {
		if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, pts); !errors.Is(err, trading.ErrInvalidTradePoints) {
			t.Errorf("trade points %d: expected ErrInvalidTradePoints, got %v", pts, err)
		}
	}
}

func TestSellSingleOrderProfit(t *testing.T) {
	env := newTestEnv(t, 0, 110)
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 1000, 100)

	result, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("Sell returned unexpected error: %v", err)
	}

	if result.TotalPayout != 1100 {
		t.Errorf("expected payout 1100, got %d", result.TotalPayout)
	}
	if result.Profit != 100 {
		t.Errorf("expected profit 100, got %d", result.Profit)
	}
	if got := memberBalance(t, env.db, env.member.MemberID); got != 1100 {
		t.Errorf("expected exactly 1100 points credited, balance %d", got)
	}

	var movement points.PointMovement
	if err := env.db.Where("member_id = ? AND status = ?", env.member.MemberID, points.StatusEarned).
		First(&movement).Error; err != nil {
		t.Fatalf("expected an EARNED ledger entry: %v", err)
	}
	if movement.Amount != 1100 {
		t.Errorf("expected ledger credit of 1100, got %d", movement.Amount)
	}
}

func TestSellMultipleOrdersRoundsEachPayout(t *testing.T) {
	env := newTestEnv(t, 0, 150)
	idA := seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 2, 500, 100)
	idB := seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 300, 200)

	result, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("Sell returned unexpected error: %v", err)
	}

	// rate A = 1.5 -> 750, rate B = 0.75 -> 225
	if result.TotalPayout != 975 {
		t.Errorf("expected payout 975, got %d", result.TotalPayout)
	}
	if result.InvestedPoints != 800 {
		t.Errorf("expected invested 800, got %d", result.InvestedPoints)
	}
	if result.Profit != 175 {
		t.Errorf("expected profit 175, got %d", result.Profit)
	}
	if result.OrdersClosed != 2 {
		t.Errorf("expected 2 orders closed, got %d", result.OrdersClosed)
	}

	for _, id := range []string{idA, idB} {
		var trade trading.StockTrade
		if err := env.db.Where("trade_id = ?", id).First(&trade).Error; err != nil {
			t.Fatalf("failed to load trade %s: %v", id, err)
		}
		if trade.Side != trading.SideSell {
			t.Errorf("trade %s not flipped to SELL", id)
		}
		if trade.SoldAt == nil {
			t.Errorf("trade %s has no sold_at timestamp", id)
		}
	}
}

func TestSellAtLossReturnsNegativeProfit(t *testing.T) {
	env := newTestEnv(t, 0, 80)
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 1000, 100)

	result, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("Sell returned unexpected error: %v", err)
	}
	if result.Profit != -200 {
		t.Errorf("expected profit -200, got %d", result.Profit)
	}
	if got := memberBalance(t, env.db, env.member.MemberID); got != 800 {
		t.Errorf("expected 800 points credited, balance %d", got)
	}
}

func TestSellWithNoOpenPosition(t *testing.T) {
	env := newTestEnv(t, 0, 100)

	_, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if !errors.Is(err, trading.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
	if n := countRows(t, env.db, &points.PointMovement{}); n != 0 {
		t.Errorf("rejected sell must not touch the ledger, found %d entries", n)
	}
}

func TestSellTwiceSameDayRejected(t *testing.T) {
	env := newTestEnv(t, 0, 100)
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 2, 100, 100)
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 100, 100)

	if _, err := env.service.Sell(env.member.MemberID, env.stock.StockID); err != nil {
		t.Fatalf("first sell failed: %v", err)
	}

	// A freshly opened position does not unlock a second sell today
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 0, 100, 100)

	_, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if !errors.Is(err, trading.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold, got %v", err)
	}
}

func TestSellWithoutTodaySnapshot(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	seedPrice(t, env.db, env.stock.StockID, time.Now().AddDate(0, 0, -1), 100)
	seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 100, 100)

	_, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if !errors.Is(err, stock.ErrPriceNotFound) {
		t.Fatalf("expected ErrPriceNotFound, got %v", err)
	}

	var trade trading.StockTrade
	if err := env.db.Where("member_id = ?", env.member.MemberID).First(&trade).Error; err != nil {
		t.Fatalf("failed to load trade: %v", err)
	}
	if trade.Side != trading.SideBuy {
		t.Error("rejected sell must leave the position open")
	}
}

func TestRebuyAfterSameDaySell(t *testing.T) {
	env := newTestEnv(t, 500, 100)

	if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := env.service.Sell(env.member.MemberID, env.stock.StockID); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	// The flipped row shares today's trade date with the re-buy; only open
	// BUY rows count toward the daily limit
	if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100); err != nil {
		t.Fatalf("re-buy after a same-day sell failed: %v", err)
	}
}

func TestSellFlipsRebuySharingTradeDate(t *testing.T) {
	env := newTestEnv(t, 0, 100)

	// Yesterday the member bought, sold, and bought again: the flipped row
	// and the still-open re-buy share a trade date
	soldAt := time.Now().AddDate(0, 0, -1)
	flipped := &trading.StockTrade{
		TradeID:      uuid.New().String(),
		MemberID:     env.member.MemberID,
		StockID:      env.stock.StockID,
		TradeDate:    stock.Day(soldAt),
		Side:         trading.SideSell,
		TradePoints:  100,
		PricePerUnit: 100,
		SoldAt:       &soldAt,
	}
	if err := env.db.Create(flipped).Error; err != nil {
		t.Fatalf("failed to seed flipped trade: %v", err)
	}
	rebuyID := seedOpenBuy(t, env.db, env.member.MemberID, env.stock.StockID, 1, 200, 100)

	// Today's sell flips the re-buy into a second SELL row on the same date
	result, err := env.service.Sell(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("sell after a same-day re-buy failed: %v", err)
	}
	if result.OrdersClosed != 1 || result.TotalPayout != 200 {
		t.Errorf("expected only the open re-buy closed for 200, got %+v", result)
	}

	var trade trading.StockTrade
	if err := env.db.Where("trade_id = ?", rebuyID).First(&trade).Error; err != nil {
		t.Fatalf("failed to load trade: %v", err)
	}
	if trade.Side != trading.SideSell || trade.SoldAt == nil {
		t.Errorf("re-buy not flipped: side=%s sold_at=%v", trade.Side, trade.SoldAt)
	}
}

func TestIsTradeAvailable(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	avail, err := env.service.IsTradeAvailable(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("IsTradeAvailable returned unexpected error: %v", err)
	}
	if !avail.CanBuy || !avail.CanSell {
		t.Errorf("expected both flags true before trading, got %+v", avail)
	}

	if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	avail, err = env.service.IsTradeAvailable(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("IsTradeAvailable returned unexpected error: %v", err)
	}
	if avail.CanBuy {
		t.Error("expected can_buy false after today's buy")
	}
	if !avail.CanSell {
		t.Error("expected can_sell true before today's sell")
	}

	if _, err := env.service.Sell(env.member.MemberID, env.stock.StockID); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	avail, err = env.service.IsTradeAvailable(env.member.MemberID, env.stock.StockID)
	if err != nil {
		t.Fatalf("IsTradeAvailable returned unexpected error: %v", err)
	}
	if avail.CanSell {
		t.Error("expected can_sell false after today's sell")
	}
}

func TestIsTradeAvailableValidatesExistence(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	if _, err := env.service.IsTradeAvailable("no-such-member", env.stock.StockID); !errors.Is(err, trading.ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
	if _, err := env.service.IsTradeAvailable(env.member.MemberID, "no-such-stock"); !errors.Is(err, trading.ErrStockNotFound) {
		t.Errorf("expected ErrStockNotFound, got %v", err)
	}
}

func TestConcurrentBuysOnlyOneSucceeds(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 100)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, trading.ErrAlreadyBought):
			rejected++
		default:
			t.Errorf("unexpected error from concurrent buy: %v", err)
		}
	}

	if succeeded != 1 {
		t.Errorf("expected exactly one successful buy, got %d", succeeded)
	}
	if rejected != attempts-1 {
		t.Errorf("expected %d AlreadyBought rejections, got %d", attempts-1, rejected)
	}
	if got := memberBalance(t, env.db, env.member.MemberID); got != 900 {
		t.Errorf("expected a single debit, balance %d", got)
	}
}

func TestGetHoldingsJoinsStockData(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	if _, err := env.service.Buy(env.member.MemberID, env.stock.StockID, 250); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	holdings, err := env.service.GetHoldings(env.member.MemberID)
	if err != nil {
		t.Fatalf("GetHoldings returned unexpected error: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0]
	if h.Symbol != "JJF" || h.StockName != "Juju Foods" {
		t.Errorf("stock data not joined: %+v", h)
	}
	if h.Side != trading.SideBuy || h.TradePoints != 250 {
		t.Errorf("unexpected holding: %+v", h)
	}
}
