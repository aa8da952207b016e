package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/moneykids/invest-api/internal/auth"
	"github.com/moneykids/invest-api/internal/config"
	"github.com/moneykids/invest-api/internal/database"
	"github.com/moneykids/invest-api/internal/member"
	"github.com/moneykids/invest-api/internal/points"
	"github.com/moneykids/invest-api/internal/stock"
	"github.com/moneykids/invest-api/internal/trading"
	"github.com/moneykids/invest-api/pkg/middleware"
)

const (
	numMembers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "invest-simulation-secret"
)

var catalog = []struct {
	symbol string
	name   string
}{
	{"JJF", "Juju Foods"},
	{"KTT", "Kiddy Transit"},
	{"PXL", "Pixel Toys"},
	{"BBR", "Bubble Robotics"},
	{"SNK", "Snack Rocket"},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// memberClient drives the API as one authenticated simulated member
type memberClient struct {
	baseURL   string
	username  string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
	statsMu   *sync.Mutex
}

// newMemberClient authenticates the member's API credentials and prepares a client
func newMemberClient(username, apiKey, apiSecret string, stats map[string]*routeStats, statsMu *sync.Mutex) (*memberClient, error) {
	mc := &memberClient{
		baseURL:  serverAddress,
		username: username,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats:   stats,
		statsMu: statsMu,
	}

	token, err := mc.authenticate(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	mc.authToken = token

	return mc, nil
}

func (mc *memberClient) record(route string, start time.Time, failed bool) {
	mc.statsMu.Lock()
	defer mc.statsMu.Unlock()
	mc.stats[route].addDuration(time.Since(start))
	if failed {
		mc.stats[route].failures++
	}
}

// authenticate performs API authentication and returns a JWT token
func (mc *memberClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	failed := false
	defer func() { mc.record("auth", start, failed) }()

	body, err := json.Marshal(auth.Credentials{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	if err != nil {
		failed = true
		return "", err
	}

	resp, err := mc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", mc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		failed = true
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failed = true
		return "", err
	}

	return result.Data.Token, nil
}

// doJSON performs an authenticated request and decodes the envelope's data
// field into out. Non-2xx statuses are returned as errors with the body.
func (mc *memberClient) doJSON(method, path, route string, reqBody, out interface{}) error {
	start := time.Now()
	failed := false
	defer func() { mc.record(route, start, failed) }()

	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			failed = true
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, mc.baseURL+path, body)
	if err != nil {
		failed = true
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", mc.authToken))
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := mc.client.Do(req)
	if err != nil {
		failed = true
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		failed = true
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return fmt.Errorf("%s failed with status %d: %s", route, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		failed = true
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(envelope.Data, out)
}

func (mc *memberClient) availability(stockID string) (*trading.TradeAvailability, error) {
	var out trading.TradeAvailability
	err := mc.doJSON("GET", "/api/v1/trading/"+stockID+"/available", "available", nil, &out)
	return &out, err
}

func (mc *memberClient) buy(stockID string, tradePoints int64) (*trading.BuyResult, error) {
	var out trading.BuyResult
	err := mc.doJSON("POST", "/api/v1/trading/"+stockID+"/buy", "buy",
		map[string]int64{"trade_points": tradePoints}, &out)
	return &out, err
}

func (mc *memberClient) sell(stockID string) (*trading.SellResult, error) {
	var out trading.SellResult
	err := mc.doJSON("POST", "/api/v1/trading/"+stockID+"/sell", "sell", nil, &out)
	return &out, err
}

func (mc *memberClient) holdings() ([]trading.Holding, error) {
	var out []trading.Holding
	err := mc.doJSON("GET", "/api/v1/trading/holdings", "holdings", nil, &out)
	return out, err
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

type simMember struct {
	username  string
	apiKey    string
	apiSecret string
}

// main runs the invest simulation: it starts a local API server, registers a
// handful of members, and has each of them trade the catalog for one day.
func main() {
	stockIDs, members, err := startServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"auth":      {name: "Authentication"},
		"available": {name: "Availability"},
		"buy":       {name: "Buy"},
		"sell":      {name: "Sell"},
		"holdings":  {name: "Holdings"},
	}
	var statsMu sync.Mutex

	summary := struct {
		Buys          int
		AllInWarnings int
		Sells         int
		TotalProfit   int64
		Rejections    int
		StartTime     time.Time
	}{StartTime: time.Now()}
	var summaryMu sync.Mutex

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m simMember) {
			defer wg.Done()

			mc, err := newMemberClient(m.username, m.apiKey, m.apiSecret, stats, &statsMu)
			if err != nil {
				log.Error().Err(err).Str("username", m.username).Msg("Failed to authenticate member")
				return
			}

			for _, stockID := range stockIDs {
				avail, err := mc.availability(stockID)
				if err != nil {
					log.Error().Err(err).Str("username", m.username).Msg("Availability check failed")
					continue
				}
				if !avail.CanBuy {
					continue
				}

				tradePoints := int64(rand.Intn(300) + 50)
				result, err := mc.buy(stockID, tradePoints)
				if err != nil {
					summaryMu.Lock()
					summary.Rejections++
					summaryMu.Unlock()
					log.Warn().Err(err).Str("username", m.username).Msg("Buy rejected")
					continue
				}

				summaryMu.Lock()
				summary.Buys++
				if result.AllInWarning {
					summary.AllInWarnings++
				}
				summaryMu.Unlock()

				log.Info().
					Str("username", m.username).
					Str("trade_id", result.TradeID).
					Int64("trade_points", result.TradePoints).
					Int64("price_per_unit", result.PricePerUnit).
					Bool("all_in_warning", result.AllInWarning).
					Msg("Bought stock")

				// A second buy the same day must be rejected
				if _, err := mc.buy(stockID, tradePoints); err == nil {
					log.Error().Str("username", m.username).Msg("Duplicate buy unexpectedly accepted")
				}

				time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
			}

			// Liquidate a couple of positions
			for _, stockID := range stockIDs[:2] {
				sellResult, err := mc.sell(stockID)
				if err != nil {
					summaryMu.Lock()
					summary.Rejections++
					summaryMu.Unlock()
					log.Warn().Err(err).Str("username", m.username).Msg("Sell rejected")
					continue
				}

				summaryMu.Lock()
				summary.Sells++
				summary.TotalProfit += sellResult.Profit
				summaryMu.Unlock()

				log.Info().
					Str("username", m.username).
					Int64("payout", sellResult.TotalPayout).
					Int64("profit", sellResult.Profit).
					Int("orders_closed", sellResult.OrdersClosed).
					Msg("Sold stock")
			}

			holdings, err := mc.holdings()
			if err != nil {
				log.Error().Err(err).Str("username", m.username).Msg("Failed to fetch holdings")
				return
			}
			log.Info().
				Str("username", m.username).
				Int("trades", len(holdings)).
				Msg("Final holdings")
		}(m)
	}
	wg.Wait()

	duration := time.Since(summary.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("INVEST SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Members:         %d
Buys:            %d
All-in warnings: %d
Sells:           %d
Total profit:    %d points
Rejections:      %d
Duration:        %v
`, len(members), summary.Buys, summary.AllInWarnings, summary.Sells,
		summary.TotalProfit, summary.Rejections, duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))

	printPerformanceStats(stats)
}

// startServer initializes the invest API server with a seeded catalog,
// price snapshots, and one set of API credentials per simulated member.
// Returns the stock IDs and member credentials for the simulation loop.
func startServer() ([]string, []simMember, error) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = "simulation.db"
	cfg.Auth.JWTSecret = jwtSecret

	db, err := database.NewDatabase(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(cfg.Auth.JWTSecret)
	memberService := member.NewService(db)
	pointsService := points.NewService(db)
	stockService := stock.NewService(db)
	tradingService := trading.NewService(db)

	// Seed the catalog and make sure today's snapshots exist before trading
	stockIDs := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		st, err := stockService.CreateStock(entry.symbol, entry.name)
		if err != nil {
			return nil, nil, err
		}
		stockIDs = append(stockIDs, st.StockID)
	}

	processor := stock.NewProcessor(stockService.GetDB(), 24*time.Hour, 14)
	if err := processor.ProcessOnce(); err != nil {
		return nil, nil, fmt.Errorf("failed to seed price snapshots: %w", err)
	}

	// Register the simulated members and their API credentials
	members := make([]simMember, 0, numMembers)
	for i := 0; i < numMembers; i++ {
		username := fmt.Sprintf("trader_%d", i+1)
		m, err := memberService.CreateMember(username, fmt.Sprintf("Trader %d", i+1))
		if err != nil {
			m, err = memberService.GetMemberByUsername(username)
			if err != nil || m == nil {
				return nil, nil, fmt.Errorf("failed to set up member %s: %w", username, err)
			}
		}

		apiKey := fmt.Sprintf("sim-key-%d", i+1)
		apiSecret := fmt.Sprintf("sim-secret-%d", i+1)
		authService.RegisterMemberCredentials(apiKey, apiSecret, m.MemberID)
		members = append(members, simMember{username: username, apiKey: apiKey, apiSecret: apiSecret})
	}

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	memberHandlers := member.NewGinHandlers(memberService)
	pointsHandlers := points.NewGinHandlers(pointsService)
	stockHandlers := stock.NewGinHandlers(stockService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandlers.GenerateTokenHandler())
		v1.POST("/members", memberHandlers.CreateMemberHandler())
		v1.GET("/members/:member_id", memberHandlers.GetMemberHandler())
		v1.GET("/members/:member_id/points", pointsHandlers.GetMovementsHandler())
		v1.GET("/stocks", stockHandlers.ListStocksHandler())
		v1.GET("/stocks/:stock_id/price", stockHandlers.GetPriceHandler())
		v1.GET("/stocks/:stock_id/prices", stockHandlers.GetPriceHistoryHandler())

		protected := v1.Group("/trading")
		protected.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			protected.POST("/:stock_id/buy", tradingHandlers.BuyHandler())
			protected.POST("/:stock_id/sell", tradingHandlers.SellHandler())
			protected.GET("/:stock_id/available", tradingHandlers.AvailabilityHandler())
			protected.GET("/holdings", tradingHandlers.HoldingsHandler())
		}
	}

	go func() {
		if err := router.Run(":8080"); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	return stockIDs, members, nil
}
