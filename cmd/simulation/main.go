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
	"sync"
	"time"

	"github.com/ksred/dca-api/internal/auth"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 5
	maxOrders     = 25
	numWorkers    = 5
	numTicks      = 3
	serverAddress = "http://localhost:8080"

	depositAmount = 1_000_000
)

var pairs = [][2]string{
	{"USDC", "WETH"},
	{"USDC", "WBTC"},
	{"DAI", "WETH"},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
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

// simulationClient handles HTTP communication with the DCA API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient creates and authenticates a new simulation client
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"deposit":  {name: "Deposit Funds"},
			"create":   {name: "Create Order"},
			"fund":     {name: "Fund Order"},
			"status":   {name: "Order Status"},
			"history":  {name: "Execution History"},
			"tick":     {name: "Scheduler Tick"},
			"cancel":   {name: "Cancel Order"},
			"withdraw": {name: "Withdraw Remaining"},
		},
	}

	if err := sc.authenticate(); err != nil {
		return nil, err
	}

	return sc, nil
}

func (sc *simulationClient) record(route string, d time.Duration, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[route]
	rs.addDuration(d)
	if failed {
		rs.failures++
	}
}

// call performs one JSON request against the API and decodes the enveloped
// response data into out when provided.
func (sc *simulationClient) call(route, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		sc.record(route, elapsed, true)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		sc.record(route, elapsed, true)
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		sc.record(route, elapsed, true)
		return fmt.Errorf("malformed response: %w", err)
	}

	if !envelope.Success {
		sc.record(route, elapsed, true)
		if envelope.Error != nil {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	sc.record(route, elapsed, false)
	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// authenticate obtains a JWT using the test credentials
func (sc *simulationClient) authenticate() error {
	var token auth.TokenResponse
	err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", auth.Credentials{
		APIKey:    auth.TestAPIKey,
		APISecret: auth.TestAPISecret,
	}, &token)
	if err != nil {
		return err
	}
	sc.authToken = token.Token
	return nil
}

// runOrderLifecycle drives one order through create, fund, and status checks
func (sc *simulationClient) runOrderLifecycle(id int) (string, error) {
	pair := pairs[rand.Intn(len(pairs))]

	var order types.Order
	err := sc.call("create", http.MethodPost, "/api/v1/orders", types.CreateOrderRequest{
		SourceAsset:     pair[0],
		TargetAsset:     pair[1],
		Side:            types.SideBuy,
		TrancheAmount:   int64(100 + rand.Intn(900)),
		IntervalSeconds: 1,
		MaxExecutions:   int64(rand.Intn(5)),
	}, &order)
	if err != nil {
		return "", fmt.Errorf("create order %d: %w", id, err)
	}

	funding := order.TrancheAmount * int64(2+rand.Intn(4))
	err = sc.call("fund", http.MethodPost, "/api/v1/orders/"+order.OrderID+"/fund",
		types.FundOrderRequest{Amount: funding}, &order)
	if err != nil {
		return "", fmt.Errorf("fund order %s: %w", order.OrderID, err)
	}

	var fetched types.Order
	if err := sc.call("status", http.MethodGet, "/api/v1/orders/"+order.OrderID, nil, &fetched); err != nil {
		return "", fmt.Errorf("get order %s: %w", order.OrderID, err)
	}

	log.Info().
		Str("order_id", fetched.OrderID).
		Str("pair", pair[0]+"/"+pair[1]).
		Int64("tranche_amount", fetched.TrancheAmount).
		Int64("remaining_budget", fetched.RemainingBudget).
		Msg("order created and funded")

	return order.OrderID, nil
}

func main() {
	log.Info().Msg("starting DCA engine simulation")

	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	// Seed the custody ledger so orders can be funded
	for _, pair := range pairs {
		var balance types.Balance
		err := sc.call("deposit", http.MethodPost, "/api/v1/balances/"+pair[0]+"/deposit",
			types.FundOrderRequest{Amount: depositAmount}, &balance)
		if err != nil {
			log.Fatal().Err(err).Str("asset", pair[0]).Msg("failed to deposit funds")
		}
	}

	numOrders := minOrders + rand.Intn(maxOrders-minOrders+1)
	log.Info().Int("num_orders", numOrders).Msg("creating orders")

	// Create and fund orders concurrently
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		orderIDs []string
		jobs     = make(chan int, numOrders)
	)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				orderID, err := sc.runOrderLifecycle(id)
				if err != nil {
					log.Error().Err(err).Msg("order lifecycle failed")
					continue
				}
				mu.Lock()
				orderIDs = append(orderIDs, orderID)
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numOrders; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Drive the schedule: each tick should execute every due order once
	for i := 0; i < numTicks; i++ {
		time.Sleep(1500 * time.Millisecond)

		var tick types.TickResponse
		if err := sc.call("tick", http.MethodPost, "/api/v1/internal/tick", nil, &tick); err != nil {
			log.Error().Err(err).Msg("tick failed")
			continue
		}

		succeeded, failed := 0, 0
		for _, record := range tick.Records {
			if record.Success {
				succeeded++
			} else {
				failed++
			}
		}
		log.Info().
			Int("tick", i+1).
			Int("succeeded", succeeded).
			Int("failed", failed).
			Msg("tick processed")
	}

	// Cancel half the surviving orders and withdraw their remaining budget
	for i, orderID := range orderIDs {
		var history []types.ExecutionRecord
		if err := sc.call("history", http.MethodGet, "/api/v1/orders/"+orderID+"/executions", nil, &history); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("failed to fetch history")
		}

		if i%2 != 0 {
			continue
		}

		err := sc.call("cancel", http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", nil, nil)
		if err != nil {
			// Exhausted orders refuse cancellation, which is expected
			log.Debug().Err(err).Str("order_id", orderID).Msg("cancel rejected")
			continue
		}

		var withdrawal types.WithdrawResponse
		err = sc.call("withdraw", http.MethodPost, "/api/v1/orders/"+orderID+"/withdraw", nil, &withdrawal)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("withdraw failed")
			continue
		}

		log.Info().
			Str("order_id", orderID).
			Int64("amount", withdrawal.Amount).
			Str("asset", withdrawal.Asset).
			Msg("order cancelled and unused budget withdrawn")
	}

	printStats(sc)
}

// printStats renders the per-route latency summary
func printStats(sc *simulationClient) {
	fmt.Println("\n=== Simulation Results ===")

	routes := make([]string, 0, len(sc.stats))
	for route := range sc.stats {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		rs := sc.stats[route]
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("\n%s (%d calls, %d failures)\n", rs.name, rs.totalCalls, rs.failures)
		fmt.Printf("  min: %v  max: %v  mean: %v\n", min, max, mean)
		fmt.Printf("  median: %v  p95: %v  p99: %v\n", median, p95, p99)
	}
}
