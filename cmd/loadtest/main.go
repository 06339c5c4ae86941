package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	headerUserID      = "X-User-ID"
	headerUserRole    = "X-User-Role"
	headerIdempotency = "Idempotency-Key"

	kindInsufficientStock = "InsufficientStock"
)

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCancel loadMode = "create-pay-cancel"
)

type config struct {
	addr        string
	productID   string
	stock       int
	qty         int
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	buyerTag    string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "marketplace API base URL")
	fs.StringVar(&cfg.productID, "product", "", "product id every checkout buys")
	fs.IntVar(&cfg.stock, "stock", 0, "initial stock of the product, used for the oversell check")
	fs.IntVar(&cfg.qty, "qty", 1, "units per order")
	fs.IntVar(&cfg.total, "total", 400, "total checkout scenarios")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-pay | create-pay-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-pay mode (0..100)")
	fs.StringVar(&cfg.buyerTag, "buyer-tag", "load", "buyer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.addr = strings.TrimRight(strings.TrimSpace(cfg.addr), "/")
	cfg.productID = strings.TrimSpace(cfg.productID)

	switch {
	case cfg.addr == "":
		return cfg, errors.New("addr is required")
	case cfg.productID == "":
		return cfg, errors.New("product is required")
	case cfg.stock < 0:
		return cfg, errors.New("stock must be >= 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.total <= 0:
		return cfg, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.buyerTag) == "":
		return cfg, errors.New("buyer-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreatePay:
		return modeCreatePay, nil
	case modeCreatePayCancel:
		return modeCreatePayCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &apiClient{
		baseURL: cfg.addr,
		http: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
		}},
		timeout: cfg.timeout,
	}

	result := runLoad(context.Background(), client, cfg)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeReportFile(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.Stock.Oversold {
		os.Exit(1)
	}
}

// runLoad прогоняет cfg.total сценариев оформления в cfg.concurrency потоков.
func runLoad(ctx context.Context, client *apiClient, cfg config) report {
	startedAt := time.Now()
	runID := uuid.NewString()[:8]
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, cfg, id, runID, col)
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return col.buildReport(cfg, startedAt, time.Since(startedAt))
}

// runScenario оформляет один заказ и, в зависимости от режима, оплачивает и отменяет его.
// Отказ InsufficientStock (товар закончился) — ожидаемый исход, а не сбой.
func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string, col *collector) {
	start := time.Now()
	scenarioOK := true
	scenarioCode := http.StatusOK
	defer func() {
		col.record(scenarioMethod, time.Since(start), scenarioCode, scenarioOK)
	}()

	buyerID := fmt.Sprintf("%s-%s-%d", cfg.buyerTag, runID, index)
	orderID, code, err := client.createOrder(ctx, buyerID, cfg.productID, cfg.qty, fmt.Sprintf("lt-%s-%d", runID, index), col)
	switch {
	case errors.Is(err, errSoldOut):
		col.outcome(outcomeSoldOut)
		scenarioCode = code
		return
	case err != nil || code != http.StatusCreated:
		scenarioOK, scenarioCode = false, code
		return
	}

	if cfg.mode == modeCreate {
		col.outcome(outcomeCreated)
		return
	}

	if code, err := client.call(ctx, "PayOrder", http.MethodPut, "/orders/"+orderID+"/pay", buyerID, nil, col); err != nil || code != http.StatusOK {
		col.outcome(outcomeCreated)
		scenarioOK, scenarioCode = false, code
		return
	}

	if cfg.mode == modeCreatePayCancel || (cfg.mode == modeCreatePay && shouldCancelScenario(index, cfg.cancelRate)) {
		body := map[string]string{"reason": "load-cancel"}
		code, err := client.call(ctx, "CancelOrder", http.MethodPut, "/orders/"+orderID+"/cancel", buyerID, body, col)
		if err != nil || code != http.StatusOK {
			col.outcome(outcomeCreated)
			scenarioOK, scenarioCode = false, code
			return
		}
		col.outcome(outcomeReleased)
		return
	}
	col.outcome(outcomeCreated)
}

type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// errSoldOut — оформление отклонено из-за нехватки остатка.
var errSoldOut = errors.New("product sold out")

type apiResponse struct {
	Error string `json:"error"`
	Data  struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *apiClient) createOrder(ctx context.Context, buyerID, productID string, qty int, key string, col *collector) (orderID string, code int, err error) {
	body := map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": qty}},
		"shipping_address": map[string]string{
			"name": "Load Test", "phone": "+10000000000", "line1": "1 Load Street",
			"city": "Testville", "state": "TS", "country": "US", "zip": "00000",
		},
		"payment_method": "card",
	}

	start := time.Now()
	code, raw, err := c.do(ctx, http.MethodPost, "/orders", buyerID, key, body)
	if err == nil {
		var resp apiResponse
		if decodeErr := json.Unmarshal(raw, &resp); decodeErr != nil {
			err = fmt.Errorf("decode create response: %w", decodeErr)
		} else if resp.Error == kindInsufficientStock {
			err = errSoldOut
		} else if code == http.StatusCreated && resp.Data.ID == "" {
			err = errors.New("create response returned empty order id")
		} else if code == http.StatusCreated {
			orderID = resp.Data.ID
		}
	}
	col.record("CreateOrder", time.Since(start), code, orderID != "" || errors.Is(err, errSoldOut))
	return orderID, code, err
}

func (c *apiClient) call(ctx context.Context, method, httpMethod, path, buyerID string, body any, col *collector) (int, error) {
	start := time.Now()
	code, _, err := c.do(ctx, httpMethod, path, buyerID, "", body)
	col.record(method, time.Since(start), code, err == nil && code == http.StatusOK)
	return code, err
}

func (c *apiClient) do(ctx context.Context, method, path, buyerID, idempotencyKey string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, buyerID)
	req.Header.Set(headerUserRole, "buyer")
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotency, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
