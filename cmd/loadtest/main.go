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
	"net/http/cookiejar"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookstore/internal/service/httpapi"
)

// outcome — итог одного сценария «положить книгу в корзину и оформить заказ».
type outcome string

const (
	outcomePlaced            outcome = "placed"
	outcomeInsufficientStock outcome = "insufficient_stock"
	outcomeInsufficientFunds outcome = "insufficient_funds"
	outcomeRejected          outcome = "rejected"
	outcomeError             outcome = "error"
)

const (
	stepAddItem  = "add_item"
	stepCheckout = "checkout"
)

type config struct {
	baseURL     string
	secret      string
	customers   []string
	bookID      int64
	quantity    int
	total       int
	concurrency int
	timeout     time.Duration
	tokenTTL    time.Duration
	outputPath  string
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	var customers string

	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "bookstore HTTP API base URL")
	fs.StringVar(&cfg.secret, "secret", "dev-secret", "JWT signing secret of the target service")
	fs.StringVar(&customers, "customers", "reader@example.com", "comma separated customer emails")
	fs.Int64Var(&cfg.bookID, "book-id", 1, "book every scenario competes for")
	fs.IntVar(&cfg.quantity, "qty", 1, "copies per checkout")
	fs.IntVar(&cfg.total, "total", 100, "total checkout scenarios")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", time.Hour, "lifetime of issued test tokens")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	for _, email := range strings.Split(customers, ",") {
		if email = strings.TrimSpace(email); email != "" {
			cfg.customers = append(cfg.customers, email)
		}
	}

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("base-url is required")
	case strings.TrimSpace(cfg.secret) == "":
		return cfg, errors.New("secret is required")
	case len(cfg.customers) == 0:
		return cfg, errors.New("at least one customer is required")
	case cfg.bookID <= 0:
		return cfg, errors.New("book-id must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.total <= 0:
		return cfg, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	tokens, err := issueTokens(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "issue tokens: %v\n", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	col := run(cfg, tokens)
	result := col.buildReport(startedAt, time.Since(startedAt))

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Errors > 0 {
		os.Exit(1)
	}
}

func issueTokens(cfg config) ([]string, error) {
	tokens := make([]string, 0, len(cfg.customers))
	for _, email := range cfg.customers {
		token, err := httpapi.IssueToken(cfg.secret, email, httpapi.RoleCustomer, cfg.tokenTTL)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// run запускает cfg.total сценариев в cfg.concurrency воркеров.
// Клиенты по кругу делят токены, поэтому при нескольких сценариях на
// одного клиента конкурируют и остатки, и баланс.
func run(cfg config, tokens []string) *collector {
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				runScenario(cfg, tokens[index%len(tokens)], col)
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return col
}

// runScenario открывает новую сессию, кладёт книгу в корзину и оформляет заказ.
func runScenario(cfg config, token string, col *collector) outcome {
	started := time.Now()
	result := outcomeError
	defer func() { col.recordScenario(result, time.Since(started)) }()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return result
	}
	client := &http.Client{Jar: jar, Timeout: cfg.timeout}

	body, _ := json.Marshal(map[string]any{"bookId": cfg.bookID, "quantity": cfg.quantity})
	status, _, err := call(client, col, stepAddItem, http.MethodPost, cfg.baseURL+"/api/v1/cart/items", token, "", body)
	if err != nil || status != http.StatusOK {
		if status >= 400 && status < 500 {
			result = outcomeRejected
		}
		return result
	}

	status, payload, err := call(client, col, stepCheckout, http.MethodPost, cfg.baseURL+"/api/v1/cart/checkout", token, uuid.NewString(), nil)
	if err != nil {
		return result
	}
	result = classify(status, payload)
	return result
}

func call(client *http.Client, col *collector, step, method, url, token, idempotencyKey string, body []byte) (int, []byte, error) {
	started := time.Now()
	status := 0
	defer func() { col.record(step, time.Since(started), status) }()

	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(httpapi.IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	status = resp.StatusCode
	return status, payload, err
}

// classify раскладывает ответ checkout по исходам.
func classify(status int, payload []byte) outcome {
	switch {
	case status == http.StatusCreated:
		return outcomePlaced
	case status >= 500:
		return outcomeError
	case status >= 400:
		var body struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(payload, &body)
		switch outcome(body.Code) {
		case outcomeInsufficientStock:
			return outcomeInsufficientStock
		case outcomeInsufficientFunds:
			return outcomeInsufficientFunds
		}
		return outcomeRejected
	default:
		return outcomeError
	}
}
