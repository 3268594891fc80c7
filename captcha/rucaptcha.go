package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RuCaptchaClient клиент сервиса решения reCAPTCHA v2 (протокол
// rucaptcha/2captcha: in.php принимает задачу, res.php отдает токен).
type RuCaptchaClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *slog.Logger
}

var _ SolvingClient = (*RuCaptchaClient)(nil)

// RuCaptchaConfig конфигурация клиента
type RuCaptchaConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// NewRuCaptchaClient создает клиент сервиса решения капчи
func NewRuCaptchaClient(cfg RuCaptchaConfig) *RuCaptchaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rucaptcha.com"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	return &RuCaptchaClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		logger:       slog.Default().With("component", "rucaptcha_client"),
	}
}

type ruCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve отправляет задачу и опрашивает сервис до получения токена
func (c *RuCaptchaClient) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API ключ сервиса решения капчи не задан")
	}

	taskID, err := c.submit(ctx, siteKey, pageURL)
	if err != nil {
		return "", err
	}
	c.logger.Info("Капча поставлена в очередь решения", "task_id", taskID)

	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("ожидание решения прервано: %w", ctx.Err())
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("сервис не решил капчу за %v", c.maxWait)
		}

		token, ready, err := c.poll(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
}

func (c *RuCaptchaClient) submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("method", "userrecaptcha")
	params.Set("googlekey", siteKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")

	resp, err := c.do(ctx, c.baseURL+"/in.php?"+params.Encode())
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("сервис отклонил задачу: %s", resp.Request)
	}
	return resp.Request, nil
}

func (c *RuCaptchaClient) poll(ctx context.Context, taskID string) (token string, ready bool, err error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("action", "get")
	params.Set("id", taskID)
	params.Set("json", "1")

	resp, err := c.do(ctx, c.baseURL+"/res.php?"+params.Encode())
	if err != nil {
		return "", false, err
	}
	if resp.Status == 1 {
		return resp.Request, true, nil
	}
	if resp.Request == "CAPCHA_NOT_READY" {
		return "", false, nil
	}
	return "", false, fmt.Errorf("ошибка сервиса решения: %s", resp.Request)
}

func (c *RuCaptchaClient) do(ctx context.Context, fullURL string) (*ruCaptchaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запрос: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к сервису не удался: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неожиданный статус сервиса: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать ответ: %w", err)
	}

	var parsed ruCaptchaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("не удалось разобрать ответ сервиса: %w", err)
	}
	return &parsed, nil
}
