// Package ai содержит клиент генеративного сервиса GigaChat, используемый
// как последний шаг каскада, когда детерминированные источники не дали
// результата.
package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	defaultChatURL  = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	defaultModel    = "GigaChat-2-Pro"

	// Токен живет 30 минут, обновляем за минуту до истечения
	tokenLifetime = 29 * time.Minute
)

// TokenManager держит access-токен GigaChat и прозрачно обновляет его
// по истечении срока. Потокобезопасен.
type TokenManager struct {
	mu          sync.Mutex
	authToken   string // Basic-токен (base64 от CLIENT_ID:CLIENT_SECRET)
	oauthURL    string
	accessToken string
	expiry      time.Time
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewTokenManager создает менеджер токена
func NewTokenManager(authToken, oauthURL string, httpClient *http.Client) *TokenManager {
	if oauthURL == "" {
		oauthURL = defaultOAuthURL
	}
	return &TokenManager{
		authToken:  authToken,
		oauthURL:   oauthURL,
		httpClient: httpClient,
		logger:     slog.Default().With("component", "gigachat_token"),
	}
}

// Token возвращает действующий токен, обновляя его при необходимости
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.accessToken != "" && time.Now().Before(tm.expiry) {
		return tm.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", "GIGACHAT_API_PERS")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("не удалось создать запрос токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+tm.authToken)

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос токена не удался: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("обновление токена: статус %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("не удалось разобрать ответ токена: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("пустой access_token в ответе")
	}

	tm.accessToken = parsed.AccessToken
	tm.expiry = time.Now().Add(tokenLifetime)
	tm.logger.Info("Токен GigaChat обновлен", "valid_until", tm.expiry.Format("15:04:05"))
	return tm.accessToken, nil
}

// ClientConfig конфигурация клиента GigaChat
type ClientConfig struct {
	AuthToken          string
	OAuthURL           string
	ChatURL            string
	Model              string
	Timeout            time.Duration
	InsecureSkipVerify bool // API Сбера за собственным корневым сертификатом
}

// Client клиент chat-completions API GigaChat
type Client struct {
	chatURL    string
	model      string
	tokens     *TokenManager
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создает клиент GigaChat
func NewClient(cfg ClientConfig) *Client {
	if cfg.ChatURL == "" {
		cfg.ChatURL = defaultChatURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:    5,
		IdleConnTimeout: 90 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	httpClient := &http.Client{Timeout: cfg.Timeout, Transport: transport}

	return &Client{
		chatURL:    cfg.ChatURL,
		model:      cfg.Model,
		tokens:     NewTokenManager(cfg.AuthToken, cfg.OAuthURL, httpClient),
		httpClient: httpClient,
		logger:     slog.Default().With("component", "gigachat_client"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const completeAttempts = 3

// Complete отправляет запрос и возвращает текст ответа модели.
// Сетевые сбои и ответы 5xx/429 повторяются с нарастающей паузой,
// ошибки авторизации и разбора — нет.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < completeAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Повторный запрос к GigaChat", "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		reply, retryable, err := c.completeOnce(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, prompt string) (string, bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", false, err
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   300,
	})
	if err != nil {
		return "", false, fmt.Errorf("не удалось сериализовать запрос: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("запрос к GigaChat не удался: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return "", retryable, fmt.Errorf("GigaChat: статус %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("не удалось разобрать ответ GigaChat: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("пустой ответ GigaChat")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}
