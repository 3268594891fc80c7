// Package config собирает настройки приложения из переменных окружения.
// Значения из .env подхватываются вызывающей стороной через godotenv
// до обращения к Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config настройки приложения
type Config struct {
	// GigaChatAuthKey ключ авторизации GigaChat (Basic). Пустой —
	// AI-шаг отключается.
	GigaChatAuthKey string
	// GigaChatModel имя модели; по умолчанию GigaChat-2-Pro
	GigaChatModel string
	// AIBudget сколько обращений к AI-шагу разрешено на пакет
	AIBudget int
	// RuCaptchaKey ключ rucaptcha; пустой — только ручное решение
	RuCaptchaKey string
	// HumanizerProfile fast, normal или safe
	HumanizerProfile string
	// RequestInterval минимальная пауза между обращениями к источнику
	RequestInterval time.Duration
	// CachePath путь к файлу SQLite-кэша; пустой — кэш отключен
	CachePath string
	// InputColumn имя колонки входного файла с названиями
	InputColumn string
	// Headless запуск браузера без окна
	Headless bool
}

// Load читает настройки из окружения, подставляя умолчания
func Load() (Config, error) {
	cfg := Config{
		GigaChatAuthKey:  os.Getenv("GIGACHAT_AUTH_KEY"),
		GigaChatModel:    envOrDefault("GIGACHAT_MODEL", "GigaChat-2-Pro"),
		RuCaptchaKey:     os.Getenv("RUCAPTCHA_KEY"),
		HumanizerProfile: envOrDefault("HUMANIZER_PROFILE", "normal"),
		CachePath:        os.Getenv("CACHE_PATH"),
		InputColumn:      os.Getenv("INPUT_COLUMN"),
	}

	budget, err := envInt("AI_BUDGET", 50)
	if err != nil {
		return Config{}, err
	}
	if budget < 0 {
		return Config{}, fmt.Errorf("AI_BUDGET must not be negative, got %d", budget)
	}
	cfg.AIBudget = budget

	intervalSec, err := envInt("REQUEST_INTERVAL_SECONDS", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestInterval = time.Duration(intervalSec) * time.Second

	headless, err := envBool("HEADLESS", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Headless = headless

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
