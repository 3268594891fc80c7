// Package sources содержит коннекторы к конкретным реестрам: RusProfile,
// Контур Фокус и ЕГРЮЛ. Каждый коннектор реализует registry.Connector и
// прячет внутри себя всю специфику источника: селекторы, регулярки,
// обращение к гуманизатору и обработку заслонов.
package sources

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"orgresolver/browser"
	"orgresolver/captcha"
	"orgresolver/normalization"
)

// Deps общие зависимости коннекторов: одна браузерная сессия на пакет,
// один гуманизатор, один солвер капчи и один валидатор.
type Deps struct {
	Driver    browser.Driver
	Humanizer *browser.Humanizer
	Captcha   *captcha.Solver
	Validator *normalization.MatchValidator

	// RequestInterval минимальный интервал между обращениями к одному
	// источнику; каждый коннектор получает собственный лимитер
	RequestInterval time.Duration
}

func (d Deps) newLimiter() *rate.Limiter {
	interval := d.RequestInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

var (
	taxIDRe     = regexp.MustCompile(`ИНН[:\s]*(\d{10,12})`)
	regNumberRe = regexp.MustCompile(`ОГРН[:\s]*(\d{13,15})`)
	postalRe    = regexp.MustCompile(`\b(\d{6})\b`)
	// Индекс не должен прилипать к хвосту более длинного числа (ОГРН),
	// поэтому перед шестью цифрами требуется нецифровой символ или
	// начало текста
	addressRe = regexp.MustCompile(`(?:^|[^\d])(\d{6})[,\s]+([^\n]+(?:обл|край|респ|г\.|область)[^\n]*)`)
)

func extractTaxID(text string) string {
	if m := taxIDRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractRegNumber(text string) string {
	if m := regNumberRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractPostalCode(text string) string {
	if m := postalRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// fatal отличает невосстановимую потерю сессии от временных сбоев,
// которые гасятся переходом к следующему варианту или источнику
func fatal(err error) bool {
	return errors.Is(err, browser.ErrSessionLost) || errors.Is(err, captcha.ErrAbandoned)
}

// waitForBodyText опрашивает текст страницы, пока в нем не появится одна
// из подстрок. Истечение таймаута — штатный исход (false, nil).
func waitForBodyText(ctx context.Context, driver browser.Driver, needles []string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		text, err := driver.Text(ctx, "body")
		if err != nil {
			if fatal(err) {
				return false, err
			}
		} else {
			for _, n := range needles {
				if strings.Contains(text, n) {
					return true, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func sourceLogger(name string) *slog.Logger {
	return slog.Default().With("component", "connector", "source", name)
}
