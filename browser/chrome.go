package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ChromeConfig параметры запуска браузера
type ChromeConfig struct {
	Headless  bool
	UserAgent string // пустая строка — случайный User-Agent
	WindowW   int
	WindowH   int
}

// DefaultChromeConfig возвращает параметры по умолчанию
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless: true,
		WindowW:  1920,
		WindowH:  1080,
	}
}

// ChromeDriver реализация Driver поверх chromedp.
// Сессия захватывается один раз на пакет и безусловно освобождается
// через Quit.
type ChromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver запускает браузер и возвращает готовую сессию
func NewChromeDriver(ctx context.Context, cfg ChromeConfig) (*ChromeDriver, error) {
	ua := cfg.UserAgent
	if ua == "" {
		ua = gofakeit.UserAgent()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("incognito", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowW, cfg.WindowH),
		chromedp.UserAgent(ua),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      slog.Default().With("component", "chrome_driver"),
	}

	// Первый Run поднимает процесс браузера; заодно прячем флаг webdriver
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined}); 0`, nil),
	); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("не удалось запустить браузер: %w", err)
	}

	d.logger.Info("Браузер запущен", "headless", cfg.Headless, "user_agent", ua)
	return d, nil
}

// run выполняет действия в контексте сессии, уважая отмену вызывающего
// контекста и переводя смерть сессии в ErrSessionLost
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if d.ctx.Err() != nil {
		return ErrSessionLost
	}

	runCtx := d.ctx
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(d.ctx, timeout)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case d.ctx.Err() != nil:
		return ErrSessionLost
	case errors.Is(err, context.DeadlineExceeded):
		return ErrWaitTimeout
	default:
		return err
	}
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, 30*time.Second,
		chromedp.Navigate(url),
		chromedp.Evaluate(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined}); 0`, nil),
	)
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return d.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (d *ChromeDriver) Click(ctx context.Context, sel string) error {
	return d.run(ctx, 10*time.Second, chromedp.Click(sel, chromedp.ByQuery))
}

func (d *ChromeDriver) Clear(ctx context.Context, sel string) error {
	return d.run(ctx, 10*time.Second, chromedp.Clear(sel, chromedp.ByQuery))
}

func (d *ChromeDriver) SendKeys(ctx context.Context, sel, keys string) error {
	return d.run(ctx, 10*time.Second, chromedp.SendKeys(sel, keys, chromedp.ByQuery))
}

func (d *ChromeDriver) Text(ctx context.Context, sel string) (string, error) {
	var text string
	err := d.run(ctx, 10*time.Second, chromedp.Text(sel, &text, chromedp.ByQuery))
	return text, err
}

func (d *ChromeDriver) PageSource(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, 5*time.Second, chromedp.Location(&url))
	return url, err
}

func (d *ChromeDriver) Evaluate(ctx context.Context, js string, out any) error {
	return d.run(ctx, 10*time.Second, chromedp.Evaluate(js, out))
}

// Windows возвращает идентификаторы открытых вкладок
func (d *ChromeDriver) Windows(ctx context.Context) ([]string, error) {
	if d.ctx.Err() != nil {
		return nil, ErrSessionLost
	}
	infos, err := chromedp.Targets(d.ctx)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список вкладок: %w", err)
	}
	handles := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, string(info.TargetID))
		}
	}
	return handles, nil
}

// SwitchWindow переключает сессию на вкладку с данным идентификатором
func (d *ChromeDriver) SwitchWindow(ctx context.Context, id string) error {
	if d.ctx.Err() != nil {
		return ErrSessionLost
	}
	tabCtx, cancel := chromedp.NewContext(d.ctx, chromedp.WithTargetID(target.ID(id)))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("не удалось переключиться на вкладку %s: %w", id, err)
	}
	prevCancel := d.cancel
	d.ctx = tabCtx
	d.cancel = func() {
		cancel()
		prevCancel()
	}
	return nil
}

// Alive сообщает, жива ли еще сессия браузера
func (d *ChromeDriver) Alive(ctx context.Context) bool {
	if d.ctx.Err() != nil {
		return false
	}
	var ready string
	return d.run(ctx, 3*time.Second, chromedp.Evaluate(`document.readyState`, &ready)) == nil
}

// Quit закрывает браузер. Идемпотентен.
func (d *ChromeDriver) Quit() error {
	d.cancel()
	d.allocCancel()
	d.logger.Info("Браузер закрыт")
	return nil
}
