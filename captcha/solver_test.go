package captcha

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgresolver/browser"
)

const (
	challengePage = `<html><div class="g-recaptcha" data-sitekey="6LcKey"></div>
		Подтвердите, что вы не робот</html>`
	resultsPage   = `<html><div class="list-element__title">МБОУ СОШ №1</div></html>`
	noResultsPage = `<html>Ничего не найдено</html>`
	plainPage     = `<html>Обычная страница без заслона</html>`
	// Маркер есть, формулировки нет — скрипт рекапчи подключен, но
	// заслон не показан
	markerOnlyPage = `<html><script src="https://www.google.com/recaptcha/api.js"></script></html>`
)

// fakeDriver управляемая подмена браузера для тестов солвера
type fakeDriver struct {
	mu       sync.Mutex
	pages    []string // PageSource отдает по очереди, последняя повторяется
	pageIdx  int
	alive    bool
	siteKey  string
	tokenOut string // что вернуть из callback-скрипта
	srcErr   error
}

func newFakeDriver(pages ...string) *fakeDriver {
	return &fakeDriver{pages: pages, alive: true, tokenOut: "ok"}
}

func (d *fakeDriver) PageSource(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.srcErr != nil {
		return "", d.srcErr
	}
	if len(d.pages) == 0 {
		return "", nil
	}
	page := d.pages[d.pageIdx]
	if d.pageIdx < len(d.pages)-1 {
		d.pageIdx++
	}
	return page, nil
}

func (d *fakeDriver) Evaluate(ctx context.Context, js string, out any) error {
	if out == nil {
		return nil
	}
	s, ok := out.(*string)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case strings.Contains(js, "data-sitekey"):
		*s = d.siteKey
	case strings.Contains(js, "___grecaptcha_cfg"):
		*s = d.tokenOut
	}
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }
func (d *fakeDriver) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return nil
}
func (d *fakeDriver) Click(ctx context.Context, sel string) error          { return nil }
func (d *fakeDriver) Clear(ctx context.Context, sel string) error          { return nil }
func (d *fakeDriver) SendKeys(ctx context.Context, sel, keys string) error { return nil }
func (d *fakeDriver) Text(ctx context.Context, sel string) (string, error) {
	return "", nil
}
func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return "https://example.test/search", nil
}
func (d *fakeDriver) Windows(ctx context.Context) ([]string, error)    { return []string{"w1"}, nil }
func (d *fakeDriver) SwitchWindow(ctx context.Context, id string) error { return nil }
func (d *fakeDriver) Alive(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}
func (d *fakeDriver) Quit() error { return nil }

var _ browser.Driver = (*fakeDriver)(nil)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		page string
		want State
	}{
		{"Результаты есть", resultsPage, NoChallenge},
		{"Легитимная пустая выдача", noResultsPage, NoChallenge},
		{"Заслон", challengePage, ChallengeDetected},
		{"Обычная страница", plainPage, NoChallenge},
		{"Маркер без формулировки", markerOnlyPage, NoChallenge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := NewSolver(newFakeDriver(tt.page), nil, Config{})
			state, err := solver.Detect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestDetectSessionLost(t *testing.T) {
	driver := newFakeDriver()
	driver.srcErr = browser.ErrSessionLost

	solver := NewSolver(driver, nil, Config{})
	state, err := solver.Detect(context.Background())
	assert.Equal(t, Abandoned, state)
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestResolveNoChallenge(t *testing.T) {
	var transitions []State
	solver := NewSolver(newFakeDriver(resultsPage), nil, Config{})
	solver.OnTransition = func(s State) { transitions = append(transitions, s) }

	state, err := solver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoChallenge, state)
	assert.Empty(t, transitions, "без заслона переходов быть не должно")
}

type fakeSolvingClient struct {
	token string
	err   error
	calls int
}

func (c *fakeSolvingClient) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.token, nil
}

func TestResolveAutoSolve(t *testing.T) {
	driver := newFakeDriver(challengePage)
	driver.siteKey = "6LcKey"
	client := &fakeSolvingClient{token: "tok-123"}

	var transitions []State
	solver := NewSolver(driver, client, Config{AutoSolve: true, PollInterval: 10 * time.Millisecond})
	solver.OnTransition = func(s State) { transitions = append(transitions, s) }

	state, err := solver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolved, state)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, []State{ChallengeDetected, AutoSolving, Resolved}, transitions)
}

func TestResolveAutoFailureFallsBackToManual(t *testing.T) {
	// Сервис вернул ошибку; человек снимает заслон — вторая выдача
	// PageSource уже с результатами
	driver := newFakeDriver(challengePage, resultsPage)
	driver.siteKey = "6LcKey"
	client := &fakeSolvingClient{err: errors.New("ERROR_ZERO_BALANCE")}

	var transitions []State
	solver := NewSolver(driver, client, Config{AutoSolve: true, PollInterval: 5 * time.Millisecond})
	solver.OnTransition = func(s State) { transitions = append(transitions, s) }

	state, err := solver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolved, state)
	assert.Equal(t, []State{ChallengeDetected, AutoSolving, AwaitingManualSolve, Resolved}, transitions)
}

func TestResolveManualSolve(t *testing.T) {
	driver := newFakeDriver(challengePage, challengePage, resultsPage)

	var transitions []State
	solver := NewSolver(driver, nil, Config{PollInterval: 5 * time.Millisecond})
	solver.OnTransition = func(s State) { transitions = append(transitions, s) }

	state, err := solver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolved, state)
	assert.Equal(t, []State{ChallengeDetected, AwaitingManualSolve, Resolved}, transitions)
}

func TestResolveAbandonedOnContextCancel(t *testing.T) {
	driver := newFakeDriver(challengePage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	solver := NewSolver(driver, nil, Config{PollInterval: 5 * time.Millisecond})
	state, err := solver.Resolve(ctx)
	assert.Equal(t, Abandoned, state)
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestResolveAbandonedOnDeadBrowser(t *testing.T) {
	driver := newFakeDriver(challengePage)

	solver := NewSolver(driver, nil, Config{PollInterval: 5 * time.Millisecond})
	go func() {
		time.Sleep(2 * time.Millisecond)
		driver.mu.Lock()
		driver.alive = false
		driver.mu.Unlock()
	}()

	state, err := solver.Resolve(context.Background())
	assert.Equal(t, Abandoned, state)
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestFindSiteKeyFromPageSource(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			"URL iframe",
			`<iframe src="https://www.google.com/recaptcha/api2/anchor?k=6LcFromIframe&co=x"></iframe>`,
			"6LcFromIframe",
		},
		{
			"JSON конфигурация",
			`<script>grecaptcha.render(el, {"sitekey": "6LcFromJSON"});</script>`,
			"6LcFromJSON",
		},
		{
			"Атрибут элемента",
			`<div data-sitekey="6LcFromAttr"></div>`,
			"6LcFromAttr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver(tt.page)
			solver := NewSolver(driver, nil, Config{})
			key, err := solver.findSiteKey(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestFindSiteKeyMissing(t *testing.T) {
	driver := newFakeDriver(plainPage)
	solver := NewSolver(driver, nil, Config{})
	_, err := solver.findSiteKey(context.Background())
	assert.Error(t, err)
}
