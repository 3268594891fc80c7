// Package captcha обнаруживает и снимает CAPTCHA-заслоны на страницах
// реестров. Легитимная пустая выдача никогда не принимается за заслон.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"orgresolver/browser"
)

// State состояние машины обработки заслона
type State int

const (
	NoChallenge State = iota
	ChallengeDetected
	AutoSolving
	AwaitingManualSolve
	Resolved
	Abandoned
)

// String имя состояния для логов и событий
func (s State) String() string {
	switch s {
	case NoChallenge:
		return "no_challenge"
	case ChallengeDetected:
		return "challenge_detected"
	case AutoSolving:
		return "auto_solving"
	case AwaitingManualSolve:
		return "awaiting_manual_solve"
	case Resolved:
		return "resolved"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ErrAbandoned заслон не снят и сессия браузера мертва.
// Для вызывающего коннектора это эквивалент потери сессии.
var ErrAbandoned = errors.New("captcha: заслон не снят, сессия браузера потеряна")

// SolvingClient внешний сервис решения капчи.
// Ошибки сервиса (квота, сеть, неверный ключ) не валят пакет —
// солвер переходит в ручной режим.
type SolvingClient interface {
	Solve(ctx context.Context, siteKey, pageURL string) (token string, err error)
}

// Config параметры солвера
type Config struct {
	AutoSolve    bool
	PollInterval time.Duration // период опроса в ручном режиме
}

// Solver машина состояний обработки заслона.
// Переходы наблюдаемы через OnTransition, чтобы тесты могли проверять
// их без реального браузера.
type Solver struct {
	driver       browser.Driver
	client       SolvingClient
	cfg          Config
	logger       *slog.Logger
	OnTransition func(State)
}

// NewSolver создает солвер. client может быть nil — тогда доступен
// только ручной режим.
func NewSolver(driver browser.Driver, client SolvingClient, cfg Config) *Solver {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Solver{
		driver: driver,
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "captcha_solver"),
	}
}

func (s *Solver) transition(state State) {
	s.logger.Debug("Переход состояния капчи", "state", state.String())
	if s.OnTransition != nil {
		s.OnTransition(state)
	}
}

// challengeWording формулировки, характерные именно для заслона
var challengeWording = []string{
	"подтвердите, что вы не робот",
	"вы не робот",
	"i'm not a robot",
	"подозрительная активность",
	"проверка безопасности",
}

// noResultsWording явные признаки легитимной пустой выдачи
var noResultsWording = []string{
	"ничего не найдено",
	"не найдено компаний",
	"нет результатов",
	"найдено 0",
}

// challengeMarkerRe DOM-маркеры заслона в исходнике страницы
var challengeMarkerRe = regexp.MustCompile(`(?i)(class="g-recaptcha"|id="recaptcha"|data-sitekey=|recaptcha/api|hcaptcha\.com|для продолжения работы введите код)`)

// resultsMarkerRe признаки присутствия результатов поиска
var resultsMarkerRe = regexp.MustCompile(`(?i)(list-element__title|company-item|res-text|search-results)`)

// Detect определяет, действительно ли страница закрыта заслоном.
// Заслон объявляется только при одновременном наличии DOM-маркера и
// характерной формулировки; наличие результатов или явного «ничего не
// найдено» немедленно дает NoChallenge.
func (s *Solver) Detect(ctx context.Context) (State, error) {
	source, err := s.driver.PageSource(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return Abandoned, ErrAbandoned
		}
		return NoChallenge, err
	}
	lower := strings.ToLower(source)

	if resultsMarkerRe.MatchString(source) {
		return NoChallenge, nil
	}
	for _, w := range noResultsWording {
		if strings.Contains(lower, w) {
			return NoChallenge, nil
		}
	}

	if !challengeMarkerRe.MatchString(source) {
		return NoChallenge, nil
	}
	for _, w := range challengeWording {
		if strings.Contains(lower, w) {
			return ChallengeDetected, nil
		}
	}
	return NoChallenge, nil
}

// Resolve прогоняет машину целиком: обнаружение, автоматическое решение
// (если настроено), иначе — ожидание ручного решения. Возвращает
// конечное состояние: NoChallenge, Resolved или Abandoned (с ErrAbandoned).
func (s *Solver) Resolve(ctx context.Context) (State, error) {
	state, err := s.Detect(ctx)
	if err != nil {
		return state, err
	}
	if state == NoChallenge {
		return NoChallenge, nil
	}
	s.transition(ChallengeDetected)

	if s.cfg.AutoSolve && s.client != nil {
		s.transition(AutoSolving)
		if err := s.solveAuto(ctx); err == nil {
			s.transition(Resolved)
			return Resolved, nil
		} else {
			s.logger.Warn("Автоматическое решение не удалось, переход в ручной режим", "error", err)
		}
	}

	s.transition(AwaitingManualSolve)
	return s.awaitManual(ctx)
}

// solveAuto находит sitekey, получает токен у внешнего сервиса и
// подсовывает его странице
func (s *Solver) solveAuto(ctx context.Context) error {
	siteKey, err := s.findSiteKey(ctx)
	if err != nil {
		return err
	}

	pageURL, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("Отправка капчи на решение", "site_key_prefix", prefix(siteKey, 16))
	token, err := s.client.Solve(ctx, siteKey, pageURL)
	if err != nil {
		return fmt.Errorf("сервис решения капчи: %w", err)
	}

	return s.injectToken(ctx, token)
}

var (
	iframeKeyRe = regexp.MustCompile(`recaptcha[^"']*[?&]k=([^&"']+)`)
	jsonKeyRe   = regexp.MustCompile(`"sitekey"\s*:\s*"([^"]+)"`)
	attrKeyRe   = regexp.MustCompile(`data-sitekey="([^"]+)"`)
)

// findSiteKey ищет ключ заслона: сначала по атрибуту элемента, затем по
// URL iframe, в последнюю очередь — по исходнику страницы
func (s *Solver) findSiteKey(ctx context.Context) (string, error) {
	var key string
	err := s.driver.Evaluate(ctx, `(function() {
		var el = document.getElementById('recaptcha') || document.querySelector('.g-recaptcha') || document.querySelector('[data-sitekey]');
		return el ? (el.getAttribute('data-sitekey') || '') : '';
	})()`, &key)
	if err == nil && key != "" {
		return key, nil
	}

	source, err := s.driver.PageSource(ctx)
	if err != nil {
		return "", err
	}
	for _, re := range []*regexp.Regexp{iframeKeyRe, jsonKeyRe, attrKeyRe} {
		if m := re.FindStringSubmatch(source); m != nil {
			return m[1], nil
		}
	}
	return "", errors.New("sitekey не найден на странице")
}

// injectToken вставляет токен в поле ответа и вызывает зарегистрированный
// callback рекапчи; если callback-ов нет, пробует отправить форму
func (s *Solver) injectToken(ctx context.Context, token string) error {
	fill := fmt.Sprintf(`(function() {
		var el = document.getElementById('g-recaptcha-response');
		if (el) { el.innerHTML = %[1]q; el.value = %[1]q; }
		var els = document.getElementsByName('g-recaptcha-response');
		for (var i = 0; i < els.length; i++) { els[i].innerHTML = %[1]q; els[i].value = %[1]q; }
	})()`, token)
	if err := s.driver.Evaluate(ctx, fill, nil); err != nil {
		return fmt.Errorf("не удалось вставить токен: %w", err)
	}

	callback := fmt.Sprintf(`(function() {
		if (typeof ___grecaptcha_cfg === 'undefined' || !___grecaptcha_cfg.clients) { return 'no_clients'; }
		var fired = false;
		Object.keys(___grecaptcha_cfg.clients).forEach(function(id) {
			try { ___grecaptcha_cfg.clients[id].callback(%q); fired = true; } catch (e) {}
		});
		return fired ? 'ok' : 'no_callback';
	})()`, token)
	var outcome string
	if err := s.driver.Evaluate(ctx, callback, &outcome); err != nil || outcome != "ok" {
		// Callback не сработал — последняя надежда на отправку формы
		_ = s.driver.Evaluate(ctx, `(function() {
			var f = document.querySelector('form');
			if (f) { f.submit(); }
		})()`, nil)
	}
	time.Sleep(time.Second)
	return nil
}

// awaitManual ждет, пока человек снимет заслон: опрашивает страницу с
// фиксированным периодом до исчезновения маркера или появления
// результатов. Предельного времени нет намеренно — человеку может
// понадобиться несколько минут; цикл ограничен только жизнью браузера
// и отменой контекста.
func (s *Solver) awaitManual(ctx context.Context) (State, error) {
	s.logger.Info("Ожидание ручного решения капчи")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.transition(Abandoned)
			return Abandoned, ErrAbandoned
		case <-ticker.C:
		}

		if !s.driver.Alive(ctx) {
			s.transition(Abandoned)
			return Abandoned, ErrAbandoned
		}

		state, err := s.Detect(ctx)
		if err != nil {
			if errors.Is(err, ErrAbandoned) || errors.Is(err, browser.ErrSessionLost) {
				s.transition(Abandoned)
				return Abandoned, ErrAbandoned
			}
			continue
		}
		if state == NoChallenge {
			s.transition(Resolved)
			return Resolved, nil
		}
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
