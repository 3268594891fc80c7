package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Profile именованные диапазоны всех случайных задержек гуманизации.
// Поведение воспроизводимо: при фиксированном seed последовательность
// пауз и опечаток одинакова от запуска к запуску.
type Profile struct {
	Name string

	TypeDelayMin time.Duration
	TypeDelayMax time.Duration
	TypoChance   float64

	ScrollStepMin  int
	ScrollStepMax  int
	ScrollPauseMin time.Duration
	ScrollPauseMax time.Duration

	PreClickDelayMin time.Duration
	PreClickDelayMax time.Duration

	NoticeDelayMin time.Duration
	NoticeDelayMax time.Duration

	WaitJitter time.Duration

	NewTabTimeout time.Duration
}

// ProfileFast минимальные задержки, без имитации опечаток
func ProfileFast() Profile {
	return Profile{
		Name:           "fast",
		TypeDelayMin:   5 * time.Millisecond,
		TypeDelayMax:   20 * time.Millisecond,
		TypoChance:     0,
		ScrollStepMin:  400,
		ScrollStepMax:  800,
		ScrollPauseMin: 100 * time.Millisecond,
		ScrollPauseMax: 300 * time.Millisecond,
		NoticeDelayMin: 50 * time.Millisecond,
		NoticeDelayMax: 150 * time.Millisecond,
		WaitJitter:     100 * time.Millisecond,
		NewTabTimeout:  3 * time.Second,
	}
}

// ProfileNormal задержки, типичные для спокойного пользователя
func ProfileNormal() Profile {
	return Profile{
		Name:             "normal",
		TypeDelayMin:     10 * time.Millisecond,
		TypeDelayMax:     100 * time.Millisecond,
		TypoChance:       0.05,
		ScrollStepMin:    200,
		ScrollStepMax:    500,
		ScrollPauseMin:   300 * time.Millisecond,
		ScrollPauseMax:   1200 * time.Millisecond,
		PreClickDelayMin: 300 * time.Millisecond,
		PreClickDelayMax: 800 * time.Millisecond,
		NoticeDelayMin:   200 * time.Millisecond,
		NoticeDelayMax:   800 * time.Millisecond,
		WaitJitter:       300 * time.Millisecond,
		NewTabTimeout:    5 * time.Second,
	}
}

// ProfileSafe максимальные задержки для самых подозрительных источников
func ProfileSafe() Profile {
	return Profile{
		Name:             "safe",
		TypeDelayMin:     50 * time.Millisecond,
		TypeDelayMax:     250 * time.Millisecond,
		TypoChance:       0.08,
		ScrollStepMin:    150,
		ScrollStepMax:    400,
		ScrollPauseMin:   800 * time.Millisecond,
		ScrollPauseMax:   2500 * time.Millisecond,
		PreClickDelayMin: 600 * time.Millisecond,
		PreClickDelayMax: 1500 * time.Millisecond,
		NoticeDelayMin:   500 * time.Millisecond,
		NoticeDelayMax:   1500 * time.Millisecond,
		WaitJitter:       700 * time.Millisecond,
		NewTabTimeout:    10 * time.Second,
	}
}

// ProfileByName возвращает профиль по имени; неизвестное имя дает normal
func ProfileByName(name string) Profile {
	switch name {
	case "fast":
		return ProfileFast()
	case "safe":
		return ProfileSafe()
	default:
		return ProfileNormal()
	}
}

// Humanizer формирует правдоподобные последовательности взаимодействий:
// посимвольный ввод с опечатками, ступенчатая прокрутка, дрожание пауз.
// Чистый поведенческий слой без бизнес-логики.
type Humanizer struct {
	driver  Driver
	profile Profile
	rnd     *rand.Rand
	logger  *slog.Logger
}

// NewHumanizer создает слой гуманизации над драйвером.
// rnd может быть nil — тогда используется источник со случайным seed.
func NewHumanizer(driver Driver, profile Profile, rnd *rand.Rand) *Humanizer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanizer{
		driver:  driver,
		profile: profile,
		rnd:     rnd,
		logger:  slog.Default().With("component", "humanizer", "profile", profile.Name),
	}
}

// Profile возвращает активный профиль
func (h *Humanizer) Profile() Profile {
	return h.profile
}

// durationBetween случайная длительность в [min, max]
func (h *Humanizer) durationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(h.rnd.Int63n(int64(max-min)))
}

// Wait пауза base с дрожанием ±WaitJitter
func (h *Humanizer) Wait(base time.Duration) {
	jitter := time.Duration(h.rnd.Int63n(int64(2*h.profile.WaitJitter)+1)) - h.profile.WaitJitter
	d := base + jitter
	if d < 50*time.Millisecond {
		d = 50 * time.Millisecond
	}
	time.Sleep(d)
}

// Type вводит текст в поле посимвольно со случайными межклавишными
// паузами и редкими опечатками (неверный символ, пауза, Backspace).
// При ошибке посимвольного ввода поле заполняется текстом целиком.
func (h *Humanizer) Type(ctx context.Context, sel, text string) error {
	if err := h.driver.Click(ctx, sel); err != nil {
		return fmt.Errorf("не удалось активировать поле %s: %w", sel, err)
	}
	if err := h.driver.Clear(ctx, sel); err != nil {
		return fmt.Errorf("не удалось очистить поле %s: %w", sel, err)
	}
	h.Wait(h.durationBetween(100*time.Millisecond, 300*time.Millisecond))

	for _, r := range text {
		if err := h.driver.SendKeys(ctx, sel, string(r)); err != nil {
			// Посимвольный ввод сорвался, добиваем остаток одним вызовом
			h.logger.Warn("Посимвольный ввод не удался, ввод целиком", "error", err)
			return h.driver.SendKeys(ctx, sel, text)
		}
		time.Sleep(h.durationBetween(h.profile.TypeDelayMin, h.profile.TypeDelayMax))

		if h.profile.TypoChance > 0 && h.rnd.Float64() < h.profile.TypoChance {
			wrong := gofakeit.RandomString([]string{"a", "s", "d", "f", "j", "k", "l"})
			if err := h.driver.SendKeys(ctx, sel, wrong); err == nil {
				time.Sleep(h.durationBetween(100*time.Millisecond, 200*time.Millisecond))
				_ = h.driver.SendKeys(ctx, sel, "\b")
				time.Sleep(h.durationBetween(100*time.Millisecond, 200*time.Millisecond))
			}
		}
	}
	return nil
}

// Scroll прокручивает страницу вниз ступенями случайного размера с
// паузами, изредка задерживаясь подольше, и с вероятностью 1/2
// чуть отматывает назад в конце
func (h *Humanizer) Scroll(ctx context.Context) error {
	var height int
	if err := h.driver.Evaluate(ctx, `document.body.scrollHeight`, &height); err != nil {
		return err
	}

	current := 0
	for current < height {
		step := h.profile.ScrollStepMin
		if h.profile.ScrollStepMax > h.profile.ScrollStepMin {
			step += h.rnd.Intn(h.profile.ScrollStepMax - h.profile.ScrollStepMin)
		}
		current += step
		if current > height {
			current = height
		}

		if err := h.driver.Evaluate(ctx, fmt.Sprintf(`window.scrollTo(0, %d)`, current), nil); err != nil {
			return err
		}
		time.Sleep(h.durationBetween(h.profile.ScrollPauseMin, h.profile.ScrollPauseMax))

		if h.rnd.Float64() < 0.3 {
			time.Sleep(h.durationBetween(h.profile.ScrollPauseMin, 2*h.profile.ScrollPauseMax))
		}

		var newHeight int
		if err := h.driver.Evaluate(ctx, `document.body.scrollHeight`, &newHeight); err == nil && newHeight > height {
			height = newHeight
		}
	}

	if h.rnd.Float64() < 0.5 {
		back := 100 + h.rnd.Intn(200)
		_ = h.driver.Evaluate(ctx, fmt.Sprintf(`window.scrollTo(0, %d)`, current-back), nil)
		time.Sleep(h.durationBetween(500*time.Millisecond, time.Second))
	}
	return nil
}

// MoveAround слегка блуждает курсором по странице между действиями.
// Декоративный шаг: сбои движения сценарий не прерывают.
func (h *Humanizer) MoveAround(ctx context.Context) {
	x := 200 + h.rnd.Intn(400)
	y := 150 + h.rnd.Intn(300)
	for i := 0; i < 2+h.rnd.Intn(3); i++ {
		x += h.rnd.Intn(161) - 80
		y += h.rnd.Intn(121) - 60
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		js := fmt.Sprintf(`document.dispatchEvent(new MouseEvent("mousemove", {clientX: %d, clientY: %d, bubbles: true}))`, x, y)
		if err := h.driver.Evaluate(ctx, js, nil); err != nil {
			return
		}
		time.Sleep(h.durationBetween(h.profile.NoticeDelayMin, h.profile.NoticeDelayMax))
	}
}

// WaitVisible ждет видимости элемента; на успешном пути добавляет
// небольшую задержку «заметил элемент». Таймаут — штатный исход.
func (h *Humanizer) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if !h.driver.Alive(ctx) {
		return ErrSessionLost
	}
	if err := h.driver.WaitVisible(ctx, sel, timeout); err != nil {
		return err
	}
	time.Sleep(h.durationBetween(h.profile.NoticeDelayMin, h.profile.NoticeDelayMax))
	return nil
}

// Click кликает с предварительной паузой и обрабатывает возможную новую
// вкладку: если за NewTabTimeout она появилась — переключается на нее,
// иначе считает переход внутристраничным (это не ошибка)
func (h *Humanizer) Click(ctx context.Context, sel string) error {
	before, err := h.driver.Windows(ctx)
	if err != nil {
		return err
	}

	time.Sleep(h.durationBetween(h.profile.PreClickDelayMin, h.profile.PreClickDelayMax))
	if err := h.driver.Click(ctx, sel); err != nil {
		return err
	}

	// Последняя проверка выполняется уже после дедлайна, чтобы вкладка,
	// открывшаяся под самый конец ожидания, не потерялась
	deadline := time.Now().Add(h.profile.NewTabTimeout)
	for {
		after, err := h.driver.Windows(ctx)
		if err != nil {
			return err
		}
		if tab := newWindow(before, after); tab != "" {
			h.logger.Debug("Открылась новая вкладка, переключаемся", "tab", tab)
			return h.driver.SwitchWindow(ctx, tab)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pause := 200 * time.Millisecond
		if pause > remaining {
			pause = remaining
		}
		time.Sleep(pause)
	}
	// Новая вкладка не появилась — навигация прошла в текущей
	return nil
}

func newWindow(before, after []string) string {
	known := make(map[string]struct{}, len(before))
	for _, w := range before {
		known[w] = struct{}{}
	}
	for _, w := range after {
		if _, ok := known[w]; !ok {
			return w
		}
	}
	return ""
}
