package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"orgresolver/captcha"
	"orgresolver/normalization"
	"orgresolver/registry"
)

const rusProfileBaseURL = "https://www.rusprofile.ru"

// RusProfile коннектор к rusprofile.ru: расширенный поиск по названию
// либо прямой поиск по ИНН, извлечение карточки организации.
type RusProfile struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
}

var _ registry.Connector = (*RusProfile)(nil)

// NewRusProfile создает коннектор RusProfile
func NewRusProfile(deps Deps) *RusProfile {
	return &RusProfile{
		deps:    deps,
		limiter: deps.newLimiter(),
		logger:  sourceLogger("rusprofile"),
		baseURL: rusProfileBaseURL,
	}
}

// Source возвращает метку источника
func (r *RusProfile) Source() registry.Source {
	return registry.SourceRusProfile
}

// Search ищет организацию. Поиск по названию перебирает поисковые
// варианты до первого кандидата, прошедшего валидатор; поиск по ИНН
// выполняется одним запросом с ослабленной валидацией.
func (r *RusProfile) Search(ctx context.Context, query registry.SearchQuery) (registry.SearchResult, error) {
	if query.ByID() {
		return r.searchByID(ctx, query.TaxID)
	}
	return r.searchByName(ctx, query.Name)
}

func (r *RusProfile) searchByID(ctx context.Context, taxID string) (registry.SearchResult, error) {
	if err := r.open(ctx, fmt.Sprintf("%s/search?query=%s", r.baseURL, url.QueryEscape(taxID))); err != nil {
		if fatal(err) {
			return registry.NotFound(), err
		}
		return registry.NotFound(), nil
	}

	// По ИНН источник часто открывает карточку сразу, минуя список
	if err := r.deps.Humanizer.WaitVisible(ctx, "#clip_name-long", 3*time.Second); err == nil {
		return r.validateByID(ctx, taxID)
	} else if fatal(err) {
		return registry.NotFound(), err
	}

	if err := r.openFirstResult(ctx, 5*time.Second); err != nil {
		if fatal(err) {
			return registry.NotFound(), err
		}
		r.logger.Info("Нет результатов по ИНН", "tax_id", taxID)
		return registry.NotFound(), nil
	}
	return r.validateByID(ctx, taxID)
}

// validateByID извлекает карточку и прогоняет ослабленную валидацию:
// пересечение ключевых слов не требуется, но стоп-слова и признак
// учреждения проверяются как обычно
func (r *RusProfile) validateByID(ctx context.Context, taxID string) (registry.SearchResult, error) {
	result, err := r.extractDetail(ctx, taxID, false)
	if err != nil {
		return result, err
	}
	if result.Found && !r.deps.Validator.Validate(taxID, result, false) {
		r.logger.Info("Кандидат отклонен валидатором", "candidate", result.Name)
		return registry.NotFound(), nil
	}
	return result, nil
}

func (r *RusProfile) searchByName(ctx context.Context, name string) (registry.SearchResult, error) {
	variants := normalization.GenerateVariants(name)

	for _, variant := range variants {
		r.logger.Info("Поиск варианта", "rank", variant.Rank, "query", variant.Text)

		result, err := r.tryVariant(ctx, variant.Text)
		if err != nil {
			if fatal(err) {
				return registry.NotFound(), err
			}
			// Сбой варианта — не сбой поиска
			r.logger.Warn("Вариант не удался", "query", variant.Text, "error", err)
			continue
		}
		if !result.Found {
			continue
		}

		if r.deps.Validator.Validate(name, result, true) {
			return result, nil
		}
		r.logger.Info("Кандидат отклонен валидатором", "candidate", result.Name)
	}
	return registry.NotFound(), nil
}

func (r *RusProfile) tryVariant(ctx context.Context, variant string) (registry.SearchResult, error) {
	if err := r.open(ctx, r.baseURL+"/search-advanced"); err != nil {
		return registry.NotFound(), err
	}

	if err := r.deps.Humanizer.WaitVisible(ctx, "#advanced-search-query", 10*time.Second); err != nil {
		return registry.NotFound(), fmt.Errorf("поисковая форма не загрузилась: %w", err)
	}
	r.deps.Humanizer.MoveAround(ctx)
	if err := r.deps.Humanizer.Type(ctx, "#advanced-search-query", variant); err != nil {
		return registry.NotFound(), err
	}
	if err := r.deps.Driver.SendKeys(ctx, "#advanced-search-query", "\r"); err != nil {
		return registry.NotFound(), err
	}
	r.deps.Humanizer.Wait(time.Second)

	if err := r.openFirstResult(ctx, 10*time.Second); err != nil {
		return registry.NotFound(), err
	}
	return r.extractDetail(ctx, "", true)
}

// open навигация с учетом лимита запросов и проверкой заслона
func (r *RusProfile) open(ctx context.Context, pageURL string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := r.deps.Driver.Navigate(ctx, pageURL); err != nil {
		return err
	}
	r.deps.Humanizer.Wait(time.Second)

	state, err := r.deps.Captcha.Resolve(ctx)
	if err != nil {
		return err
	}
	if state == captcha.Resolved {
		r.logger.Info("Заслон снят, продолжаем")
	}
	return nil
}

// openFirstResult дожидается списка результатов и открывает первый.
// Отсутствие списка за таймаут — штатная пустая выдача.
func (r *RusProfile) openFirstResult(ctx context.Context, timeout time.Duration) error {
	if err := r.deps.Humanizer.WaitVisible(ctx, ".list-element__title", timeout); err != nil {
		return fmt.Errorf("нет результатов: %w", err)
	}
	if err := r.deps.Humanizer.Scroll(ctx); err != nil && fatal(err) {
		return err
	}

	source, err := r.deps.Driver.PageSource(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return fmt.Errorf("не удалось разобрать выдачу: %w", err)
	}

	href, ok := doc.Find("a.list-element__title").First().Attr("href")
	if !ok || href == "" {
		return fmt.Errorf("пустой список результатов")
	}
	r.logger.Info("Результаты найдены", "count", doc.Find("a.list-element__title").Length())

	if err := r.deps.Humanizer.Click(ctx, fmt.Sprintf(`a[href=%q]`, href)); err != nil {
		// Клик сорвался — открываем ссылку напрямую
		if err := r.deps.Driver.Navigate(ctx, r.baseURL+href); err != nil {
			return err
		}
	}
	r.deps.Humanizer.Wait(1500 * time.Millisecond)
	return nil
}

// extractDetail вытаскивает поля карточки организации
func (r *RusProfile) extractDetail(ctx context.Context, knownTaxID string, scroll bool) (registry.SearchResult, error) {
	if scroll {
		if err := r.deps.Humanizer.Scroll(ctx); err != nil && fatal(err) {
			return registry.NotFound(), err
		}
	}

	if err := r.deps.Humanizer.WaitVisible(ctx, "#clip_name-long", 10*time.Second); err != nil {
		if fatal(err) {
			return registry.NotFound(), err
		}
		return registry.NotFound(), fmt.Errorf("карточка организации не загрузилась: %w", err)
	}

	name, err := r.deps.Driver.Text(ctx, "#clip_name-long")
	if err != nil {
		return registry.NotFound(), err
	}
	address, err := r.deps.Driver.Text(ctx, "#clip_address")
	if err != nil {
		return registry.NotFound(), err
	}
	bodyText, err := r.deps.Driver.Text(ctx, "body")
	if err != nil {
		return registry.NotFound(), err
	}

	result := registry.SearchResult{
		Found:      true,
		Name:       normalization.NormalizeRegisteredName(strings.TrimSpace(name)),
		Address:    strings.TrimSpace(address),
		PostalCode: extractPostalCode(address),
		TaxID:      extractTaxID(bodyText),
		RegNumber:  extractRegNumber(bodyText),
		Source:     registry.SourceRusProfile,
	}
	if result.TaxID == "" {
		result.TaxID = knownTaxID
	}

	r.logger.Info("Карточка извлечена", "tax_id", result.TaxID, "reg_number", result.RegNumber)
	return result, nil
}
