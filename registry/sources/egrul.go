package sources

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"orgresolver/normalization"
	"orgresolver/registry"
)

const egrulBaseURL = "https://egrul.nalog.ru/"

var (
	fullNameRe    = regexp.MustCompile(`Полное наименование[:\s]*([^\n]+)`)
	detailAddrRe  = regexp.MustCompile(`Адрес[:\s]*([^\n]+)`)
)

// EGRUL коннектор к официальному реестру ЕГРЮЛ. Особенность источника:
// выдача может содержать ИНН без открываемой карточки — такой результат
// возвращается с Found=false, но с заполненным TaxID, и резолвер
// использует его как ключ повторного поиска в других источниках.
type EGRUL struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
}

var _ registry.Connector = (*EGRUL)(nil)

// NewEGRUL создает коннектор ЕГРЮЛ
func NewEGRUL(deps Deps) *EGRUL {
	return &EGRUL{
		deps:    deps,
		limiter: deps.newLimiter(),
		logger:  sourceLogger("egrul"),
		baseURL: egrulBaseURL,
	}
}

// Source возвращает метку источника
func (e *EGRUL) Source() registry.Source {
	return registry.SourceEGRUL
}

// Search ищет организацию, перебирая поисковые варианты. Незакрытый
// результат (только ИНН) пробрасывается наверх с Found=false.
func (e *EGRUL) Search(ctx context.Context, query registry.SearchQuery) (registry.SearchResult, error) {
	name := query.Name
	if query.ByID() {
		name = query.TaxID
	}

	var pendingTaxID, pendingRegNumber string

	for _, variant := range normalization.GenerateVariants(name) {
		e.logger.Info("Поиск варианта", "rank", variant.Rank, "query", variant.Text)

		result, err := e.tryVariant(ctx, variant.Text)
		if err != nil {
			if fatal(err) {
				return registry.NotFound(), err
			}
			e.logger.Warn("Вариант не удался", "query", variant.Text, "error", err)
			continue
		}

		if result.Found {
			if e.deps.Validator.Validate(name, result, !query.ByID()) {
				return result, nil
			}
			e.logger.Info("Кандидат отклонен валидатором", "candidate", result.Name)
			continue
		}

		// Карточка не открылась, но ИНН в выдаче был — запоминаем его
		// как ключ для повторного поиска
		if result.TaxID != "" && pendingTaxID == "" {
			pendingTaxID = result.TaxID
			pendingRegNumber = result.RegNumber
		}
	}

	notFound := registry.NotFound()
	notFound.TaxID = pendingTaxID
	notFound.RegNumber = pendingRegNumber
	if pendingTaxID != "" {
		e.logger.Info("Найден только ИНН, без полных данных", "tax_id", pendingTaxID)
	}
	return notFound, nil
}

func (e *EGRUL) tryVariant(ctx context.Context, variant string) (registry.SearchResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return registry.NotFound(), err
	}
	if err := e.deps.Driver.Navigate(ctx, e.baseURL); err != nil {
		return registry.NotFound(), err
	}
	e.deps.Humanizer.Wait(time.Second)

	if _, err := e.deps.Captcha.Resolve(ctx); err != nil {
		return registry.NotFound(), err
	}

	if err := e.deps.Humanizer.WaitVisible(ctx, "#query", 7*time.Second); err != nil {
		return registry.NotFound(), fmt.Errorf("поле поиска не найдено: %w", err)
	}
	if err := e.deps.Humanizer.Type(ctx, "#query", variant); err != nil {
		return registry.NotFound(), err
	}
	if err := e.deps.Driver.SendKeys(ctx, "#query", "\r"); err != nil {
		return registry.NotFound(), err
	}

	if err := e.deps.Humanizer.WaitVisible(ctx, ".res-text", 10*time.Second); err != nil {
		if fatal(err) {
			return registry.NotFound(), err
		}
		return registry.NotFound(), fmt.Errorf("нет результатов: %w", err)
	}
	if err := e.deps.Humanizer.Scroll(ctx); err != nil && fatal(err) {
		return registry.NotFound(), err
	}

	bodyText, err := e.deps.Driver.Text(ctx, "body")
	if err != nil {
		return registry.NotFound(), err
	}

	result := registry.NotFound()
	result.TaxID = extractTaxID(bodyText)
	result.RegNumber = extractRegNumber(bodyText)

	// Пытаемся открыть карточку первого результата
	if err := e.deps.Humanizer.Click(ctx, ".res-text a"); err == nil {
		e.deps.Humanizer.Wait(2 * time.Second)
		if err := e.deps.Humanizer.Scroll(ctx); err != nil && fatal(err) {
			return registry.NotFound(), err
		}

		detailText, err := e.deps.Driver.Text(ctx, "body")
		if err != nil {
			if fatal(err) {
				return registry.NotFound(), err
			}
		} else {
			if m := fullNameRe.FindStringSubmatch(detailText); m != nil {
				result.Name = normalization.NormalizeRegisteredName(strings.TrimSpace(m[1]))
			}
			if m := detailAddrRe.FindStringSubmatch(detailText); m != nil {
				result.Address = strings.TrimSpace(m[1])
				result.PostalCode = extractPostalCode(result.Address)
			}
		}
	} else if fatal(err) {
		return registry.NotFound(), err
	}

	if result.Name != "" && result.Address != "" {
		result.Found = true
		result.Source = registry.SourceEGRUL
		e.logger.Info("Карточка извлечена", "tax_id", result.TaxID, "reg_number", result.RegNumber)
	}
	return result, nil
}
