package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"orgresolver/normalization"
	"orgresolver/registry"
)

const konturBaseURL = "https://focus.kontur.ru"

// formWords слова форм собственности, по которым в выдаче Контура
// опознается строка с полным названием организации
var formWords = []string{
	"АВТОНОМНАЯ",
	"АВТОНОМНОЕ",
	"ГОСУДАРСТВЕННАЯ",
	"ГОСУДАРСТВЕННОЕ",
	"МУНИЦИПАЛЬНАЯ",
	"МУНИЦИПАЛЬНОЕ",
	"ОБЩЕОБРАЗОВАТЕЛЬНАЯ",
	"ОБЩЕОБРАЗОВАТЕЛЬНОЕ",
	"НЕКОММЕРЧЕСКАЯ",
	"ФЕДЕРАЛЬНОЕ",
}

// KonturFocus коннектор к focus.kontur.ru. Источник не отдает карточку
// стабильными селекторами, поэтому поля извлекаются регулярками из
// текста выдачи.
type KonturFocus struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
}

var _ registry.Connector = (*KonturFocus)(nil)

// NewKonturFocus создает коннектор Контур Фокус
func NewKonturFocus(deps Deps) *KonturFocus {
	return &KonturFocus{
		deps:    deps,
		limiter: deps.newLimiter(),
		logger:  sourceLogger("kontur_focus"),
		baseURL: konturBaseURL,
	}
}

// Source возвращает метку источника
func (k *KonturFocus) Source() registry.Source {
	return registry.SourceKontur
}

// Search ищет организацию по названию (с перебором вариантов) или по ИНН
func (k *KonturFocus) Search(ctx context.Context, query registry.SearchQuery) (registry.SearchResult, error) {
	if query.ByID() {
		result, err := k.tryQuery(ctx, query.TaxID)
		if err != nil {
			if fatal(err) {
				return registry.NotFound(), err
			}
			return registry.NotFound(), nil
		}
		if result.Found && !k.deps.Validator.Validate(query.TaxID, result, false) {
			k.logger.Info("Кандидат отклонен валидатором", "candidate", result.Name)
			return registry.NotFound(), nil
		}
		return result, nil
	}

	for _, variant := range normalization.GenerateVariants(query.Name) {
		k.logger.Info("Поиск варианта", "rank", variant.Rank, "query", variant.Text)

		result, err := k.tryQuery(ctx, variant.Text)
		if err != nil {
			if fatal(err) {
				return registry.NotFound(), err
			}
			k.logger.Warn("Вариант не удался", "query", variant.Text, "error", err)
			continue
		}
		if !result.Found {
			continue
		}
		if k.deps.Validator.Validate(query.Name, result, true) {
			return result, nil
		}
		k.logger.Info("Кандидат отклонен валидатором", "candidate", result.Name)
	}
	return registry.NotFound(), nil
}

func (k *KonturFocus) tryQuery(ctx context.Context, query string) (registry.SearchResult, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return registry.NotFound(), err
	}

	searchURL := fmt.Sprintf("%s/search?country=RU&query=%s", k.baseURL, url.QueryEscape(query))
	if err := k.deps.Driver.Navigate(ctx, searchURL); err != nil {
		return registry.NotFound(), err
	}
	k.deps.Humanizer.Wait(time.Second)

	if _, err := k.deps.Captcha.Resolve(ctx); err != nil {
		return registry.NotFound(), err
	}

	// Выдача готова, когда на странице появляется «ИНН» либо явный
	// признак пустого результата
	seen, err := waitForBodyText(ctx, k.deps.Driver, []string{"ИНН", "Найдено 0", "Ничего не найдено"}, 5*time.Second)
	if err != nil {
		return registry.NotFound(), err
	}
	if !seen {
		k.logger.Info("Таймаут ожидания выдачи", "query", query)
		return registry.NotFound(), nil
	}

	if err := k.deps.Humanizer.Scroll(ctx); err != nil && fatal(err) {
		return registry.NotFound(), err
	}

	bodyText, err := k.deps.Driver.Text(ctx, "body")
	if err != nil {
		return registry.NotFound(), err
	}

	if strings.Contains(bodyText, "Найдено 0") || strings.Contains(bodyText, "Ничего не найдено") {
		k.logger.Info("Пустая выдача", "query", query)
		return registry.NotFound(), nil
	}

	return k.extract(bodyText), nil
}

// extract собирает результат из текста выдачи
func (k *KonturFocus) extract(bodyText string) registry.SearchResult {
	result := registry.NotFound()
	result.TaxID = extractTaxID(bodyText)
	result.RegNumber = extractRegNumber(bodyText)

	for _, line := range strings.Split(bodyText, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= 20 || strings.Contains(line, "ИНН") {
			continue
		}
		upper := strings.ToUpper(line)
		for _, w := range formWords {
			if strings.Contains(upper, w) {
				result.Name = normalization.NormalizeRegisteredName(line)
				break
			}
		}
		if result.Name != "" {
			break
		}
	}

	if addr := addressRe.FindStringSubmatch(bodyText); addr != nil {
		result.PostalCode = addr[1]
		result.Address = addr[1] + ", " + strings.TrimSpace(addr[2])
	}

	if result.TaxID != "" || result.Name != "" {
		result.Found = true
		result.Source = registry.SourceKontur
		k.logger.Info("Запись извлечена", "tax_id", result.TaxID, "reg_number", result.RegNumber)
	}
	return result
}
