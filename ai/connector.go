package ai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"orgresolver/registry"
)

// Completer минимальная поверхность генеративного сервиса,
// нужная коннектору. Реализуется Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Connector последний шаг каскада: просит генеративную модель вернуть
// запись ЕГРЮЛ напрямую в фиксированном строчном формате. Кривой или
// неполный ответ трактуется как «не найдено», а не как ошибка.
type Connector struct {
	completer Completer
	logger    *slog.Logger
}

var _ registry.Connector = (*Connector)(nil)

// NewConnector создает AI-коннектор
func NewConnector(completer Completer) *Connector {
	return &Connector{
		completer: completer,
		logger:    slog.Default().With("component", "gigachat_connector"),
	}
}

// Source возвращает метку источника
func (c *Connector) Source() registry.Source {
	return registry.SourceGigaChat
}

const promptTemplate = `Найди организацию в ЕГРЮЛ по неформальному названию: %q

Верни данные СТРОГО в формате, по одной строке на поле:
NAME: полное зарегистрированное название
TAX_ID: ИНН (10-12 цифр)
REG_NUMBER: ОГРН (13-15 цифр)
ADDRESS: юридический адрес с индексом

Правила:
- НЕ выдумывай: если организации нет в ЕГРЮЛ, верни одну строку NOT_FOUND
- Неизвестное поле пропусти
- Никаких пояснений, только строки формата`

// Search выполняет запрос к модели и разбирает ответ построчно
func (c *Connector) Search(ctx context.Context, query registry.SearchQuery) (registry.SearchResult, error) {
	name := query.Name
	if name == "" {
		name = query.TaxID
	}

	raw, err := c.completer.Complete(ctx, fmt.Sprintf(promptTemplate, name))
	if err != nil {
		// Сбой сервиса не роняет пакет: шаг просто не дал результата
		c.logger.Warn("Запрос к GigaChat не удался", "error", err)
		return registry.NotFound(), nil
	}

	result := ParseStructuredReply(raw)
	if result.Found {
		result.Source = registry.SourceGigaChat
		c.logger.Info("GigaChat вернул запись", "tax_id", result.TaxID)
	}
	return result, nil
}

// ParseStructuredReply разбирает ответ модели по префиксам строк.
// NOT_FOUND где угодно в ответе — явный отрицательный сигнал.
// Результат считается найденным только при непустом NAME.
func ParseStructuredReply(raw string) registry.SearchResult {
	result := registry.NotFound()

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "NOT_FOUND"):
			return registry.NotFound()
		case strings.HasPrefix(line, "NAME:"):
			result.Name = strings.TrimSpace(strings.TrimPrefix(line, "NAME:"))
		case strings.HasPrefix(line, "TAX_ID:"):
			result.TaxID = digitsOnly(strings.TrimPrefix(line, "TAX_ID:"))
		case strings.HasPrefix(line, "REG_NUMBER:"):
			result.RegNumber = digitsOnly(strings.TrimPrefix(line, "REG_NUMBER:"))
		case strings.HasPrefix(line, "ADDRESS:"):
			result.Address = strings.TrimSpace(strings.TrimPrefix(line, "ADDRESS:"))
		}
	}

	if result.Name == "" {
		return registry.NotFound()
	}
	result.Found = true
	result.PostalCode = extractPostalCode(result.Address)
	return result
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var postalCodeRe = regexp.MustCompile(`\b(\d{6})\b`)

func extractPostalCode(address string) string {
	if m := postalCodeRe.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	return ""
}
