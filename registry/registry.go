// Package registry определяет общий контракт коннекторов к реестрам юрлиц.
package registry

import "context"

// Source источник, из которого получен результат поиска
type Source string

const (
	SourceRusProfile Source = "RusProfile"
	SourceKontur     Source = "Контур Фокус"
	SourceEGRUL      Source = "ЕГРЮЛ"
	SourceGigaChat   Source = "GigaChat (ЕГРЮЛ)"
	SourceNotFound   Source = "Не найдено"
)

// WithIDRelookup помечает результат повторного поиска по ИНН, найденному в ЕГРЮЛ
func (s Source) WithIDRelookup() Source {
	return Source(string(SourceEGRUL) + " → " + string(s))
}

// SearchQuery запрос к реестру: название организации или ИНН.
// Заполняется ровно одно из полей; при непустом TaxID поиск идет по ИНН
// без генерации вариантов и без проверки пересечения ключевых слов.
type SearchQuery struct {
	Name  string
	TaxID string
}

// ByID сообщает, является ли запрос точным поиском по ИНН
func (q SearchQuery) ByID() bool {
	return q.TaxID != ""
}

// SearchResult нормализованная запись реестра.
// Нулевое значение означает «не найдено»: Found=false, все поля пустые.
type SearchResult struct {
	Found        bool   `json:"found"`
	Name         string `json:"name"`
	NameGenitive string `json:"name_genitive"`
	Address      string `json:"address"`
	PostalCode   string `json:"postal_code"`
	TaxID        string `json:"tax_id"`
	RegNumber    string `json:"reg_number"`
	Source       Source `json:"source"`
}

// NotFound возвращает пустой результат с пометкой источника
func NotFound() SearchResult {
	return SearchResult{Source: SourceNotFound}
}

// Connector выполняет поиск организации в одном источнике.
// Временные ошибки (таймауты, пустые выдачи, отклоненные валидатором
// кандидаты) коннектор гасит внутри себя и возвращает пустой результат;
// наружу выходит только невосстановимая потеря сессии браузера.
type Connector interface {
	Source() Source
	Search(ctx context.Context, query SearchQuery) (SearchResult, error)
}
