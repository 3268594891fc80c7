// Package resolver реализует каскадный поиск организации по источникам:
// фиксированная последовательность коннекторов, обрыв на первом
// подтвержденном результате, проброс ИНН между источниками и
// ограниченный бюджетом AI-шаг в самом конце.
package resolver

import (
	"context"
	"log/slog"
	"sync/atomic"

	"orgresolver/normalization"
	"orgresolver/registry"
)

// Budget общебатчевый счетчик обращений к AI-шагу. Только убывает;
// исчерпание отключает AI-шаг для всех последующих запросов пакета.
// Потокобезопасен: вызывающая сторона может читать остаток из другой
// горутины.
type Budget struct {
	remaining atomic.Int64
}

// NewBudget создает бюджет на n обращений
func NewBudget(n int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(n))
	return b
}

// TryAcquire списывает одно обращение. false — бюджет исчерпан.
func (b *Budget) TryAcquire() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Remaining возвращает остаток бюджета
func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}

// CascadeState рабочее состояние каскада по одному запросу
type CascadeState struct {
	Tried        []registry.Source
	PendingTaxID string // ИНН из ЕГРЮЛ, не подтвержденный карточкой
}

// Resolver прогоняет один запрос через каскад источников. Зависит только
// от интерфейса registry.Connector, что позволяет тестировать каскадную
// логику на подменных коннекторах без браузера и сети.
type Resolver struct {
	rusProfile registry.Connector
	kontur     registry.Connector
	egrul      registry.Connector
	fallback   registry.Connector // AI-шаг; nil — шаг отключен
	budget     *Budget
	morph      normalization.Morph // nil — родительный падеж не заполняется
	logger     *slog.Logger
}

// Config зависимости резолвера
type Config struct {
	RusProfile registry.Connector
	Kontur     registry.Connector
	EGRUL      registry.Connector
	Fallback   registry.Connector
	Budget     *Budget
	Morph      normalization.Morph
}

// New создает резолвер
func New(cfg Config) *Resolver {
	budget := cfg.Budget
	if budget == nil {
		budget = NewBudget(0)
	}
	return &Resolver{
		rusProfile: cfg.RusProfile,
		kontur:     cfg.Kontur,
		egrul:      cfg.EGRUL,
		fallback:   cfg.Fallback,
		budget:     budget,
		morph:      cfg.Morph,
		logger:     slog.Default().With("component", "resolver"),
	}
}

// Budget возвращает общебатчевый бюджет AI-шага
func (r *Resolver) Budget() *Budget {
	return r.budget
}

// Resolve ищет организацию по неформальному названию. Всегда возвращает
// результат: при полном промахе — нулевое значение с меткой «не найдено».
// Ошибка возвращается только при невосстановимой потере браузерной
// сессии; она прерывает весь пакет.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (registry.SearchResult, error) {
	state := &CascadeState{}
	log := r.logger.With("query", rawName)

	// 1. RusProfile по названию
	if result, done, err := r.step(ctx, state, r.rusProfile, registry.SearchQuery{Name: rawName}, log); done || err != nil {
		return r.finish(result, err)
	}

	// 2. Контур Фокус по названию
	if result, done, err := r.step(ctx, state, r.kontur, registry.SearchQuery{Name: rawName}, log); done || err != nil {
		return r.finish(result, err)
	}

	// 3. ЕГРЮЛ: либо полная карточка, либо неподтвержденный ИНН
	egrulResult, err := r.egrul.Search(ctx, registry.SearchQuery{Name: rawName})
	state.Tried = append(state.Tried, r.egrul.Source())
	if err != nil {
		return registry.NotFound(), err
	}
	if egrulResult.Found {
		log.Info("Найдено", "source", egrulResult.Source)
		return r.finish(egrulResult, nil)
	}
	state.PendingTaxID = egrulResult.TaxID

	// ИНН без карточки — не находка, но сильный ключ: повторяем поиск
	// по нему там, где поиск по названию уже провалился
	if state.PendingTaxID != "" {
		log.Info("Повторный поиск по ИНН из ЕГРЮЛ", "tax_id", state.PendingTaxID)
		idQuery := registry.SearchQuery{TaxID: state.PendingTaxID}

		for _, conn := range []registry.Connector{r.rusProfile, r.kontur} {
			result, err := conn.Search(ctx, idQuery)
			state.Tried = append(state.Tried, conn.Source())
			if err != nil {
				return registry.NotFound(), err
			}
			if result.Found {
				result.Source = conn.Source().WithIDRelookup()
				log.Info("Найдено по ИНН", "source", result.Source)
				return r.finish(result, nil)
			}
		}
	}

	// 4. AI-шаг, только пока есть бюджет; каждая попытка, удачная или
	// нет, списывает ровно одно обращение
	if r.fallback != nil {
		if r.budget.TryAcquire() {
			log.Info("AI-шаг", "budget_left", r.budget.Remaining())
			result, err := r.fallback.Search(ctx, registry.SearchQuery{Name: rawName})
			state.Tried = append(state.Tried, r.fallback.Source())
			if err != nil {
				return registry.NotFound(), err
			}
			if result.Found {
				return r.finish(result, nil)
			}
		} else {
			log.Info("Бюджет AI-шага исчерпан, шаг пропущен")
		}
	}

	log.Info("Не найдено ни в одном источнике", "tried", len(state.Tried))
	return registry.NotFound(), nil
}

// step одна попытка источника по названию
func (r *Resolver) step(ctx context.Context, state *CascadeState, conn registry.Connector, query registry.SearchQuery, log *slog.Logger) (registry.SearchResult, bool, error) {
	result, err := conn.Search(ctx, query)
	state.Tried = append(state.Tried, conn.Source())
	if err != nil {
		return registry.NotFound(), false, err
	}
	if result.Found {
		log.Info("Найдено", "source", result.Source)
		return result, true, nil
	}
	return result, false, nil
}

// finish дозаполняет родительный падеж найденного названия
func (r *Resolver) finish(result registry.SearchResult, err error) (registry.SearchResult, error) {
	if err != nil {
		return result, err
	}
	if result.Found && result.NameGenitive == "" && r.morph != nil {
		result.NameGenitive = normalization.GenitiveName(result.Name, r.morph)
	}
	return result, nil
}
