package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgresolver/registry"
)

// fakeConnector программируемый источник: отвечает по имени запроса либо
// по ИНН и считает обращения
type fakeConnector struct {
	source   registry.Source
	byName   map[string]registry.SearchResult
	byTaxID  map[string]registry.SearchResult
	err      error
	mu       sync.Mutex
	queries  []registry.SearchQuery
}

func newFakeConnector(source registry.Source) *fakeConnector {
	return &fakeConnector{
		source:  source,
		byName:  map[string]registry.SearchResult{},
		byTaxID: map[string]registry.SearchResult{},
	}
}

func (c *fakeConnector) Source() registry.Source { return c.source }

func (c *fakeConnector) Search(ctx context.Context, query registry.SearchQuery) (registry.SearchResult, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()

	if c.err != nil {
		return registry.NotFound(), c.err
	}
	if query.ByID() {
		if r, ok := c.byTaxID[query.TaxID]; ok {
			return r, nil
		}
		return registry.NotFound(), nil
	}
	if r, ok := c.byName[query.Name]; ok {
		return r, nil
	}
	return registry.NotFound(), nil
}

func (c *fakeConnector) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func found(source registry.Source, name string) registry.SearchResult {
	return registry.SearchResult{
		Found:  true,
		Name:   name,
		Source: source,
	}
}

func newTestResolver(rus, kontur, egrul, fallback registry.Connector, budget *Budget) *Resolver {
	return New(Config{
		RusProfile: rus,
		Kontur:     kontur,
		EGRUL:      egrul,
		Fallback:   fallback,
		Budget:     budget,
	})
}

func TestResolveShortCircuitsOnFirstHit(t *testing.T) {
	rus := newFakeConnector(registry.SourceRusProfile)
	rus.byName["школа 47"] = found(registry.SourceRusProfile, `МБОУ "ШКОЛА №47"`)
	kontur := newFakeConnector(registry.SourceKontur)
	egrul := newFakeConnector(registry.SourceEGRUL)

	r := newTestResolver(rus, kontur, egrul, nil, nil)
	result, err := r.Resolve(context.Background(), "школа 47")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, registry.SourceRusProfile, result.Source)
	assert.Equal(t, 0, kontur.calls(), "следующие источники не должны опрашиваться")
	assert.Equal(t, 0, egrul.calls())
}

func TestResolveFallsThroughCascade(t *testing.T) {
	rus := newFakeConnector(registry.SourceRusProfile)
	kontur := newFakeConnector(registry.SourceKontur)
	kontur.byName["гимназия 1"] = found(registry.SourceKontur, `МАОУ "ГИМНАЗИЯ №1"`)
	egrul := newFakeConnector(registry.SourceEGRUL)

	r := newTestResolver(rus, kontur, egrul, nil, nil)
	result, err := r.Resolve(context.Background(), "гимназия 1")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, registry.SourceKontur, result.Source)
	assert.Equal(t, 1, rus.calls())
	assert.Equal(t, 0, egrul.calls())
}

func TestResolveTaxIDRelookup(t *testing.T) {
	// ЕГРЮЛ нашел ИНН без карточки; повторный поиск по ИНН находит
	// карточку в RusProfile — источник помечается составной меткой
	rus := newFakeConnector(registry.SourceRusProfile)
	rus.byTaxID["6316044575"] = found(registry.SourceRusProfile, `МБОУ "ШКОЛА №47"`)
	kontur := newFakeConnector(registry.SourceKontur)
	egrul := newFakeConnector(registry.SourceEGRUL)
	egrul.byName["школа 47"] = registry.SearchResult{TaxID: "6316044575", Source: registry.SourceEGRUL}

	r := newTestResolver(rus, kontur, egrul, nil, nil)
	result, err := r.Resolve(context.Background(), "школа 47")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, registry.Source("ЕГРЮЛ → RusProfile"), result.Source)
	assert.Equal(t, 2, rus.calls(), "по названию и затем по ИНН")
}

func TestResolveTaxIDRelookupKonturSecond(t *testing.T) {
	rus := newFakeConnector(registry.SourceRusProfile)
	kontur := newFakeConnector(registry.SourceKontur)
	kontur.byTaxID["6316044575"] = found(registry.SourceKontur, `МБОУ "ШКОЛА №47"`)
	egrul := newFakeConnector(registry.SourceEGRUL)
	egrul.byName["школа 47"] = registry.SearchResult{TaxID: "6316044575", Source: registry.SourceEGRUL}

	r := newTestResolver(rus, kontur, egrul, nil, nil)
	result, err := r.Resolve(context.Background(), "школа 47")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, registry.Source("ЕГРЮЛ → Контур Фокус"), result.Source)
}

func TestResolveAIFallbackConsumesBudget(t *testing.T) {
	rus := newFakeConnector(registry.SourceRusProfile)
	kontur := newFakeConnector(registry.SourceKontur)
	egrul := newFakeConnector(registry.SourceEGRUL)
	fallback := newFakeConnector(registry.SourceGigaChat)
	fallback.byName["школа 47"] = found(registry.SourceGigaChat, `МБОУ "ШКОЛА №47"`)

	budget := NewBudget(2)
	r := newTestResolver(rus, kontur, egrul, fallback, budget)

	result, err := r.Resolve(context.Background(), "школа 47")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, 1, budget.Remaining())

	// Неудачная попытка тоже списывает обращение
	_, err = r.Resolve(context.Background(), "несуществующее")
	require.NoError(t, err)
	assert.Equal(t, 0, budget.Remaining())

	// Бюджет исчерпан: AI-шаг больше не вызывается
	_, err = r.Resolve(context.Background(), "еще одно")
	require.NoError(t, err)
	assert.Equal(t, 2, fallback.calls())
	assert.Equal(t, 0, budget.Remaining())
}

func TestResolveNotFoundAnywhere(t *testing.T) {
	r := newTestResolver(
		newFakeConnector(registry.SourceRusProfile),
		newFakeConnector(registry.SourceKontur),
		newFakeConnector(registry.SourceEGRUL),
		nil, nil,
	)
	result, err := r.Resolve(context.Background(), "ООО Ромашка")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, registry.SourceNotFound, result.Source)
	assert.Empty(t, result.Name)
}

func TestResolvePropagatesSessionErrors(t *testing.T) {
	sessionErr := errors.New("сессия потеряна")
	rus := newFakeConnector(registry.SourceRusProfile)
	rus.err = sessionErr

	r := newTestResolver(rus,
		newFakeConnector(registry.SourceKontur),
		newFakeConnector(registry.SourceEGRUL),
		nil, nil,
	)
	_, err := r.Resolve(context.Background(), "школа")
	assert.ErrorIs(t, err, sessionErr)
}

func TestResolveFillsGenitive(t *testing.T) {
	rus := newFakeConnector(registry.SourceRusProfile)
	rus.byName["школа"] = found(registry.SourceRusProfile, "Муниципальное учреждение")

	r := New(Config{
		RusProfile: rus,
		Kontur:     newFakeConnector(registry.SourceKontur),
		EGRUL:      newFakeConnector(registry.SourceEGRUL),
		Morph:      stubMorph{},
	})
	result, err := r.Resolve(context.Background(), "школа")
	require.NoError(t, err)
	assert.Equal(t, "Муниципального учреждения", result.NameGenitive)
}

type stubMorph struct{}

func (stubMorph) Genitive(word string) (string, error) {
	switch word {
	case "Муниципальное":
		return "Муниципального", nil
	case "учреждение":
		return "учреждения", nil
	}
	return word, nil
}

func TestBudgetConcurrentAcquire(t *testing.T) {
	budget := NewBudget(10)

	var wg sync.WaitGroup
	var granted sync.Map
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if budget.TryAcquire() {
				granted.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	granted.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 10, count)
	assert.Equal(t, 0, budget.Remaining())
}
