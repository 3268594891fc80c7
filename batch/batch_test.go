package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgresolver/registry"
)

// scriptedResolver отвечает по таблице и умеет дергать хук на каждом
// запросе, чтобы тесты управляли паузой и остановкой в нужный момент
type scriptedResolver struct {
	results map[string]registry.SearchResult
	errOn   string
	onCall  func(name string)
	mu      sync.Mutex
	calls   []string
}

func (r *scriptedResolver) Resolve(ctx context.Context, rawName string) (registry.SearchResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, rawName)
	r.mu.Unlock()

	if r.onCall != nil {
		r.onCall(rawName)
	}
	if rawName == r.errOn {
		return registry.NotFound(), errors.New("сессия браузера потеряна")
	}
	if result, ok := r.results[rawName]; ok {
		return result, nil
	}
	return registry.NotFound(), nil
}

func collect(events <-chan Event) (rows []Row, kinds []EventKind) {
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventRow {
			rows = append(rows, *ev.Row)
		}
	}
	return rows, kinds
}

func TestRunOneRowPerInput(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]registry.SearchResult{
		"школа 1": {Found: true, Name: `МБОУ "ШКОЛА №1"`, Source: registry.SourceRusProfile},
	}}
	control := &Control{}
	events := make(chan Event, 64)

	job := NewJob(resolver, control, events, Config{})
	names := []string{"школа 1", "не существует", "тоже нет"}
	rows, err := job.Run(context.Background(), names)
	close(events)

	require.NoError(t, err)
	require.Len(t, rows, len(names), "по одной строке на каждую входную")
	assert.Equal(t, "школа 1", rows[0].Input)
	assert.True(t, rows[0].Result.Found)
	assert.False(t, rows[1].Result.Found)
	assert.False(t, rows[2].Result.Found)

	eventRows, kinds := collect(events)
	assert.Len(t, eventRows, len(names))
	assert.Equal(t, EventDone, kinds[len(kinds)-1], "последнее событие — завершение")

	done, total := control.Progress()
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)
}

func TestRunStopKeepsProcessedRows(t *testing.T) {
	control := &Control{}
	resolver := &scriptedResolver{
		onCall: func(name string) {
			// Остановка запрошена во время первого запроса: он
			// должен довестись до конца, второй — не начаться
			if name == "первая" {
				control.Stop()
			}
		},
	}
	events := make(chan Event, 64)

	job := NewJob(resolver, control, events, Config{})
	rows, err := job.Run(context.Background(), []string{"первая", "вторая"})
	close(events)

	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, []string{"первая"}, resolver.calls)
}

func TestRunSessionLossAbortsWithPartialRows(t *testing.T) {
	resolver := &scriptedResolver{
		results: map[string]registry.SearchResult{
			"первая": {Found: true, Name: "А", Source: registry.SourceRusProfile},
		},
		errOn: "вторая",
	}
	events := make(chan Event, 64)

	job := NewJob(resolver, &Control{}, events, Config{})
	rows, err := job.Run(context.Background(), []string{"первая", "вторая", "третья"})
	close(events)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "вторая")
	assert.Len(t, rows, 1, "обработанные строки сохраняются")
	assert.Equal(t, []string{"первая", "вторая"}, resolver.calls)
}

func TestRunPauseBlocksBetweenQueries(t *testing.T) {
	control := &Control{}
	resumed := make(chan struct{})
	resolver := &scriptedResolver{
		onCall: func(name string) {
			if name == "первая" {
				control.Pause()
				// Снимаем паузу чуть позже из другой горутины
				go func() {
					time.Sleep(30 * time.Millisecond)
					control.Resume()
					close(resumed)
				}()
			}
		},
	}
	events := make(chan Event, 64)

	job := NewJob(resolver, control, events, Config{PausePoll: 5 * time.Millisecond})
	start := time.Now()
	rows, err := job.Run(context.Background(), []string{"первая", "вторая"})
	close(events)

	require.NoError(t, err)
	<-resumed
	assert.Len(t, rows, 2)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"вторая строка не должна начаться до снятия паузы")
}

func TestRunContextCancelDuringPause(t *testing.T) {
	control := &Control{}
	control.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	events := make(chan Event, 64)
	job := NewJob(&scriptedResolver{}, control, events, Config{PausePoll: 5 * time.Millisecond})
	rows, err := job.Run(ctx, []string{"первая"})
	close(events)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rows)
}

func TestRunEmptyInput(t *testing.T) {
	events := make(chan Event, 8)
	job := NewJob(&scriptedResolver{}, &Control{}, events, Config{})
	rows, err := job.Run(context.Background(), nil)
	close(events)

	require.NoError(t, err)
	assert.Empty(t, rows)

	_, kinds := collect(events)
	assert.Equal(t, []EventKind{EventDone}, kinds)
}

func TestControlFlags(t *testing.T) {
	control := &Control{}
	assert.False(t, control.Paused())
	assert.False(t, control.Stopped())

	control.Pause()
	assert.True(t, control.Paused())
	control.Resume()
	assert.False(t, control.Paused())

	control.Stop()
	assert.True(t, control.Stopped())
}
