// Package batch выполняет пакетную обработку списка организаций:
// один рабочий цикл, прогресс и строки результата уходят событиями,
// управление паузой и остановкой — через Control.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"orgresolver/registry"
)

// Control потокобезопасное управление пакетом из внешнего кода.
// Пауза и остановка — запросы: цикл проверяет их только на границах
// запросов, начатый запрос всегда доводится до результата.
type Control struct {
	paused        atomic.Bool
	requestedStop atomic.Bool
	index         atomic.Int64
	total         atomic.Int64
}

// Pause приостанавливает пакет перед следующим запросом
func (c *Control) Pause() { c.paused.Store(true) }

// Resume снимает паузу
func (c *Control) Resume() { c.paused.Store(false) }

// Paused сообщает, запрошена ли пауза
func (c *Control) Paused() bool { return c.paused.Load() }

// Stop запрашивает остановку; уже обработанные строки сохраняются
func (c *Control) Stop() { c.requestedStop.Store(true) }

// Stopped сообщает, запрошена ли остановка
func (c *Control) Stopped() bool { return c.requestedStop.Load() }

// Progress возвращает номер текущей строки и общее число строк
func (c *Control) Progress() (done, total int) {
	return int(c.index.Load()), int(c.total.Load())
}

// EventKind тип события пакета
type EventKind int

const (
	// EventProgress обновление счетчика обработанных строк
	EventProgress EventKind = iota
	// EventLog человекочитаемое сообщение о ходе работы
	EventLog
	// EventRow готовая строка результата
	EventRow
	// EventDone пакет завершен, больше событий не будет
	EventDone
)

// Event событие пакетной обработки
type Event struct {
	Kind    EventKind
	Message string
	Index   int
	Total   int
	Row     *Row
}

// Row результат обработки одной входной строки. На каждую входную
// строку приходится ровно одна Row, даже если поиск провалился.
type Row struct {
	Input  string
	Result registry.SearchResult
}

// Resolver то, что умеет превратить название в результат
type Resolver interface {
	Resolve(ctx context.Context, rawName string) (registry.SearchResult, error)
}

// Config параметры пакета
type Config struct {
	// PausePoll интервал опроса паузы; по умолчанию 300 мс
	PausePoll time.Duration
}

// Job пакетная обработка списка названий. Создается на один прогон.
type Job struct {
	resolver  Resolver
	control   *Control
	events    chan<- Event
	pausePoll time.Duration
	logger    *slog.Logger
}

// NewJob создает пакет. События пишутся в events; канал закрывает
// вызывающая сторона после получения EventDone.
func NewJob(resolver Resolver, control *Control, events chan<- Event, cfg Config) *Job {
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = 300 * time.Millisecond
	}
	return &Job{
		resolver:  resolver,
		control:   control,
		events:    events,
		pausePoll: cfg.PausePoll,
		logger:    slog.Default().With("component", "batch"),
	}
}

// Run обрабатывает названия по порядку в вызывающей горутине.
// Возвращает строки результата: ровно по одной на каждую обработанную
// входную строку. При потере сессии возвращает накопленные строки и
// ошибку; при запрошенной остановке — строки без ошибки.
func (j *Job) Run(ctx context.Context, names []string) ([]Row, error) {
	j.control.total.Store(int64(len(names)))
	j.control.index.Store(0)
	rows := make([]Row, 0, len(names))

	defer j.emit(Event{Kind: EventDone, Index: len(rows), Total: len(names)})

	for i, name := range names {
		if j.control.Stopped() {
			j.emit(Event{Kind: EventLog, Message: "Остановлено пользователем"})
			return rows, nil
		}
		if err := j.waitIfPaused(ctx); err != nil {
			return rows, err
		}

		j.emit(Event{
			Kind:    EventLog,
			Message: fmt.Sprintf("Обработка %d/%d: %s", i+1, len(names), name),
		})

		result, err := j.resolver.Resolve(ctx, name)
		if err != nil {
			j.logger.Error("Пакет прерван", "row", i+1, "error", err)
			j.emit(Event{Kind: EventLog, Message: "Сессия потеряна, пакет прерван"})
			return rows, fmt.Errorf("строка %d (%s): %w", i+1, name, err)
		}

		row := Row{Input: name, Result: result}
		rows = append(rows, row)
		j.control.index.Store(int64(i + 1))
		j.emit(Event{Kind: EventRow, Row: &row, Index: i + 1, Total: len(names)})
		j.emit(Event{Kind: EventProgress, Index: i + 1, Total: len(names)})
	}

	return rows, nil
}

// waitIfPaused блокирует цикл, пока запрошена пауза. Остановка и отмена
// контекста выводят из паузы.
func (j *Job) waitIfPaused(ctx context.Context) error {
	if !j.control.Paused() {
		return nil
	}
	j.emit(Event{Kind: EventLog, Message: "Пауза"})
	ticker := time.NewTicker(j.pausePoll)
	defer ticker.Stop()
	for j.control.Paused() && !j.control.Stopped() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	j.emit(Event{Kind: EventLog, Message: "Продолжение"})
	return nil
}

// emit отправляет событие, не блокируясь навсегда: если получатель
// отстал, событие прогресса можно потерять, строка результата — нет
func (j *Job) emit(ev Event) {
	if j.events == nil {
		return
	}
	if ev.Kind == EventRow || ev.Kind == EventDone {
		j.events <- ev
		return
	}
	select {
	case j.events <- ev:
	default:
	}
}
