// Package browser содержит абстракцию над управлением браузером и слой
// «очеловечивания» взаимодействий. Бизнес-логики здесь нет: пакет только
// двигает страницы так, чтобы автоматизация была похожа на живого
// пользователя.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrSessionLost браузерная сессия мертва. Единственная ошибка слоя,
// которая прерывает пакетную обработку целиком.
var ErrSessionLost = errors.New("browser: сессия браузера потеряна")

// ErrWaitTimeout элемент не появился за отведенное время. Штатный исход,
// вызывающий переход к следующему варианту или источнику.
var ErrWaitTimeout = errors.New("browser: таймаут ожидания элемента")

// Driver инжектируемая поверхность управления браузером.
// Коннекторы зависят только от этого интерфейса, что позволяет подменять
// браузер фальшивкой в тестах. Специальные клавиши передаются в SendKeys
// управляющими символами: "\r" — Enter, "\b" — Backspace.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Click(ctx context.Context, sel string) error
	Clear(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, keys string) error
	Text(ctx context.Context, sel string) (string, error)
	PageSource(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, js string, out any) error
	Windows(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, id string) error
	Alive(ctx context.Context) bool
	Quit() error
}
