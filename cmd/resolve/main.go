// Команда resolve прогоняет список организаций из xlsx-файла по
// каскаду реестров и сохраняет файл с реквизитами.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"orgresolver/ai"
	"orgresolver/batch"
	"orgresolver/browser"
	"orgresolver/cache"
	"orgresolver/captcha"
	"orgresolver/excel"
	"orgresolver/internal/config"
	"orgresolver/normalization"
	"orgresolver/registry"
	"orgresolver/registry/sources"
	"orgresolver/resolver"
)

var (
	inputPath  string
	outputPath string
	inputCol   string
	budgetFlag int
)

var rootCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Поиск реквизитов организаций по неформальным названиям",
	Long: "resolve читает колонку названий из xlsx, ищет каждую организацию " +
		"в RusProfile, Контур Фокусе и ЕГРЮЛ (с AI-шагом по остаточному " +
		"принципу) и сохраняет xlsx с полным наименованием, адресом, ИНН и ОГРН.",
	RunE: run,
}

func main() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "входной xlsx-файл (обязательно)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "результат_нормализации.xlsx", "выходной xlsx-файл")
	rootCmd.Flags().StringVar(&inputCol, "column", "", "имя колонки с названиями (по умолчанию из INPUT_COLUMN или стандартное)")
	rootCmd.Flags().IntVar(&budgetFlag, "ai-budget", -1, "лимит обращений к GigaChat на пакет (-1 — из окружения)")
	_ = rootCmd.MarkFlagRequired("input")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	log := slog.Default().With("component", "resolve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	if budgetFlag >= 0 {
		cfg.AIBudget = budgetFlag
	}
	if inputCol != "" {
		cfg.InputColumn = inputCol
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	names, err := excel.ReadNames(inputPath, cfg.InputColumn)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("во входном файле нет названий")
	}
	log.Info("Входной файл прочитан", "rows", len(names))

	// Ctrl+C запрашивает мягкую остановку: начатый запрос доводится
	// до конца, уже обработанные строки сохраняются
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := browser.NewChromeDriver(ctx, browser.ChromeConfig{Headless: cfg.Headless})
	if err != nil {
		return fmt.Errorf("запуск браузера: %w", err)
	}
	defer driver.Quit()

	profile := browser.ProfileByName(strings.ToLower(cfg.HumanizerProfile))
	humanizer := browser.NewHumanizer(driver, profile, nil)

	var solvingClient captcha.SolvingClient
	if cfg.RuCaptchaKey != "" {
		solvingClient = captcha.NewRuCaptchaClient(captcha.RuCaptchaConfig{APIKey: cfg.RuCaptchaKey})
	}
	solver := captcha.NewSolver(driver, solvingClient, captcha.Config{
		AutoSolve: solvingClient != nil,
	})

	deps := sources.Deps{
		Driver:          driver,
		Humanizer:       humanizer,
		Captcha:         solver,
		Validator:       normalization.NewMatchValidator(),
		RequestInterval: cfg.RequestInterval,
	}

	var fallback registry.Connector
	if cfg.GigaChatAuthKey != "" {
		client := ai.NewClient(ai.ClientConfig{
			AuthToken:          cfg.GigaChatAuthKey,
			Model:              cfg.GigaChatModel,
			InsecureSkipVerify: true,
		})
		fallback = ai.NewConnector(client)
	} else {
		log.Info("Ключ GigaChat не задан, AI-шаг отключен")
	}

	core := resolver.New(resolver.Config{
		RusProfile: sources.NewRusProfile(deps),
		Kontur:     sources.NewKonturFocus(deps),
		EGRUL:      sources.NewEGRUL(deps),
		Fallback:   fallback,
		Budget:     resolver.NewBudget(cfg.AIBudget),
		Morph:      normalization.NewRuleMorph(),
	})

	var res batch.Resolver = core
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("открытие кэша: %w", err)
		}
		defer store.Close()
		res = &cachedResolver{store: store, next: core}
	}

	control := &batch.Control{}
	go func() {
		<-ctx.Done()
		control.Stop()
	}()

	events := make(chan batch.Event, 64)
	go printEvents(events)

	job := batch.NewJob(res, control, events, batch.Config{})
	rows, runErr := job.Run(ctx, names)
	close(events)

	if len(rows) > 0 {
		if err := excel.WriteResults(outputPath, rows); err != nil {
			return err
		}
		log.Info("Результат сохранен", "path", outputPath, "rows", len(rows))
	}
	if runErr != nil {
		return fmt.Errorf("пакет прерван: %w", runErr)
	}

	found := 0
	for _, row := range rows {
		if row.Result.Found {
			found++
		}
	}
	log.Info("Готово", "total", len(rows), "found", found)
	return nil
}

// printEvents печатает ход обработки в stdout
func printEvents(events <-chan batch.Event) {
	for ev := range events {
		switch ev.Kind {
		case batch.EventLog:
			fmt.Println(ev.Message)
		case batch.EventRow:
			mark := "✗"
			if ev.Row.Result.Found {
				mark = "✓"
			}
			fmt.Printf("%s %d/%d %s → %s\n", mark, ev.Index, ev.Total, ev.Row.Input, ev.Row.Result.Source)
		}
	}
}

// cachedResolver возвращает закэшированный результат, не трогая браузер
type cachedResolver struct {
	store *cache.Store
	next  batch.Resolver
}

func (r *cachedResolver) Resolve(ctx context.Context, rawName string) (registry.SearchResult, error) {
	if cached, ok, err := r.store.Get(ctx, rawName); err == nil && ok {
		return cached, nil
	}
	result, err := r.next.Resolve(ctx, rawName)
	if err != nil {
		return result, err
	}
	if putErr := r.store.Put(ctx, rawName, result); putErr != nil {
		slog.Default().Warn("Не удалось записать результат в кэш", "error", putErr)
	}
	return result, nil
}
