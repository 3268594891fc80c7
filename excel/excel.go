// Package excel читает входной список организаций из xlsx и пишет
// файл результатов с реквизитами по каждой строке.
package excel

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"orgresolver/batch"
)

// DefaultInputColumn имя колонки с исходными названиями
const DefaultInputColumn = "Образовательное учреждение из 1С"

// resultHeaders колонки выходного файла, по порядку
var resultHeaders = []string{
	"Исходное название",
	"Полное наименование",
	"Наименование (род. падеж)",
	"Адрес",
	"Индекс",
	"ИНН",
	"ОГРН",
	"Источник",
}

// ReadNames читает значения колонки column первого листа файла.
// Пустые ячейки пропускаются, порядок строк сохраняется.
func ReadNames(path, column string) ([]string, error) {
	if column == "" {
		column = DefaultInputColumn
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("input file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	colIdx := -1
	for i, header := range rows[0] {
		if strings.TrimSpace(header) == column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("column %q not found in %q", column, sheets[0])
	}

	var names []string
	for _, row := range rows[1:] {
		if colIdx >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[colIdx])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// WriteResults сохраняет строки результата в новый xlsx-файл
func WriteResults(path string, rows []batch.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		values := []interface{}{
			row.Input,
			row.Result.Name,
			row.Result.NameGenitive,
			row.Result.Address,
			row.Result.PostalCode,
			row.Result.TaxID,
			row.Result.RegNumber,
			string(row.Result.Source),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// Широкая колонка под полные наименования и адреса
	if err := f.SetColWidth(sheet, "A", "D", 45); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save results file: %w", err)
	}
	return nil
}
