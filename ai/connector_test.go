package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgresolver/registry"
)

func TestParseStructuredReply(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  registry.SearchResult
		found bool
	}{
		{
			name: "Полный ответ",
			raw: `NAME: МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ ОБЩЕОБРАЗОВАТЕЛЬНОЕ УЧРЕЖДЕНИЕ "ШКОЛА №47"
TAX_ID: 6316044575
REG_NUMBER: 1026301160232
ADDRESS: 443041, Самарская обл, г. Самара, ул. Ленинская, 123`,
			found: true,
			want: registry.SearchResult{
				Name:       `МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ ОБЩЕОБРАЗОВАТЕЛЬНОЕ УЧРЕЖДЕНИЕ "ШКОЛА №47"`,
				TaxID:      "6316044575",
				RegNumber:  "1026301160232",
				Address:    "443041, Самарская обл, г. Самара, ул. Ленинская, 123",
				PostalCode: "443041",
			},
		},
		{
			name:  "Явный отказ",
			raw:   "NOT_FOUND",
			found: false,
		},
		{
			name: "NOT_FOUND перебивает поля",
			raw: `NAME: что-то выдуманное
NOT_FOUND`,
			found: false,
		},
		{
			name: "Ответ без названия",
			raw: `TAX_ID: 6316044575
ADDRESS: г. Самара`,
			found: false,
		},
		{
			name:  "Пустой ответ",
			raw:   "",
			found: false,
		},
		{
			name: "Частичный ответ с названием",
			raw:  "NAME: МБОУ Школа №5 г.о. Самара",
			want: registry.SearchResult{
				Name: "МБОУ Школа №5 г.о. Самара",
			},
			found: true,
		},
		{
			name: "ИНН с мусором вокруг цифр",
			raw: `NAME: МАОУ Гимназия №1
TAX_ID: ИНН 6316044575.`,
			want: registry.SearchResult{
				Name:  "МАОУ Гимназия №1",
				TaxID: "6316044575",
			},
			found: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStructuredReply(tt.raw)
			require.Equal(t, tt.found, got.Found)
			if !tt.found {
				return
			}
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.TaxID, got.TaxID)
			assert.Equal(t, tt.want.RegNumber, got.RegNumber)
			assert.Equal(t, tt.want.Address, got.Address)
			assert.Equal(t, tt.want.PostalCode, got.PostalCode)
		})
	}
}

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func TestConnectorSearch(t *testing.T) {
	conn := NewConnector(&stubCompleter{reply: "NAME: ГБОУ Лицей №12\nTAX_ID: 7701234567"})

	result, err := conn.Search(context.Background(), registry.SearchQuery{Name: "лицей 12"})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, registry.SourceGigaChat, result.Source)
	assert.Equal(t, "7701234567", result.TaxID)
}

func TestConnectorSearchServiceErrorIsNotFatal(t *testing.T) {
	conn := NewConnector(&stubCompleter{err: errors.New("401 unauthorized")})

	result, err := conn.Search(context.Background(), registry.SearchQuery{Name: "школа"})
	require.NoError(t, err, "сбой сервиса не должен ронять пакет")
	assert.False(t, result.Found)
}
