package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orgresolver/registry"
)

func candidate(name string) registry.SearchResult {
	return registry.SearchResult{Found: true, Name: name}
}

func TestValidateAcceptsMatchingSchool(t *testing.T) {
	v := NewMatchValidator()

	ok := v.Validate(
		"МБОУ СОШ №47 г. Самара",
		candidate(`МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ ОБЩЕОБРАЗОВАТЕЛЬНОЕ УЧРЕЖДЕНИЕ "ШКОЛА №47" ГОРОДСКОГО ОКРУГА САМАРА`),
		true,
	)
	assert.True(t, ok, "аббревиатура должна пересечься с полным названием через расшифровку")
}

func TestValidateRejections(t *testing.T) {
	v := NewMatchValidator()

	tests := []struct {
		name      string
		original  string
		candidate string
	}{
		{"Пустое название", "МБОУ СОШ №47", ""},
		{"Без ключевого слова", "МБОУ СОШ №47", `ООО "СтройМонтаж"`},
		{"Приход храма", "школа при храме", `ПРИХОД ХРАМА ПРЕСВЯТОЙ БОГОРОДИЦЫ`},
		{"Ликвидированная организация", "МБОУ СОШ №47", `ЛИКВИДИРОВАНО: МБОУ ШКОЛА №47`},
		{"Садоводческое товарищество", "детский сад Ромашка", `САДОВОДЧЕСКОЕ ТОВАРИЩЕСТВО "РОМАШКА"`},
		{"Театр вместо школы", "школа-студия", `ТЕАТР ЮНОГО ЗРИТЕЛЯ "ШКОЛА-СТУДИЯ"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.Validate(tt.original, candidate(tt.candidate), true))
		})
	}
}

func TestValidateQuotedBrandMustIntersect(t *testing.T) {
	v := NewMatchValidator()

	// Кандидат учреждение, но бренд в кавычках другой
	ok := v.Validate(
		`МБОУ "Гимназия Перспектива"`,
		candidate(`МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ ОБЩЕОБРАЗОВАТЕЛЬНОЕ УЧРЕЖДЕНИЕ "ГИМНАЗИЯ ГАРМОНИЯ"`),
		true,
	)
	assert.False(t, ok, "бренд из кавычек обязан пересекаться")

	ok = v.Validate(
		`МБОУ "Гимназия Перспектива"`,
		candidate(`МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ ОБЩЕОБРАЗОВАТЕЛЬНОЕ УЧРЕЖДЕНИЕ "ГИМНАЗИЯ ПЕРСПЕКТИВА"`),
		true,
	)
	assert.True(t, ok)
}

func TestValidateRelaxedByID(t *testing.T) {
	v := NewMatchValidator()

	// При повторном поиске по ИНН пересечение слов не требуется,
	// но ключевое слово учреждения и отсутствие запрещенных — требуются
	ok := v.Validate(
		"МБОУ СОШ №47",
		candidate(`ГОСУДАРСТВЕННОЕ УЧИЛИЩЕ ОЛИМПИЙСКОГО РЕЗЕРВА`),
		false,
	)
	assert.True(t, ok)

	ok = v.Validate(
		"МБОУ СОШ №47",
		candidate(`ПРИХОД ХРАМА СВЯТИТЕЛЯ НИКОЛАЯ`),
		false,
	)
	assert.False(t, ok, "запрещенные слова отбрасывают кандидата даже при поиске по ИНН")
}

func TestValidateIsPure(t *testing.T) {
	v := NewMatchValidator()
	original := "МБОУ СОШ №47 г. Самара"
	cand := candidate(`МБОУ "ШКОЛА №47" Г.О. САМАРА`)

	first := v.Validate(original, cand, true)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, v.Validate(original, cand, true))
	}
}
