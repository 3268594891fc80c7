package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleMorphGenitive(t *testing.T) {
	morph := NewRuleMorph()

	tests := []struct{ word, want string }{
		{"Муниципальное", "Муниципального"},
		{"бюджетное", "бюджетного"},
		{"общеобразовательное", "общеобразовательного"},
		{"учреждение", "учреждения"},
		{"школа", "школы"},
		{"гимназия", "гимназии"},
		{"лицей", "лицея"},
		{"детский", "детского"},
		{"сад", "сада"},
		{"область", "области"},
		{"колледж", "колледжа"},
		{"городской", "городского"},
		{"старший", "старшего"},
		// Не склоняются
		{"МБОУ", "МБОУ"},
		{"СОШ", "СОШ"},
		{"№47", "№47"},
		{"12", "12"},
		{"ул", "ул"},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			got, err := morph.Genitive(tt.word)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenitiveName(t *testing.T) {
	morph := NewRuleMorph()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"Полная форма",
			"Муниципальное бюджетное общеобразовательное учреждение",
			"Муниципального бюджетного общеобразовательного учреждения",
		},
		{
			"Бренд в кавычках не склоняется",
			`Муниципальное учреждение «Школа №47»`,
			`Муниципального учреждения «Школа №47»`,
		},
		{
			"Аббревиатура не склоняется",
			"МБОУ средняя школа",
			"МБОУ средней школы",
		},
		{
			"Пустая строка",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenitiveName(tt.in, morph))
		})
	}
}

func TestGenitiveNameNilMorph(t *testing.T) {
	assert.Equal(t, "Школа", GenitiveName("Школа", nil))
}

func TestNormalizeRegisteredName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"Верхний регистр с кавычками",
			`МУНИЦИПАЛЬНОЕ БЮДЖЕТНОЕ УЧРЕЖДЕНИЕ "ШКОЛА №47"`,
			`Муниципальное бюджетное учреждение "Школа №47"`,
		},
		{
			"Без кавычек",
			"ГОСУДАРСТВЕННОЕ УЧИЛИЩЕ",
			"Государственное училище",
		},
		{
			"Пустая строка",
			"",
			"",
		},
		{
			"Елочки",
			"ШКОЛА «РОСТОК» ГОРОДА САМАРЫ",
			"Школа «Росток» города самары",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRegisteredName(tt.in))
		})
	}
}
