package normalization

import (
	"strings"
	"unicode"
)

// RuleMorph пословное склонение в родительный падеж на таблице окончаний.
// Покрывает словарь названий учреждений (прилагательные на -ый/-ий/-ая,
// существительные на -ие/-а/-ь и основы на согласную); слово с
// неопознанным окончанием возвращается без изменений.
type RuleMorph struct{}

var _ Morph = (*RuleMorph)(nil)

// NewRuleMorph создает морфологический сервис
func NewRuleMorph() *RuleMorph {
	return &RuleMorph{}
}

// genitiveEndings пары именительное окончание → родительное, в порядке
// убывания длины: первое совпавшее окончание применяется
var genitiveEndings = []struct{ nom, gen string }{
	{"кий", "кого"}, // детский → детского
	{"гий", "гого"},
	{"хий", "хого"},
	{"жий", "жего"},
	{"ший", "шего"}, // старший → старшего
	{"чий", "чего"},
	{"щий", "щего"}, // общий → общего
	{"ние", "ния"},  // учреждение → учреждения
	{"тие", "тия"},  // развитие → развития
	{"ый", "ого"},   // муниципальный → муниципального
	{"ий", "его"},   // средний → среднего
	{"ой", "ого"},   // городской → городского
	{"ое", "ого"},   // основное → основного
	{"ее", "его"},
	{"ая", "ой"}, // муниципальная → муниципальной
	{"яя", "ей"},
	{"ия", "ии"}, // гимназия → гимназии
	{"ка", "ки"}, // школка → школки
	{"га", "ги"},
	{"ха", "хи"},
	{"ша", "ши"},
	{"жа", "жи"},
	{"ча", "чи"},
	{"ща", "щи"},
	{"а", "ы"},  // школа → школы
	{"я", "и"},  // деревня → деревни
	{"о", "а"},  // село → села
	{"е", "я"},  // поле → поля
	{"й", "я"},  // лицей → лицея
	{"ь", "и"},  // область → области
}

// Genitive склоняет одно слово. Число, аббревиатура в верхнем регистре
// и слово без кириллического окончания остаются как есть.
func (m *RuleMorph) Genitive(word string) (string, error) {
	runes := []rune(word)
	if len(runes) < 3 {
		return word, nil
	}

	// Аббревиатуры (МБОУ, СОШ) и номера не склоняются
	hasLower := false
	for _, r := range runes {
		if unicode.IsDigit(r) {
			return word, nil
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	if !hasLower {
		return word, nil
	}

	lower := strings.ToLower(word)
	for _, e := range genitiveEndings {
		if !strings.HasSuffix(lower, e.nom) {
			continue
		}
		stemLen := len(runes) - len([]rune(e.nom))
		if stemLen < 2 {
			break
		}
		return string(runes[:stemLen]) + e.gen, nil
	}

	// Основа на согласную: сад → сада, колледж → колледжа
	last := runes[len(runes)-1]
	if unicode.Is(unicode.Cyrillic, last) && !isRussianVowel(last) {
		return word + "а", nil
	}
	return word, nil
}

func isRussianVowel(r rune) bool {
	return strings.ContainsRune("аеёиоуыэюя", unicode.ToLower(r))
}
