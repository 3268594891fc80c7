package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Morph внешний морфологический сервис. Реализация не входит в ядро,
// движку достаточно пословного склонения.
type Morph interface {
	// Genitive возвращает слово в родительном падеже
	Genitive(word string) (string, error)
}

var (
	lowerRU = cases.Lower(language.Russian)
	upperRU = cases.Upper(language.Russian)
)

// GenitiveName переводит название организации в родительный падеж,
// применяя морфологический сервис пословно. Слова в кавычках (бренд)
// не склоняются, пунктуация и регистр первой буквы сохраняются.
// Слово, которое сервис не смог просклонять, остается как есть.
func GenitiveName(name string, morph Morph) string {
	if name == "" || morph == nil {
		return name
	}

	words := strings.Fields(name)
	out := make([]string, 0, len(words))
	inQuotes := false

	for _, word := range words {
		opens := strings.ContainsAny(string([]rune(word)[0]), `«"'“`)
		closes := strings.ContainsAny(string([]rune(word)[len([]rune(word))-1]), `»"'”`)

		if inQuotes || opens {
			out = append(out, word)
			if opens && !closes {
				inQuotes = true
			}
			if closes {
				inQuotes = false
			}
			continue
		}

		clean := strings.Trim(word, ".,;:!?")
		punct := ""
		if len(clean) < len(word) && strings.HasPrefix(word, clean) {
			punct = word[len(clean):]
		}
		if clean == "" {
			out = append(out, word)
			continue
		}

		form, err := morph.Genitive(clean)
		if err != nil || form == "" {
			out = append(out, word)
			continue
		}
		if startsUpper(clean) {
			form = capitalizeRU(form)
		}
		out = append(out, form+punct)
	}

	return strings.Join(out, " ")
}

// NormalizeRegisteredName приводит зарегистрированное название к
// принятому виду: первое слово с заглавной, остальные строчными,
// содержимое кавычек с заглавной первой буквы.
func NormalizeRegisteredName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}

	spans := quotedSpanRe.FindAllStringIndex(name, -1)
	if len(spans) == 0 {
		return capitalizeRU(lowerRU.String(name))
	}

	var b strings.Builder
	last := 0
	for i, span := range spans {
		before := name[last:span[0]]
		if before != "" {
			lowered := lowerRU.String(before)
			if i == 0 && last == 0 {
				lowered = capitalizeRU(lowered)
			}
			b.WriteString(lowered)
		}

		quoted := name[span[0]:span[1]]
		runes := []rune(quoted)
		open, closeQ := string(runes[0]), string(runes[len(runes)-1])
		inner := string(runes[1 : len(runes)-1])
		b.WriteString(open + capitalizeRU(lowerRU.String(inner)) + closeQ)

		last = span[1]
	}
	if last < len(name) {
		b.WriteString(lowerRU.String(name[last:]))
	}
	return b.String()
}

// capitalizeRU поднимает первую букву строки с учетом русской локали
func capitalizeRU(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return upperRU.String(string(runes[0])) + string(runes[1:])
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
