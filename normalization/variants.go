// Package normalization готовит поисковые запросы по «грязным» названиям
// организаций и проверяет найденных кандидатов на ложные срабатывания.
package normalization

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxVariants верхняя граница числа поисковых вариантов на одно название
const MaxVariants = 8

// minVariantLen варианты короче отбрасываются как бессмысленные запросы
const minVariantLen = 3

// Variant один кандидат поискового запроса. Rank — порядок генерации,
// он же приоритет: варианты пробуются по возрастанию Rank.
type Variant struct {
	Text string
	Rank int
}

var (
	spacesRe      = regexp.MustCompile(`\s+`)
	geoSuffixRe   = regexp.MustCompile(`(?i)\s+(г\.о\.|г\.|обл\.|пос\.|с\.|д\.|р-н(?:\s|$)).*$`)
	numNoSpaceRe  = regexp.MustCompile(`№\s+`)
	numSpaceRe    = regexp.MustCompile(`№(\d)`)
	quotesRe      = regexp.MustCompile(`["'«»“”]`)
	quotedSpanRe  = regexp.MustCompile(`[«"“']([^«»"“”']+)[»"”']`)
	// \b в regexp работает только с ASCII и к кириллице не применим,
	// поэтому конец аббревиатуры отмечается пробелом или концом строки
	abbrPrefixRe = regexp.MustCompile(`^[А-ЯЁA-Z]{3,6}(?:\s|$)`)
)

// CleanName базовая очистка названия: схлопывание пробелов и отрезание
// географического хвоста (город, область, поселок) по газетиру суффиксов
func CleanName(raw string) string {
	name := strings.TrimSpace(raw)
	name = spacesRe.ReplaceAllString(name, " ")
	name = geoSuffixRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// GenerateVariants порождает упорядоченный список поисковых вариантов для
// одного названия. Детерминирована и не имеет побочных эффектов: одинаковый
// вход всегда дает одинаковый выход. Всегда возвращает хотя бы один вариант
// и не более MaxVariants; каждый вариант уникален. Варианты длиннее
// minVariantLen символов, кроме вырожденного входа: гарантия «хотя бы один
// вариант» важнее, и тогда единственным вариантом идет очищенное название
// как есть.
func GenerateVariants(raw string) []Variant {
	base := CleanName(raw)

	candidates := []string{base}

	// Варианты написания номера: «№ 47» и «№47»
	if v := numNoSpaceRe.ReplaceAllString(base, "№"); v != base {
		candidates = append(candidates, v)
	}
	if v := numSpaceRe.ReplaceAllString(base, "№ $1"); v != base {
		candidates = append(candidates, v)
	}

	// Расшифровка организационно-правовой формы, кавычки не трогаем
	if v := expandLegalForm(base); v != base {
		candidates = append(candidates, v)
	}

	// Бренд в кавычках сам по себе, только если несет ключевое слово
	// учреждения: запрос из одного имени собственного слишком общий
	for _, span := range quotedSpanRe.FindAllStringSubmatch(base, -1) {
		if containsKeyword(span[1], institutionKeywords) {
			candidates = append(candidates, strings.TrimSpace(span[1]))
		}
	}

	// Типографские артефакты: задвоенные гласные и похожие символы
	if v := collapseDoubledVowels(base); v != base {
		candidates = append(candidates, v)
	}
	if v := strings.NewReplacer("0", "О", "l", "I").Replace(base); v != base {
		candidates = append(candidates, v)
	}

	// Вариант без кавычек
	if v := strings.TrimSpace(quotesRe.ReplaceAllString(base, "")); v != base {
		candidates = append(candidates, v)
	}

	// «Голое» название без аббревиатуры формы, если остаток не сводится
	// к одним общим словам
	if v := stripLegalFormPrefix(base); v != "" && v != base {
		candidates = append(candidates, v)
	}

	variants := dedupeVariants(candidates)
	if len(variants) == 0 {
		// Даже вырожденный вход дает один вариант: очищенное название
		variants = []Variant{{Text: base}}
	}
	return variants
}

// expandLegalForm заменяет известные аббревиатуры на полные формы.
// Текст внутри кавычек не изменяется.
func expandLegalForm(name string) string {
	spans := quotedSpanRe.FindAllStringIndex(name, -1)
	inQuotes := func(pos int) bool {
		for _, s := range spans {
			if pos >= s[0] && pos < s[1] {
				return true
			}
		}
		return false
	}

	words := strings.Split(name, " ")
	offset := 0
	for i, w := range words {
		pos := offset
		offset += len(w) + 1
		if inQuotes(pos) {
			continue
		}
		if full, ok := legalFormExpansions[strings.ToUpper(w)]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

// stripLegalFormPrefix отрезает аббревиатуру формы в начале названия.
// Возвращает пустую строку, когда остаток не содержит ни одного
// уникального (не общего) слова и вариант был бы слишком общим запросом.
func stripLegalFormPrefix(name string) string {
	loc := abbrPrefixRe.FindStringIndex(name)
	if loc == nil {
		return ""
	}
	tail := strings.TrimSpace(name[loc[1]:])
	rest := strings.Trim(tail, " \"«»")
	if rest == "" {
		return ""
	}
	// Остаток целиком в кавычках — это голый бренд; без ключевого слова
	// учреждения такой запрос слишком общий
	if quotedSpanRe.MatchString(tail) && strings.Trim(quotedSpanRe.FindStringSubmatch(tail)[1], " ") == rest &&
		!containsKeyword(rest, institutionKeywords) {
		return ""
	}
	for _, w := range strings.Fields(quotesRe.ReplaceAllString(rest, "")) {
		w = strings.ToLower(strings.Trim(w, ".,;:!?№"))
		if len([]rune(w)) < minVariantLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if !containsKeyword(w, institutionKeywords) {
			return rest
		}
	}
	return ""
}

// russianVowels гласные, задвоение которых считается опечаткой («шкоола»)
const russianVowels = "аоуыэяёюие"

// collapseDoubledVowels схлопывает повторы одной и той же гласной подряд
func collapseDoubledVowels(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	var prev rune
	for _, r := range name {
		lower := unicode.ToLower(r)
		if lower == prev && strings.ContainsRune(russianVowels, lower) {
			continue
		}
		b.WriteRune(r)
		prev = lower
	}
	return b.String()
}

// dedupeVariants убирает дубликаты и мусор, сохраняя порядок генерации
func dedupeVariants(candidates []string) []Variant {
	seen := make(map[string]struct{}, len(candidates))
	variants := make([]Variant, 0, MaxVariants)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len([]rune(c)) <= minVariantLen {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, Variant{Text: c, Rank: len(variants)})
		if len(variants) == MaxVariants {
			break
		}
	}
	return variants
}
