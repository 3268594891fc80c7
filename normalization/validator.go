package normalization

import (
	"strings"

	"orgresolver/registry"
)

// MatchValidator отсекает ложные срабатывания поиска: найденный в реестре
// кандидат принимается, только если он похож на искомое учреждение.
// Валидатор чистый: одинаковая пара (оригинал, кандидат) всегда дает
// одинаковый ответ.
type MatchValidator struct {
	stemmer *RussianStemmer

	// MinOverlap минимальное число общих основ между оригиналом и
	// кандидатом. Настроечный порог, не несущий бизнес-смысла.
	MinOverlap int
}

// NewMatchValidator создает валидатор совпадений
func NewMatchValidator() *MatchValidator {
	return &MatchValidator{
		stemmer:    NewRussianStemmer(),
		MinOverlap: 1,
	}
}

// Validate проверяет кандидата по трем правилам, все обязательны:
//  1. в названии кандидата есть ключевое слово учреждения;
//  2. в названии кандидата нет ни одного запрещенного слова;
//  3. при requireKeywordMatch — значимые слова оригинала и кандидата
//     пересекаются (по основам), а если в оригинале есть бренд в кавычках,
//     пересечение должно затрагивать именно слова бренда.
//
// requireKeywordMatch=false используется при повторном поиске по ИНН:
// точное совпадение идентификатора само по себе сильное свидетельство.
func (v *MatchValidator) Validate(original string, candidate registry.SearchResult, requireKeywordMatch bool) bool {
	name := strings.TrimSpace(candidate.Name)
	if name == "" {
		return false
	}

	if !containsKeyword(name, institutionKeywords) {
		return false
	}
	if containsKeyword(name, negativeKeywords) {
		return false
	}

	if !requireKeywordMatch {
		return true
	}

	originalStems := v.significantStems(original)
	candidateStems := v.significantStems(name)
	if len(originalStems) > 0 && countIntersection(originalStems, candidateStems) < v.MinOverlap {
		return false
	}

	// Самая сильная защита от ложных срабатываний: общие слова форм
	// собственности пересекаются почти всегда, бренд в кавычках — нет.
	// Ключевые слова учреждений («школа», «гимназия») из бренда
	// исключаются: они совпадут с любым учреждением.
	for _, span := range quotedSpanRe.FindAllStringSubmatch(original, -1) {
		brandStems := v.brandStems(span[1])
		if len(brandStems) > 0 && countIntersection(brandStems, candidateStems) == 0 {
			return false
		}
	}

	return true
}

// significantStems значимые слова текста: длиннее двух букв, без
// стоп-слов, приведенные к основам. Аббревиатуры форм собственности
// предварительно расшифровываются, иначе «МБОУ СОШ» никогда не пересечется
// с полным зарегистрированным названием.
func (v *MatchValidator) significantStems(text string) map[string]struct{} {
	text = expandLegalForm(text)
	stems := make(map[string]struct{})
	for _, word := range strings.Fields(quotesRe.ReplaceAllString(text, " ")) {
		word = strings.ToLower(strings.Trim(word, ".,;:!?()№"))
		if len([]rune(word)) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		stems[v.stemmer.Stem(word)] = struct{}{}
	}
	return stems
}

// brandStems значимые слова бренда без ключевых слов учреждений
func (v *MatchValidator) brandStems(brand string) map[string]struct{} {
	stems := make(map[string]struct{})
	for _, word := range strings.Fields(brand) {
		word = strings.ToLower(strings.Trim(word, ".,;:!?()№"))
		if len([]rune(word)) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if containsKeyword(word, institutionKeywords) {
			continue
		}
		stems[v.stemmer.Stem(word)] = struct{}{}
	}
	return stems
}

func countIntersection(a, b map[string]struct{}) int {
	n := 0
	for s := range a {
		if _, ok := b[s]; ok {
			n++
		}
	}
	return n
}
