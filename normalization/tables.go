package normalization

import "strings"

// legalFormExpansions таблица расшифровок организационно-правовых форм.
// Используется и генератором вариантов (расшифровка аббревиатуры в запросе),
// и валидатором (список ключевых слов учреждений строится из расшифровок).
var legalFormExpansions = map[string]string{
	"МБОУ":  "Муниципальное бюджетное общеобразовательное учреждение",
	"МАОУ":  "Муниципальное автономное общеобразовательное учреждение",
	"МКОУ":  "Муниципальное казенное общеобразовательное учреждение",
	"ГБОУ":  "Государственное бюджетное общеобразовательное учреждение",
	"ГАОУ":  "Государственное автономное общеобразовательное учреждение",
	"АНОО":  "Автономная некоммерческая общеобразовательная организация",
	"АНО":   "Автономная некоммерческая организация",
	"ГАПОУ": "Государственное автономное профессиональное образовательное учреждение",
	"ГБПОУ": "Государственное бюджетное профессиональное образовательное учреждение",
	"ФГБОУ": "Федеральное государственное бюджетное образовательное учреждение",
	"МБДОУ": "Муниципальное бюджетное дошкольное образовательное учреждение",
	"МАДОУ": "Муниципальное автономное дошкольное образовательное учреждение",
	"СОШ":   "средняя общеобразовательная школа",
	"ООШ":   "основная общеобразовательная школа",
}

// institutionKeywords основы слов, по которым кандидата можно опознать как
// образовательное учреждение. Сравнение по префиксу в нижнем регистре.
var institutionKeywords = []string{
	"школ",
	"гимназ",
	"лице",
	"колледж",
	"техникум",
	"училищ",
	"университет",
	"институт",
	"академ",
	"детск",
	"сад",
	"образовательн",
	"дошкольн",
}

// negativeKeywords основы слов, при которых кандидат отбрасывается всегда:
// домены, пересекающиеся с учреждениями по поисковым словам, но никогда
// не являющиеся целевой организацией.
var negativeKeywords = []string{
	"ликвидир",
	"ликвидац",
	"приход",
	"храм",
	"церк",
	"монастыр",
	"епарх",
	"садоводческ",
	"огородническ",
	"театр",
	"гаражн",
}

// stopWords служебные слова, исключаемые из пересечения значимых слов
var stopWords = map[string]struct{}{
	"и":       {},
	"в":       {},
	"во":      {},
	"на":      {},
	"с":       {},
	"со":      {},
	"по":      {},
	"под":     {},
	"при":     {},
	"для":     {},
	"из":      {},
	"им":      {},
	"имени":   {},
	"г":       {},
	"гор":     {},
	"город":   {},
	"города":  {},
	"обл":     {},
	"область": {},
	"области": {},
	"район":   {},
	"района":  {},
	"пос":     {},
}

// containsKeyword проверяет наличие основы из списка в тексте (без регистра)
func containsKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
