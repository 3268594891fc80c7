package normalization

import (
	"strings"
	"sync"

	"github.com/kljensen/snowball"
)

// RussianStemmer стемминг русских слов по алгоритму Snowball с кэшем.
// Пакетная валидация многократно стеммит одни и те же слова форм
// собственности, кэш это гасит.
type RussianStemmer struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewRussianStemmer создает стеммер для русского языка
func NewRussianStemmer() *RussianStemmer {
	return &RussianStemmer{cache: make(map[string]string)}
}

// Stem возвращает основу слова: «школами» -> «школ»
func (s *RussianStemmer) Stem(word string) string {
	normalized := strings.ToLower(strings.TrimSpace(word))
	if normalized == "" {
		return ""
	}

	s.mu.RLock()
	cached, ok := s.cache[normalized]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	stemmed, err := snowball.Stem(normalized, "russian", false)
	if err != nil {
		stemmed = normalized
	}

	s.mu.Lock()
	s.cache[normalized] = stemmed
	s.mu.Unlock()
	return stemmed
}

// StemTokens стеммит срез слов
func (s *RussianStemmer) StemTokens(tokens []string) []string {
	result := make([]string, len(tokens))
	for i, t := range tokens {
		result[i] = s.Stem(t)
	}
	return result
}
