package feeds

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// LanguageDetector tags article text with an ISO 639-1 code
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds a detector limited to the given ISO 639-1 codes.
// Unknown codes are ignored; fewer than two known codes means all languages.
func NewLanguageDetector(codes []string) *LanguageDetector {
	languages := isoToLingua(codes)
	if len(languages) < 2 {
		languages = lingua.AllLanguages()
	}

	return &LanguageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build(),
	}
}

// Detect returns the lowercase ISO 639-1 code, or "" when unsure
func (d *LanguageDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func isoToLingua(codes []string) []lingua.Language {
	supported := make(map[string]lingua.Language)
	for _, lang := range lingua.AllLanguages() {
		supported[strings.ToLower(lang.IsoCode639_1().String())] = lang
	}

	languages := []lingua.Language{}
	for _, code := range codes {
		if lang, ok := supported[strings.ToLower(code)]; ok {
			languages = append(languages, lang)
		}
	}
	return languages
}
