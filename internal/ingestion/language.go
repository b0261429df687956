package ingestion

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// UndeterminedLanguage is the ISO 639 code for text with no detectable language.
const UndeterminedLanguage = "und"

// Language is a detection result.
type Language struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reliable   bool    `json:"reliable"`
}

// DetectLanguage returns the ISO 639-1 code of text's language.
func DetectLanguage(text string) Language {
	if strings.IndexFunc(text, unicode.IsLetter) < 0 {
		return Language{Code: UndeterminedLanguage}
	}
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return Language{Code: UndeterminedLanguage}
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return Language{Code: UndeterminedLanguage, Confidence: info.Confidence}
	}
	return Language{
		Code:       code,
		Name:       info.Lang.String(),
		Confidence: info.Confidence,
		Reliable:   info.IsReliable(),
	}
}
