package ocr

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is the engine code used when none is configured.
const DefaultLanguage = "eng"

var supportedLanguages = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Portuguese,
	language.Dutch,
	language.Polish,
	language.Russian,
	language.Ukrainian,
	language.Turkish,
	language.Arabic,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Japanese,
	language.Korean,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// engineCodes covers tags whose engine code is not the ISO 639-3 base.
var engineCodes = map[language.Tag]string{
	language.SimplifiedChinese:  "chi_sim",
	language.TraditionalChinese: "chi_tra",
}

// ResolveLanguage maps a language given as a BCP 47 tag ("en", "de-AT"),
// an engine code ("eng", "chi_sim") or an English name ("German") to the
// engine's language code.
func ResolveLanguage(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return DefaultLanguage, nil
	}
	for _, code := range engineCodes {
		if strings.EqualFold(code, s) {
			return code, nil
		}
	}

	matched, ok := matchTag(s)
	if !ok {
		tag, err := tagFromName(s)
		if err != nil {
			return "", err
		}
		matched = tag
	}
	if code, ok := engineCodes[matched]; ok {
		return code, nil
	}
	base, _ := matched.Base()
	return base.ISO3(), nil
}

func matchTag(s string) (language.Tag, bool) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, false
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return language.Und, false
	}
	return supportedLanguages[idx], true
}

func tagFromName(name string) (language.Tag, error) {
	namer := display.English.Tags()
	for _, t := range supportedLanguages {
		if strings.EqualFold(namer.Name(t), name) {
			return t, nil
		}
		base, _ := t.Base()
		if strings.EqualFold(display.English.Languages().Name(base), name) {
			return t, nil
		}
	}
	return language.Und, fmt.Errorf("unsupported language %q", name)
}
