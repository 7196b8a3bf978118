// Package langctx holds the four language dimensions of one search request.
//
// The assistant language is decided once, by the first classification stage,
// and every assistant message for the request must be written in it. The UI
// language, the provider language and the region are independent of it and
// may be refined by later stages.
package langctx

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Language is a closed set of languages the assistant can speak.
type Language string

const (
	English Language = "en"
	Hebrew  Language = "he"
	Russian Language = "ru"
	Arabic  Language = "ar"
	French  Language = "fr"
	Spanish Language = "es"
)

// Supported lists every Language in a stable order.
var Supported = []Language{English, Hebrew, Russian, Arabic, French, Spanish}

// Normalize maps a free-form language tag ("he-IL", "EN", "iw") onto the closed
// set, defaulting to English.
func Normalize(tag string) Language {
	t := strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(t, "-_"); i > 0 {
		t = t[:i]
	}
	if t == "iw" {
		t = "he"
	}
	for _, l := range Supported {
		if string(l) == t {
			return l
		}
	}
	return English
}

// DetectScript guesses a language from the dominant non-Latin script of text.
// It returns ok=false for Latin-only text, where the script alone cannot tell
// English from French or Spanish.
func DetectScript(text string) (Language, bool) {
	var hebrew, arabic, cyrillic, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Hebrew, r):
			hebrew++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		}
	}
	if letters == 0 {
		return English, false
	}
	switch {
	case hebrew*2 >= letters:
		return Hebrew, true
	case arabic*2 >= letters:
		return Arabic, true
	case cyrillic*2 >= letters:
		return Russian, true
	}
	return English, false
}

// InvariantViolation is the panic value raised when a stage tries to change
// the assistant language after classification fixed it.
type InvariantViolation struct {
	Current   Language
	Attempted Language
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("langctx: assistant language is fixed to %q, refused change to %q", v.Current, v.Attempted)
}

// LangCtx is created per request and passed by pointer through every stage.
type LangCtx struct {
	mu sync.RWMutex

	assistant           Language
	assistantConfidence float64
	assistantSet        bool

	ui       Language
	provider Language
	region   string
}

// New creates a context with the UI hint and default region. The provider
// language starts as the UI language until a later stage refines it.
func New(uiHint string, region string) *LangCtx {
	ui := Normalize(uiHint)
	return &LangCtx{
		ui:       ui,
		provider: ui,
		region:   strings.ToUpper(region),
	}
}

// SetAssistant fixes the assistant language. Re-asserting the same language is
// a no-op; asserting a different one panics with InvariantViolation.
func (l *LangCtx) SetAssistant(lang Language, confidence float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.assistantSet {
		if l.assistant != lang {
			panic(InvariantViolation{Current: l.assistant, Attempted: lang})
		}
		return
	}
	l.assistant = lang
	l.assistantConfidence = confidence
	l.assistantSet = true
}

// Assistant returns the fixed assistant language, or the UI language while
// classification has not run yet.
func (l *LangCtx) Assistant() Language {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.assistantSet {
		return l.ui
	}
	return l.assistant
}

func (l *LangCtx) AssistantConfidence() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assistantConfidence
}

func (l *LangCtx) AssistantLocked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assistantSet
}

func (l *LangCtx) UI() Language {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ui
}

func (l *LangCtx) Provider() Language {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.provider
}

func (l *LangCtx) Region() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.region
}

func (l *LangCtx) SetUI(lang Language) {
	l.mu.Lock()
	l.ui = lang
	l.mu.Unlock()
}

func (l *LangCtx) SetProvider(lang Language) {
	l.mu.Lock()
	l.provider = lang
	l.mu.Unlock()
}

func (l *LangCtx) SetRegion(region string) {
	if region == "" {
		return
	}
	l.mu.Lock()
	l.region = strings.ToUpper(region)
	l.mu.Unlock()
}

// Snapshot is the serialisable view carried in response metadata.
type Snapshot struct {
	UI                  Language `json:"ui"`
	Assistant           Language `json:"assistant"`
	AssistantConfidence float64  `json:"assistantConfidence"`
	Provider            Language `json:"provider"`
	Region              string   `json:"region"`
}

func (l *LangCtx) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	assistant := l.assistant
	if !l.assistantSet {
		assistant = l.ui
	}
	return Snapshot{
		UI:                  l.ui,
		Assistant:           assistant,
		AssistantConfidence: l.assistantConfidence,
		Provider:            l.provider,
		Region:              l.region,
	}
}

// regionLanguages maps a region to the language its place listings are
// best searched in.
var regionLanguages = map[string]Language{
	"IL": Hebrew,
	"RU": Russian,
	"FR": French,
	"ES": Spanish,
	"MX": Spanish,
	"AR": Spanish,
	"AE": Arabic,
	"SA": Arabic,
	"EG": Arabic,
	"JO": Arabic,
}

// ProviderLanguageFor picks the provider language for region, falling back to
// English where listings are predominantly English or the region is unknown.
func ProviderLanguageFor(region string) Language {
	if l, ok := regionLanguages[strings.ToUpper(region)]; ok {
		return l
	}
	return English
}
