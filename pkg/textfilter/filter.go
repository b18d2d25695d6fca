package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// Display limits for generated ability text, in runes.
const (
	MaxNameRunes        = 40
	MaxDescriptionRunes = 280
)

// Words masked in generated names and descriptions. Fantasy staples such as
// "hell" and "damn" are left alone; "Hellfire Lance" is a fine ability name.
var blockedWords = []string{
	"fuck", "shit", "bitch", "bastard", "cock", "dick", "pussy", "tits",
	"whore", "slut", "fag", "retard", "nigger", "nigga", "spic", "chink",
	"kike", "motherfucker", "asshole", "dumbass", "jackass", "bullshit",
	"horseshit", "dipshit", "shithead", "dickhead", "douche", "douchebag",
}

// Softer stand-ins; words without one are masked.
var replacements = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"bitch":        "wretch",
	"bastard":      "wretch",
	"motherfucker": "miscreant",
	"asshole":      "knave",
	"dumbass":      "dolt",
	"jackass":      "knave",
	"bullshit":     "nonsense",
	"horseshit":    "nonsense",
	"dipshit":      "dolt",
	"shithead":     "knave",
	"dickhead":     "knave",
	"douche":       "knave",
	"douchebag":    "knave",
}

const mask = "***"

var (
	markup     = regexp.MustCompile("[*_`#~<>\\[\\]]+")
	whitespace = regexp.MustCompile(`\s+`)
)

// Filter cleans model-written display text before it is cached.
type Filter struct {
	regexes map[string]*regexp.Regexp
}

// New creates a Filter with its word patterns compiled.
func New() *Filter {
	f := &Filter{
		regexes: make(map[string]*regexp.Regexp, len(blockedWords)),
	}
	for _, word := range blockedWords {
		f.regexes[word] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	}
	return f
}

// Ability cleans a's name and description in place and reports whether
// anything changed.
func (f *Filter) Ability(a *effect.AbilityV2) bool {
	if a == nil {
		return false
	}
	name, desc := f.Name(a.Name), f.Description(a.Description)
	changed := name != a.Name || desc != a.Description
	a.Name, a.Description = name, desc
	return changed
}

// Name strips markup, masks blocked words, title-cases and clamps a name.
func (f *Filter) Name(s string) string {
	s = f.Censor(flatten(markup.ReplaceAllString(s, "")))
	s = strings.Trim(s, `"' .:`)
	if s == "" {
		return ""
	}
	if strings.ToLower(s) == s || strings.ToUpper(s) == s {
		s = titleCase(s)
	}
	return clamp(s, MaxNameRunes)
}

// Description flattens whitespace, masks blocked words and clamps at a word
// boundary.
func (f *Filter) Description(s string) string {
	return clamp(f.Censor(flatten(s)), MaxDescriptionRunes)
}

// Censor replaces blocked words, keeping the case shape of the original.
func (f *Filter) Censor(text string) string {
	result := text
	for _, word := range blockedWords {
		re := f.regexes[word]
		replacement, ok := replacements[word]
		if !ok {
			replacement = mask
		}
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			return f.preserveCase(match, replacement)
		})
	}
	return result
}

// Contains reports whether text has a blocked word.
func (f *Filter) Contains(text string) bool {
	for _, word := range blockedWords {
		if f.regexes[word].MatchString(text) {
			return true
		}
	}
	return false
}

// preserveCase applies the case pattern of the original word to the replacement
func (f *Filter) preserveCase(original, replacement string) string {
	if original == "" || replacement == mask {
		return replacement
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}
	if titleCase(original) == original {
		return titleCase(replacement)
	}

	// Mixed case: follow the original rune by rune
	out := make([]rune, 0, len(replacement))
	orig := []rune(original)
	for i, r := range replacement {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out = append(out, unicode.ToUpper(r))
		} else {
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// titleCase builds a Caser per call; a Caser must not be shared between
// goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

// flatten drops control characters and collapses whitespace runs.
func flatten(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// clamp cuts s to n runes, backing up to the last space when one is close.
func clamp(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-")
}
