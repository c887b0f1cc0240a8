// Package sanitize turns free-form, possibly bilingual model names into
// identifiers that are safe inside diagram grammars, and provides the fuzzy
// name matching used to resolve references between model elements.
//
// Every function in this package is pure and safe for concurrent use. The
// pattern tables are package-level values that are never written after
// initialization.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// placeholders maps the inner text of template placeholders such as
// "[エンティティ名]" to a fixed identifier.
var placeholders = map[string]string{
	"エンティティ名":  "Entity",
	"値オブジェクト名": "ValueObject",
	"集約名":      "Aggregate",
	"サービス名":    "Service",
	"イベント名":    "Event",
	"リポジトリ名":   "Repository",
	"ファクトリ名":   "Factory",
	"属性名":      "Attribute",
	"型":        "Type",
}

// terms substitutes well-known Japanese DDD vocabulary. Longer terms come
// first so that compound words are replaced as a whole.
var terms = strings.NewReplacer(
	"値オブジェクト", "ValueObject",
	"エンティティ", "Entity",
	"リポジトリ", "Repository",
	"サービス", "Service",
	"イベント", "Event",
	"集約", "Aggregate",
	"属性", "Attribute",
	"名", "Name",
)

// Sanitize normalizes raw into an identifier. Whitespace is removed so that
// "Order Line" and "OrderLine" converge. The result is never empty, never
// starts with a digit, and Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	return sanitize(width.Fold.String(raw), false)
}

// ClassName is the class-diagram variant of Sanitize. It keeps only the text
// before the first '[' (the "English[日本語][CONST]" header form) and turns
// whitespace into underscores instead of removing it.
func ClassName(raw string) string {
	s := width.Fold.String(raw)
	if i := strings.Index(s, "["); i > 0 {
		if prefix := strings.TrimSpace(s[:i]); prefix != "" {
			s = prefix
		}
	}
	return sanitize(s, true)
}

func sanitize(s string, keepSpaces bool) string {
	s = strings.TrimSpace(s)

	if inner, ok := placeholderInner(s); ok {
		if id, known := placeholders[strings.TrimSpace(inner)]; known {
			return id
		}
		return sanitize(inner, keepSpaces)
	}

	s = terms.Replace(s)
	s = stripParenthesized(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if keepSpaces {
				b.WriteByte('_')
			}
		case r == '_' || isASCIIAlnum(r) || IsJapanese(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(collapseUnderscores(b.String()), "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "Item" + out
	}
	return out
}

// placeholderInner reports whether s is a single bracketed placeholder and
// returns the text between the brackets.
func placeholderInner(s string) (string, bool) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	if strings.ContainsAny(inner, "[]") {
		return "", false
	}
	return inner, true
}

// stripParenthesized removes "(...)" groups including their content. When that
// would leave nothing, only the parenthesis characters are dropped.
func stripParenthesized(s string) string {
	if !strings.ContainsAny(s, "()") {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		return b.String()
	}
	return strings.NewReplacer("(", "", ")", "").Replace(s)
}

func collapseUnderscores(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// IsJapanese reports whether r is Hiragana, Katakana (without the middle dot)
// or a CJK ideograph.
func IsJapanese(r rune) bool {
	switch {
	case r >= 0x3041 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A1 && r <= 0x30FA, r >= 0x30FC && r <= 0x30FF: // katakana
		return true
	case r >= 0x3400 && r <= 0x4DBF, r >= 0x4E00 && r <= 0x9FFF: // kanji
		return true
	case r == 0x3005: // 々
		return true
	}
	return false
}

// IsASCIIIdentifier reports whether s looks like an English identifier
// (letters, digits and underscores, starting with a letter).
func IsASCIIIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || isASCIIAlnum(r) {
			if i == 0 && r >= '0' && r <= '9' {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// IsConstantName reports whether s is an UPPER_SNAKE constant such as
// "ORDER_LINE".
func IsConstantName(s string) bool {
	if !IsASCIIIdentifier(s) {
		return false
	}
	return strings.ToUpper(s) == s && strings.IndexFunc(s, unicode.IsLetter) >= 0
}
