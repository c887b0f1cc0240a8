package parser

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/sanitize"
)

var (
	ordinalPrefix = regexp.MustCompile(`^\d+(?:[.-]\d+)*\.?\s+`)
	bracketToken  = regexp.MustCompile(`\[([^\[\]]+)\]`)
	parenName     = regexp.MustCompile(`^(.+?)\s*\(\s*(.+?)\s*\)\s*$`)
	emphasis      = strings.NewReplacer("**", "", "__", "", "`", "")
)

// stopList holds DDD meta-terms that appear as headings but never name an
// entity. Matching is on the whole cleaned heading text, case-insensitively.
var stopList = map[string]bool{
	"集約ルート":          true,
	"aggregate root": true,
	"ドメインイベント":       true,
	"domain event":   true,
	"domain events":  true,
	"aggregate":      true,
	"aggregates":     true,
	"event":          true,
	"events":         true,
	"イベント":           true,
	"属性":             true,
	"属性一覧":           true,
	"attributes":     true,
	"振る舞い":           true,
	"メソッド":           true,
	"methods":        true,
	"behavior":       true,
	"ビジネスルール":        true,
	"business rules": true,
	"不変条件":           true,
	"invariants":     true,
	"関連":             true,
	"リレーション":         true,
	"relationships":  true,
	"説明":             true,
	"概要":             true,
	"description":    true,
	"制約":             true,
	"constraints":    true,
	"ライフサイクル":        true,
	"状態遷移":           true,
}

// groupSuffixes mark level-3 headings that group entities ("コアエンティティ")
// without naming one.
var groupSuffixes = []string{"エンティティ", "エンティティ群", "Entities", "値オブジェクト", "Value Objects"}

var aggregateRootMarker = regexp.MustCompile(`集約ルート|(?i:aggregate\s*root)|ルートエンティティ|(?i:root\s*entity)`)

// cleanHeading folds width, drops emphasis markers and a leading ordinal.
func cleanHeading(text string) string {
	s := width.Fold.String(text)
	s = emphasis.Replace(s)
	s = strings.TrimSpace(s)
	return strings.TrimSpace(ordinalPrefix.ReplaceAllString(s, ""))
}

// cleanText folds width and drops emphasis markers.
func cleanText(text string) string {
	return strings.TrimSpace(emphasis.Replace(width.Fold.String(text)))
}

func isStopHeading(cleaned string) bool {
	return stopList[strings.ToLower(cleaned)]
}

func isGroupHeading(cleaned string) bool {
	if strings.ContainsAny(cleaned, "[(") {
		return false
	}
	for _, suffix := range groupSuffixes {
		if strings.HasSuffix(cleaned, suffix) && cleaned != suffix {
			return true
		}
	}
	return false
}

// elementName extracts the canonical identifier from a cleaned heading. It
// understands "English（日本語）", "日本語（English）", "日本語 [English] [CONST]",
// "English[日本語][CONST]" and bare names.
func elementName(cleaned string) string {
	if tokens := bracketToken.FindAllStringSubmatch(cleaned, -1); len(tokens) > 0 {
		base := strings.TrimSpace(cleaned[:strings.Index(cleaned, "[")])
		if isEnglish(base) {
			return sanitize.Sanitize(base)
		}
		for _, t := range tokens {
			token := strings.TrimSpace(t[1])
			if isEnglish(token) && !sanitize.IsConstantName(token) {
				return sanitize.Sanitize(token)
			}
		}
		if base != "" {
			return sanitize.Sanitize(base)
		}
		return sanitize.Sanitize(tokens[0][1])
	}

	if m := parenName.FindStringSubmatch(cleaned); m != nil {
		switch {
		case isEnglish(m[1]):
			return sanitize.Sanitize(m[1])
		case isEnglish(m[2]):
			return sanitize.Sanitize(m[2])
		default:
			return sanitize.Sanitize(m[1])
		}
	}

	return sanitize.Sanitize(cleaned)
}

// isEnglish reports whether s is an ASCII identifier once spaces are removed.
func isEnglish(s string) bool {
	return sanitize.IsASCIIIdentifier(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// englishToken returns the first non-constant ASCII identifier among the
// bracket tokens of s, falling back to the first ASCII one.
func englishToken(s string) (string, bool) {
	var fallback string
	for _, t := range bracketToken.FindAllStringSubmatch(s, -1) {
		token := strings.TrimSpace(t[1])
		if !isEnglish(token) {
			continue
		}
		if !sanitize.IsConstantName(token) {
			return token, true
		}
		if fallback == "" {
			fallback = token
		}
	}
	return fallback, fallback != ""
}

// stereotypeFor applies the fixed-priority name matcher. raw is the heading
// text and name the sanitized identifier; both are consulted because
// sanitizing rewrites Japanese role words into English ones.
func stereotypeFor(raw, name string, sec section) ir.Stereotype {
	s := raw + " " + name
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}

	var st ir.Stereotype
	switch {
	case has("Repository", "リポジトリ"):
		st = ir.StereotypeRepository
	case has("Service", "サービス"):
		st = ir.StereotypeService
	case has("Factory", "ファクトリ"):
		st = ir.StereotypeFactory
	case has("Event", "イベント"):
		st = ir.StereotypeEvent
	case has("Specification", "仕様"):
		st = ir.StereotypeSpecification
	case has("Aggregate", "集約"):
		st = ir.StereotypeAggregate
	case sec == sectionValueObjects || has("ValueObject", "値オブジェクト"):
		st = ir.StereotypeValueObject
	default:
		st = ir.StereotypeEntity
	}

	if sec == sectionDomainServices && (st == ir.StereotypeEntity || st == ir.StereotypeValueObject) {
		st = ir.StereotypeService
	}
	return st
}
