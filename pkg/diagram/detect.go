package diagram

import (
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/scanner"
	"github.com/dphaener/ddmark/internal/compiler/schema"
)

// kindHeadings maps heading keywords to kinds, checked in order. English
// keywords are matched case-insensitively.
var kindHeadings = []struct {
	kind     Kind
	keywords []string
}{
	{KindER, []string{"物理設計", "physical design"}},
	{KindFlow, []string{"プロセスフロー", "業務フロー", "process flow"}},
	{KindRobustness, []string{"ユースケース", "use case", "基本フロー", "basic flow"}},
}

// DetectKind guesses the kind of a document from its headings and fences.
// Documents that match nothing are treated as domain models.
func DetectKind(markdown string) Kind {
	for _, f := range scanner.Fences(markdown) {
		if schema.IsERDiagram(f.Body) {
			return KindER
		}
	}

	var headings []string
	for _, line := range scanner.Scan(markdown) {
		if line.Kind == scanner.LineHeading {
			headings = append(headings, strings.ToLower(line.Text))
		}
	}
	for _, candidate := range kindHeadings {
		for _, h := range headings {
			for _, k := range candidate.keywords {
				if strings.Contains(h, k) {
					return candidate.kind
				}
			}
		}
	}
	return KindClass
}

// KindAuto selects DetectKind in ResolveKind.
const KindAuto = "auto"

// ResolveKind parses name as a kind, detecting it from markdown when name is
// empty or "auto".
func ResolveKind(name, markdown string) (Kind, error) {
	if n := strings.TrimSpace(name); n == "" || strings.EqualFold(n, KindAuto) {
		return DetectKind(markdown), nil
	}
	return ParseKind(name)
}
