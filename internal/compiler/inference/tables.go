package inference

import (
	"regexp"
	"strings"

	"github.com/dphaener/ddmark/internal/compiler/ir"
)

// aliases maps lower-case foreign-key stems to entity names.
var aliases = map[string]string{
	"organization": "Organization",
	"user":         "User",
	"role":         "Role",
	"session":      "Session",
	"project":      "Project",
	"task":         "Task",
	"milestone":    "Milestone",
	"risk":         "Risk",
	"issue":        "Issue",
	"deliverable":  "Deliverable",
}

func aliasFor(stem string) string {
	if name, ok := aliases[strings.ToLower(stem)]; ok {
		return name
	}
	return stem
}

var referenceMarkers = []string{"リファレンス", "Ref"}

// synonyms pairs Japanese type words with the English entity names they
// stand for.
var synonyms = []struct {
	japanese string
	english  string
}{
	{"組織", "Organization"},
	{"ユーザー", "User"},
	{"ロール", "Role"},
	{"役割", "Role"},
	{"セッション", "Session"},
	{"プロジェクト", "Project"},
	{"タスク", "Task"},
	{"マイルストーン", "Milestone"},
	{"リスク", "Risk"},
	{"課題", "Issue"},
	{"成果物", "Deliverable"},
}

var domainSeeds = []struct {
	from, to string
	kind     ir.RelationshipKind
}{
	{"User", "Organization", ir.ManyToOne},
	{"User", "Role", ir.ManyToMany},
	{"Organization", "User", ir.OneToMany},
	{"Role", "User", ir.ManyToMany},
}

var primitives = map[string]bool{
	"STRING": true, "TEXT": true, "CHAR": true, "VARCHAR": true, "UUID": true,
	"EMAIL": true, "PASSWORD_HASH": true, "URL": true, "ENUM": true,
	"INT": true, "INTEGER": true, "BIGINT": true, "LONG": true, "PERCENTAGE": true,
	"DECIMAL": true, "NUMBER": true, "NUMERIC": true, "FLOAT": true, "DOUBLE": true, "MONEY": true,
	"DATE": true, "TIME": true, "DATETIME": true, "TIMESTAMP": true,
	"BOOLEAN": true, "BOOL": true, "JSON": true, "OBJECT": true,
	"文字列": true, "日付": true, "日時": true, "整数": true, "数値": true, "金額": true, "真偽値": true,
}

var (
	sizedType    = regexp.MustCompile(`^([A-Za-z]+)(?:[_(]\s*\d+(?:\s*,\s*\d+)?\)?)$`)
	genericList  = regexp.MustCompile(`(?i)^(?:list|array|set|slice|collection)\s*<\s*(.+?)\s*>$`)
	suffixList   = regexp.MustCompile(`^(.+?)\s*\[\]$`)
	prefixList   = regexp.MustCompile(`^\[\]\s*(.+)$`)
	japaneseList = regexp.MustCompile(`^(.+?)(?:の)?(?:リスト|配列|一覧)$`)
)

// IsPrimitive reports whether typ is a scalar type word such as STRING_50,
// VARCHAR(255), Decimal or 日付.
func IsPrimitive(typ string) bool {
	t := strings.TrimSpace(typ)
	if m := sizedType.FindStringSubmatch(t); m != nil {
		t = m[1]
	}
	return primitives[strings.ToUpper(t)]
}

// IsCollection reports whether typ denotes many values.
func IsCollection(typ string) bool {
	t := strings.TrimSpace(typ)
	return genericList.MatchString(t) || suffixList.MatchString(t) || prefixList.MatchString(t) ||
		japaneseList.MatchString(t) || strings.EqualFold(t, "array")
}

// ElementType unwraps collection types: "List<OrderLine>" is "OrderLine".
func ElementType(typ string) string {
	t := strings.TrimSpace(typ)
	for _, re := range []*regexp.Regexp{genericList, suffixList, prefixList, japaneseList} {
		if m := re.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	}
	return t
}
