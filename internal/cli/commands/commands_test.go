package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dphaener/ddmark/internal/cli/config"
	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/watch"
	"github.com/dphaener/ddmark/pkg/diagram"
)

const (
	domainModelDoc = "## エンティティ\n" +
		"### User（ユーザー）\n" +
		"| 属性名 | 型 | 必須 | 説明 |\n" +
		"|---|---|---|---|\n" +
		"| name | STRING_50 | ○ | ユーザー名 |\n" +
		"| email | EMAIL | ○ | |\n"

	databaseDoc = "# 受注システム DB設計\n" +
		"## 物理設計\n" +
		"### customers テーブル\n" +
		"| カラム名 | 型 | 制約 | 説明 |\n" +
		"|---|---|---|---|\n" +
		"| id | UUID | PK | 顧客ID |\n" +
		"### orders テーブル\n" +
		"| カラム名 | 型 | 制約 | 説明 |\n" +
		"|---|---|---|---|\n" +
		"| id | UUID | PK | |\n" +
		"| customer_id | UUID | FK(customers.id) | 顧客 |\n"

	operationDoc = "# 受注処理\n" +
		"## プロセスフロー\n" +
		"1. 注文画面を表示する\n" +
		"2. 在庫を確認する\n" +
		"3. 注文を登録する\n" +
		"## 例外フロー\n" +
		"### E1: ステップ2 在庫システムが応答しない\n" +
		"- エラーメッセージを表示する\n"
)

func init() {
	color.NoColor = true
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the root command with a quiet logger
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// converterCompiler adapts a bare converter to watch.Compiler
type converterCompiler struct {
	conv *diagram.Converter
}

func (c converterCompiler) Compile(_ context.Context, kind diagram.Kind, markdown string) (diagram.Source, bool, error) {
	src, err := c.conv.Compile(kind, markdown)
	return src, false, err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "ddmark", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "render", "inspect", "watch", "serve", "export", "init"} {
		assert.Contains(t, names, expected)
	}

	for _, flag := range []string{"config", "no-color", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() {
		Version = "dev"
		GitCommit = "unknown"
	}()

	res := run(t, "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "ddmark version: 1.0.0-test")
	assert.Contains(t, res.stdout, "Git commit: abc123")
	assert.Contains(t, res.stdout, "Go version: go")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	erFile := writeTemp(t, dir, "orders-db.md", databaseDoc)
	modelFile := writeTemp(t, dir, "model.md", domainModelDoc)

	tests := []struct {
		name     string
		stdin    string
		args     []string
		contains []string
		prefix   string
	}{
		{
			name:     "detects er from file",
			args:     []string{"render", erFile},
			contains: []string{"erDiagram", "customers", "orders"},
			prefix:   "erDiagram",
		},
		{
			name:     "explicit class kind",
			args:     []string{"render", "--kind", "class", modelFile},
			contains: []string{"classDiagram", "class User", "+String name"},
			prefix:   "classDiagram",
		},
		{
			name:     "flow from stdin",
			stdin:    operationDoc,
			args:     []string{"render", "-k", "flow"},
			contains: []string{"flowchart TD", "在庫を確認する"},
			prefix:   "flowchart TD",
		},
		{
			name:     "robustness is plantuml",
			stdin:    operationDoc,
			args:     []string{"render", "--kind", "robustness", "-"},
			contains: []string{"@startuml", "@enduml"},
			prefix:   "@startuml",
		},
		{
			name:     "fenced",
			args:     []string{"render", "--fenced", erFile},
			contains: []string{"erDiagram", "\n```\n"},
			prefix:   "```mermaid\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.stdin, tt.args...)
			require.NoError(t, res.err)
			assert.True(t, strings.HasPrefix(res.stdout, tt.prefix), "output %q", res.stdout)
			assert.True(t, strings.HasSuffix(res.stdout, "\n"))
			for _, s := range tt.contains {
				assert.Contains(t, res.stdout, s)
			}
		})
	}
}

func TestRenderCommand_Output(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "orders.mmd")

	res := run(t, databaseDoc, "render", "-o", out)
	require.NoError(t, res.err)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "Wrote er diagram to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "erDiagram"))
}

func TestRenderCommand_EmptyFlow(t *testing.T) {
	res := run(t, "# タイトルのみ\n本文\n", "render", "--kind", "flow")
	require.NoError(t, res.err)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "nothing to render")
}

func TestRenderCommand_Errors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		res := run(t, domainModelDoc, "render", "--kind", "clas")
		require.Error(t, res.err)
		ce, ok := compilererrors.As(res.err)
		require.True(t, ok)
		assert.Equal(t, compilererrors.ErrUnknownKind, ce.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		res := run(t, "", "render", filepath.Join(t.TempDir(), "missing.md"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to read")
	})

	t.Run("missing config file", func(t *testing.T) {
		res := run(t, domainModelDoc, "--config", filepath.Join(t.TempDir(), "none.yaml"), "render")
		require.Error(t, res.err)
		var cfgErr *configError
		assert.True(t, errors.As(res.err, &cfgErr))
	})

	t.Run("input too large", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeTemp(t, dir, "ddmark.yaml", "render:\n  max_input_bytes: 16\n")
		res := run(t, domainModelDoc, "--config", cfgPath, "render", "--kind", "class")
		require.Error(t, res.err)
		ce, ok := compilererrors.As(res.err)
		require.True(t, ok)
		assert.Equal(t, compilererrors.CategoryInput, ce.Category)
	})
}

func TestReportError(t *testing.T) {
	t.Run("compiler error", func(t *testing.T) {
		_, err := diagram.ParseKind("clas")
		require.Error(t, err)

		var buf bytes.Buffer
		reportError(&buf, err)
		assert.Contains(t, buf.String(), "INP100")
		assert.Contains(t, buf.String(), "Did you mean: class?")
	})

	t.Run("config error", func(t *testing.T) {
		var buf bytes.Buffer
		reportError(&buf, &configError{err: errors.New("log.level must be one of")})
		assert.Contains(t, buf.String(), "CONFIGURATION ERROR")
		assert.Contains(t, buf.String(), "ddmark init")
	})

	t.Run("other error", func(t *testing.T) {
		var buf bytes.Buffer
		reportError(&buf, errors.New("boom"))
		assert.Equal(t, "Error: boom\n", buf.String())
	})
}

func TestInspect(t *testing.T) {
	t.Run("class", func(t *testing.T) {
		in := Inspect(diagram.KindClass, domainModelDoc)
		require.NotNil(t, in.Model)
		assert.Nil(t, in.Schema)
		assert.Nil(t, in.Flow)
		require.Len(t, in.Model.Entities, 1)
		assert.Equal(t, "User", in.Model.Entities[0].Name)
		assert.Len(t, in.Model.Entities[0].Attributes, 2)
	})

	t.Run("er", func(t *testing.T) {
		in := Inspect(diagram.KindER, databaseDoc)
		require.NotNil(t, in.Schema)
		require.Len(t, in.Schema.Tables, 2)
		assert.Equal(t, "customers", in.Schema.Tables[0].Name)
		require.Len(t, in.Schema.Relationships, 1)
		assert.Equal(t, "customers", in.Schema.Relationships[0].Parent)
	})

	t.Run("er fence", func(t *testing.T) {
		doc := "## ER図\n```mermaid\nerDiagram\n    A ||--o{ B : has\n```\n"
		in := Inspect(diagram.KindER, doc)
		require.NotNil(t, in.Schema)
		assert.Len(t, in.Schema.Relationships, 1)
	})

	t.Run("flow and robustness", func(t *testing.T) {
		for _, kind := range []diagram.Kind{diagram.KindFlow, diagram.KindRobustness} {
			in := Inspect(kind, operationDoc)
			require.NotNil(t, in.Flow)
			assert.Len(t, in.Flow.Steps, 3)
			require.Len(t, in.Flow.Exceptions, 1)
			assert.Equal(t, 2, in.Flow.Exceptions[0].AtStep)
		}
	})
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	erFile := writeTemp(t, dir, "orders-db.md", databaseDoc)

	t.Run("json", func(t *testing.T) {
		res := run(t, "", "inspect", "--format", "json", erFile)
		require.NoError(t, res.err)

		var in Inspection
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &in))
		assert.Equal(t, diagram.KindER, in.Kind)
		assert.Equal(t, erFile, in.File)
		require.NotNil(t, in.Schema)
		assert.Len(t, in.Schema.Tables, 2)
	})

	t.Run("yaml", func(t *testing.T) {
		res := run(t, operationDoc, "inspect", "-f", "yaml")
		require.NoError(t, res.err)

		var out map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &out))
		assert.Equal(t, "flow", out["kind"])
		assert.Contains(t, out, "flow")
		assert.NotContains(t, out, "file")
	})

	t.Run("table", func(t *testing.T) {
		tests := []struct {
			stdin    string
			contains []string
		}{
			{databaseDoc, []string{"Tables", "customers", "customer_id", "customers.id", "Relationships"}},
			{domainModelDoc, []string{"Domain model", "User", "Entity"}},
			{operationDoc, []string{"受注処理", "main", "exception: E1"}},
			{"plain text\n", []string{"no domain model elements found"}},
		}
		for _, tt := range tests {
			res := run(t, tt.stdin, "inspect")
			require.NoError(t, res.err)
			for _, s := range tt.contains {
				assert.Contains(t, res.stdout, s)
			}
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		res := run(t, domainModelDoc, "inspect", "--format", "xml")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "unknown format")
	})
}

func TestExporter(t *testing.T) {
	dir := t.TempDir()
	var progress bytes.Buffer
	exporter := &Exporter{
		Compiler:  converterCompiler{conv: diagram.NewConverter()},
		OutputDir: dir,
		Progress:  &progress,
		NoColor:   true,
	}

	docs := []store.Document{
		{ID: "orders-db", Kind: "er", Markdown: databaseDoc},
		{ID: "model", Kind: "", Markdown: domainModelDoc},
		{ID: "order-flow", Kind: "robustness", Markdown: operationDoc},
		{ID: "blank", Kind: "flow", Markdown: "# 見出しのみ\n"},
		{ID: "broken", Kind: "sequence", Markdown: "x"},
		{ID: "../escape", Kind: "class", Markdown: domainModelDoc},
	}

	result, err := exporter.Export(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "orders-db.er.mmd"),
		filepath.Join(dir, "model.class.mmd"),
		filepath.Join(dir, "order-flow.robustness.puml"),
		filepath.Join(dir, "__escape.class.mmd"),
	}, result.Written)
	assert.Equal(t, []string{"blank"}, result.Skipped)
	require.Contains(t, result.Failed, "broken")
	ce, ok := compilererrors.As(result.Failed["broken"])
	require.True(t, ok)
	assert.Equal(t, compilererrors.ErrUnknownKind, ce.Code)

	list := result.CompilerErrors(docs)
	require.Len(t, list, 1)
	assert.Equal(t, "broken", list[0].File)
	assert.Empty(t, ce.File, "the stored error is left untouched")
	assert.True(t, list.HasErrors())

	data, err := os.ReadFile(filepath.Join(dir, "order-flow.robustness.puml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "@startuml"))
	assert.Contains(t, progress.String(), "6/6")
	assert.Contains(t, progress.String(), "Exported 4 of 6 documents")
}

func TestExporter_KindOverride(t *testing.T) {
	dir := t.TempDir()
	exporter := &Exporter{
		Compiler:  converterCompiler{conv: diagram.NewConverter()},
		OutputDir: dir,
		Kind:      "flow",
	}

	result, err := exporter.Export(context.Background(), []store.Document{
		{ID: "op", Kind: "robustness", Markdown: operationDoc},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "op.flow.mmd")}, result.Written)
}

func TestExporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exporter := &Exporter{Compiler: converterCompiler{conv: diagram.NewConverter()}, OutputDir: t.TempDir()}
	_, err := exporter.Export(ctx, []store.Document{{ID: "a", Markdown: domainModelDoc}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStem(t *testing.T) {
	tests := []struct {
		id       string
		expected string
	}{
		{"orders-db", "orders-db"},
		{"docs/orders", "docs_orders"},
		{`a\b`, "a_b"},
		{"../x", "__x"},
		{"", "_"},
		{"  ", "_"},
		{".", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.expected, fileStem(tt.id))
		})
	}
}

// seedSQLite creates a document table in a fresh SQLite file
func seedSQLite(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE design_documents (
		id TEXT PRIMARY KEY, title TEXT, kind TEXT, markdown TEXT, updated_at TIMESTAMP)`)
	require.NoError(t, err)

	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = db.Exec(`INSERT INTO design_documents VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)`,
		"orders-db", "DB設計", "er", databaseDoc, updated,
		"order-flow", "受注処理", "flow", operationDoc, updated,
		"model", "ドメインモデル", "", domainModelDoc, updated)
	require.NoError(t, err)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "docs.db")
	seedSQLite(t, dbPath)
	out := filepath.Join(dir, "out")
	cfgPath := writeTemp(t, dir, "ddmark.yaml",
		"cache:\n  backend: none\n"+
			"database:\n  driver: sqlite3\n  url: "+dbPath+"\n")

	t.Run("all documents", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--output", out)
		require.NoError(t, res.err)
		assert.Equal(t, filepath.Join(out, "model.class.mmd")+"\n"+
			filepath.Join(out, "order-flow.flow.mmd")+"\n"+
			filepath.Join(out, "orders-db.er.mmd")+"\n", res.stdout)
		assert.FileExists(t, filepath.Join(out, "orders-db.er.mmd"))
	})

	t.Run("kind filter", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--output", out, "--kind", "er")
		require.NoError(t, res.err)
		assert.Equal(t, filepath.Join(out, "orders-db.er.mmd")+"\n", res.stdout)
	})

	t.Run("ids", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--output", out, "--ids", "order-flow,missing")
		require.NoError(t, res.err)
		assert.Equal(t, filepath.Join(out, "order-flow.flow.mmd")+"\n", res.stdout)
	})

	t.Run("render as", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--output", out, "--ids", "order-flow", "--as", "robustness")
		require.NoError(t, res.err)
		assert.Equal(t, filepath.Join(out, "order-flow.robustness.puml")+"\n", res.stdout)
	})

	t.Run("no matches", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--output", out, "--kind", "robustness")
		require.NoError(t, res.err)
		assert.Empty(t, res.stdout)
		assert.Contains(t, res.stderr, "no documents to export")
	})

	t.Run("invalid kind", func(t *testing.T) {
		res := run(t, "", "--config", cfgPath, "export", "--kind", "sequence")
		require.Error(t, res.err)
		_, ok := compilererrors.As(res.err)
		assert.True(t, ok)
	})
}

func TestExportCommand_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "docs.db")
	seedSQLite(t, dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO design_documents VALUES (?, ?, ?, ?, ?)`,
		"legacy", "旧形式", "sequence", "x", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out := filepath.Join(dir, "out")
	cfgPath := writeTemp(t, dir, "ddmark.yaml",
		"cache:\n  backend: none\n"+
			"database:\n  driver: sqlite3\n  url: "+dbPath+"\n")

	res := run(t, "", "--config", cfgPath, "export", "--output", out)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "1 of 4 documents failed to export")
	assert.Contains(t, res.stderr, "Rendering failed with 1 error(s)")
	assert.Contains(t, res.stderr, "Input Error in legacy [INP100]")
	assert.FileExists(t, filepath.Join(out, "orders-db.er.mmd"))
}

func TestExportCommand_NoDatabase(t *testing.T) {
	cfgPath := writeTemp(t, t.TempDir(), "ddmark.yaml", "cache:\n  backend: none\n")
	res := run(t, "", "--config", cfgPath, "export")
	require.Error(t, res.err)
	var cfgErr *configError
	require.True(t, errors.As(res.err, &cfgErr))
	assert.Contains(t, res.err.Error(), "database.url")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ddmark.yaml")

	res := run(t, "", "init", "--yes", "--output", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Created "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# ddmark configuration\n"))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	defaults := config.Default()
	assert.Equal(t, defaults.Render, cfg.Render)
	assert.Equal(t, defaults.Server.Port, cfg.Server.Port)
	assert.Equal(t, defaults.Cache.TTL, cfg.Cache.TTL)
	assert.Equal(t, []string{"."}, cfg.Watch.Paths)

	res = run(t, "", "init", "--yes", "--output", path)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already exists")

	res = run(t, "", "init", "--yes", "--force", "--output", path)
	require.NoError(t, res.err)
}

func TestInitCommand_ConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	res := run(t, "", "--config", path, "init", "-y")
	require.NoError(t, res.err)
	assert.FileExists(t, path)
}

func TestInitAnswers_Apply(t *testing.T) {
	cfg := config.Default()
	answers := answersFrom(cfg)
	answers.DefaultKind = "er"
	answers.CacheBackend = "redis"
	answers.DatabaseURL = "postgres://localhost/docs"
	answers.Port = "9000"
	require.NoError(t, answers.apply(cfg))

	assert.Equal(t, "er", cfg.Render.DefaultKind)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 9000, cfg.Server.Port)

	for _, port := range []string{"", "abc", "0", "70000"} {
		answers.Port = port
		assert.Error(t, answers.apply(cfg), "port %q", port)
	}
}

func TestRenderReporter(t *testing.T) {
	var buf bytes.Buffer
	report := renderReporter(&buf, "diagrams")

	report(&watch.Message{Type: watch.MessageDiagram, File: "docs/order.md", Kind: diagram.KindFlow, Language: diagram.LanguageMermaid, Body: "flowchart TD"})
	report(&watch.Message{Type: watch.MessageDiagram, File: "docs/empty.md", Kind: diagram.KindFlow})
	report(&watch.Message{Type: watch.MessageError, File: "docs/bad.md", Error: &watch.ErrorInfo{Message: "unknown diagram kind", Code: "INP100"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "✓ docs/order.md → "+filepath.Join("diagrams", "order.flow.mmd"), lines[0])
	assert.Equal(t, "✓ docs/empty.md (flow)", lines[1])
	assert.Equal(t, "✗ docs/bad.md: unknown diagram kind [INP100]", lines[2])
}
