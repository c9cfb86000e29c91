package prompt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/prompt"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

func TestBuild_DefaultTemplate(t *testing.T) {
	b := prompt.NewBuilder()
	out, err := b.Build(prompt.NewData("copy sales daily", &models.ResolvedContext{
		SourcePath: "raw/sales.csv", SnowflakeTable: "SALES", Schedule: "daily@01:30",
	}))
	require.NoError(t, err)

	assert.Contains(t, out, "Return only a valid JSON object (no markdown, no comments).")
	assert.Contains(t, out, `pipeline_type (must be "adf")`)
	assert.Contains(t, out, `User Request: "copy sales daily"`)
	assert.Contains(t, out, "- Source Path: raw/sales.csv")
	assert.Contains(t, out, "- Target Table: SALES")
	assert.Contains(t, out, "- Schedule: daily@01:30")
}

func TestNewData_Fallbacks(t *testing.T) {
	d := prompt.NewData("x", &models.ResolvedContext{})
	assert.Equal(t, "unknown", d.SourcePath)
	assert.Equal(t, "unknown", d.TargetTable)
	assert.Equal(t, "once", d.Schedule)
}

func TestBuild_EmptyRequirement(t *testing.T) {
	_, err := prompt.NewBuilder().Build(prompt.NewData("  ", nil))
	assert.Error(t, err)
}

func TestLoadRegistry_SelectsByKeywords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "json_sql.tmpl"), []byte("JSON->SQL {{.Requirement}}"), 0o644))
	reg := `
intents:
  - name: json-to-sql
    keywords: [json, sql]
    template_file: json_sql.tmpl
  - name: quick
    keywords: [quick]
    template: "Quick: {{.Requirement}} @ {{.Schedule}}"
`
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reg), 0o644))

	b, err := prompt.LoadRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, "json-to-sql", b.Detect("Load JSON files into SQL"))
	assert.Equal(t, "quick", b.Detect("a quick copy"))
	assert.Equal(t, prompt.DefaultIntent, b.Detect("load json into snowflake"))

	out, err := b.Build(prompt.NewData("a quick copy", nil))
	require.NoError(t, err)
	assert.Equal(t, "Quick: a quick copy @ once", out)

	out, err = b.Build(prompt.NewData("json to sql", nil))
	require.NoError(t, err)
	assert.Equal(t, "JSON->SQL json to sql", out)
}

func TestLoadRegistry_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := prompt.LoadRegistry(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intents:\n  - name: x\n    template: hi\n"), 0o644))
	_, err = prompt.LoadRegistry(path)
	assert.ErrorContains(t, err, "no keywords")

	b, err := prompt.LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultIntent, b.Detect("anything"))
}
