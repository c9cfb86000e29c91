// Package prompt renders the instruction sent to the text-generation backend.
//
// A Builder renders the built-in template unless an intent registry is
// loaded and one of its intents matches the requirement. An intent matches
// when every one of its keywords occurs in the lower-cased requirement; the
// first matching intent in file order wins.
//
// Registry file format:
//
//	intents:
//	  - name: json-to-sql
//	    keywords: [json, sql]
//	    template_file: templates/json_sql.tmpl   # relative to the registry file
//	  - name: quick
//	    keywords: [quick]
//	    template: |
//	      Return JSON for: {{.Requirement}}
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

const defaultTemplate = `Return only a valid JSON object (no markdown, no comments).
Required fields:
- pipeline_type (must be "adf")
- source: type, path, linked_service
- sink:   type, table, linked_service
- schedule: string (e.g., "once", "daily@01:00")
Optional:
- name
- transformation: array of objects

User Request: "{{.Requirement}}"

Context:
- Source Path: {{.SourcePath}}
- Target Table: {{.TargetTable}}
- Schedule: {{.Schedule}}`

const DefaultIntent = "default"

// Data is the template input.
type Data struct {
	Requirement string
	SourcePath  string
	TargetTable string
	Schedule    string
}

// NewData fills template data from a requirement and its resolved context.
// Absent hints render as "unknown"; an absent schedule renders as "once".
func NewData(requirement string, rctx *models.ResolvedContext) Data {
	d := Data{Requirement: requirement, SourcePath: "unknown", TargetTable: "unknown", Schedule: "once"}
	if rctx == nil {
		return d
	}
	if rctx.SourcePath != "" {
		d.SourcePath = rctx.SourcePath
	}
	if rctx.SnowflakeTable != "" {
		d.TargetTable = rctx.SnowflakeTable
	}
	if rctx.Schedule != "" {
		d.Schedule = rctx.Schedule
	}
	return d
}

type registryFile struct {
	Intents []struct {
		Name         string   `yaml:"name"`
		Keywords     []string `yaml:"keywords"`
		Template     string   `yaml:"template"`
		TemplateFile string   `yaml:"template_file"`
	} `yaml:"intents"`
}

type intent struct {
	name     string
	keywords []string
	tmpl     *template.Template
}

// Builder selects and renders prompt templates.
type Builder struct {
	def     *template.Template
	intents []intent
}

// NewBuilder returns a builder with only the built-in template.
func NewBuilder() *Builder {
	return &Builder{def: template.Must(template.New(DefaultIntent).Parse(defaultTemplate))}
}

// LoadRegistry reads a YAML intent registry. An empty path returns the
// default builder.
func LoadRegistry(path string) (*Builder, error) {
	b := NewBuilder()
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt registry: %w", err)
	}
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse prompt registry: %w", err)
	}

	base := filepath.Dir(path)
	for i, in := range rf.Intents {
		name := in.Name
		if name == "" {
			name = fmt.Sprintf("intent-%d", i)
		}
		if len(in.Keywords) == 0 {
			return nil, fmt.Errorf("intent %q: no keywords", name)
		}
		text := in.Template
		if in.TemplateFile != "" {
			tf := in.TemplateFile
			if !filepath.IsAbs(tf) {
				tf = filepath.Join(base, tf)
			}
			raw, err := os.ReadFile(tf)
			if err != nil {
				return nil, fmt.Errorf("intent %q: read template: %w", name, err)
			}
			text = string(raw)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("intent %q: empty template", name)
		}
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("intent %q: parse template: %w", name, err)
		}
		kws := make([]string, 0, len(in.Keywords))
		for _, k := range in.Keywords {
			kws = append(kws, strings.ToLower(k))
		}
		b.intents = append(b.intents, intent{name: name, keywords: kws, tmpl: tmpl})
	}

	log.Info().Str("path", path).Int("intents", len(b.intents)).Msg("Prompt registry loaded")
	return b, nil
}

// Detect returns the name of the intent that would render requirement.
func (b *Builder) Detect(requirement string) string {
	if in := b.match(requirement); in != nil {
		return in.name
	}
	return DefaultIntent
}

func (b *Builder) match(requirement string) *intent {
	lower := strings.ToLower(requirement)
	for i := range b.intents {
		all := true
		for _, k := range b.intents[i].keywords {
			if !strings.Contains(lower, k) {
				all = false
				break
			}
		}
		if all {
			return &b.intents[i]
		}
	}
	return nil
}

// Build renders the prompt for data.
func (b *Builder) Build(data Data) (string, error) {
	if strings.TrimSpace(data.Requirement) == "" {
		return "", errors.New("requirement is empty")
	}
	tmpl := b.def
	if in := b.match(data.Requirement); in != nil {
		tmpl = in.tmpl
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
