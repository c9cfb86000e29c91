// Package generator turns a PipelineConfig into an ADF pipeline document and
// validates the structure of pipeline documents before they are persisted or
// deployed.
package generator

import (
	"regexp"
	"strings"
	"time"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

const (
	DefaultPipelineName  = "CopyPipeline"
	DefaultSourceDataset = "SourceDataset"
	DefaultSinkDataset   = "SinkDataset"
	CopyActivityName     = "CopyActivity"

	AnnotationSchedule    = "autoflow:schedule"
	AnnotationGeneratedAt = "autoflow:generated_at"
)

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

var (
	whitespace   = regexp.MustCompile(`\s+`)
	illegalChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
)

// Sanitize makes name safe for ADF object names and file names. Whitespace
// runs become "_" and any other character outside [A-Za-z0-9_-] is dropped.
// An empty result yields fallback.
func Sanitize(name, fallback string) string {
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = illegalChars.ReplaceAllString(name, "")
	if name == "" {
		return fallback
	}
	return name
}

// SourceBlockType maps a free-form source kind to the Copy activity source type.
func SourceBlockType(kind string) string {
	s := strings.ToLower(kind)
	switch {
	case strings.Contains(s, "blob"):
		return "BlobSource"
	case strings.Contains(s, "adls"), strings.Contains(s, "datalake"):
		return "AzureDataLakeStoreSource"
	case strings.Contains(s, "json"):
		return "JsonSource"
	default:
		return "BlobSource"
	}
}

// SinkBlockType maps a free-form sink kind to the Copy activity sink type.
// Snowflake must map to SnowflakeSink, never SqlSink.
func SinkBlockType(kind string) string {
	s := strings.ToLower(kind)
	switch {
	case strings.Contains(s, "snowflake"), strings.Contains(s, "sf"):
		return "SnowflakeSink"
	case strings.Contains(s, "sql"), strings.Contains(s, "synapse"):
		return "SqlSink"
	case strings.Contains(s, "blob"):
		return "BlobSink"
	default:
		return "BlobSink"
	}
}

// Generate builds a single-Copy-activity pipeline. Scheduling is recorded
// only as annotations; triggers are created at deploy time.
func Generate(cfg *models.PipelineConfig) *models.PipelineArtifact {
	if cfg == nil {
		cfg = &models.PipelineConfig{}
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "once"
	}
	sourceDS := cfg.Source.DatasetName
	if sourceDS == "" {
		sourceDS = DefaultSourceDataset
	}
	sinkDS := cfg.Sink.DatasetName
	if sinkDS == "" {
		sinkDS = DefaultSinkDataset
	}

	return &models.PipelineArtifact{
		Name: Sanitize(cfg.Name, DefaultPipelineName),
		Properties: &models.PipelineProperties{
			Activities: []models.Activity{{
				Name: CopyActivityName,
				Type: "Copy",
				Policy: &models.ActivityPolicy{
					Timeout:                "7.00:00:00",
					Retry:                  2,
					RetryIntervalInSeconds: 30,
				},
				Inputs:  []models.DatasetRef{{ReferenceName: sourceDS, Type: "DatasetReference"}},
				Outputs: []models.DatasetRef{{ReferenceName: sinkDS, Type: "DatasetReference"}},
				TypeProperties: models.CopyActivityProperties{
					Source: models.TypedBlock{Type: SourceBlockType(cfg.Source.Type)},
					Sink:   models.TypedBlock{Type: SinkBlockType(cfg.Sink.Type)},
				},
			}},
			Annotations: []map[string]string{
				{AnnotationSchedule: schedule},
				{AnnotationGeneratedAt: now().Format("2006-01-02T15:04:05.000000") + "Z"},
			},
		},
	}
}

// Schedule returns the schedule annotation recorded on the artifact, if any.
func Schedule(a *models.PipelineArtifact) (string, bool) {
	if a == nil || a.Properties == nil {
		return "", false
	}
	for _, ann := range a.Properties.Annotations {
		if v, ok := ann[AnnotationSchedule]; ok {
			return v, true
		}
	}
	return "", false
}
