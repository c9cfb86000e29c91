// Package adf builds the Data Factory resource bodies shared by the
// auto-fixer and the deployer. Every builder returns a complete
// {"properties": {...}} document.
package adf

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

type secureString struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func secure(v string) secureString {
	return secureString{Type: "SecureString", Value: v}
}

type reference struct {
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type"`
}

type envelope struct {
	Properties interface{} `json:"properties"`
}

func encode(props interface{}) json.RawMessage {
	data, err := json.Marshal(envelope{Properties: props})
	if err != nil {
		// Only plain structs, strings and numbers are marshalled here.
		panic(fmt.Sprintf("adf: marshal document: %v", err))
	}
	return data
}

// BlobConnectionString formats a shared-key connection string for account.
func BlobConnectionString(account, key string) string {
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net", account, key)
}

// ── Linked services ──────────────────────────────────────────

type connectionProps struct {
	ConnectionString secureString `json:"connectionString"`
}

type linkedServiceProps struct {
	Type           string          `json:"type"`
	TypeProperties connectionProps `json:"typeProperties"`
}

// BlobLinkedService is an AzureBlobStorage linked service using the account key.
func BlobLinkedService(account, key string) json.RawMessage {
	return encode(linkedServiceProps{
		Type:           "AzureBlobStorage",
		TypeProperties: connectionProps{ConnectionString: secure(BlobConnectionString(account, key))},
	})
}

// SnowflakeLinkedService is a Snowflake linked service holding the JDBC
// connection string as a SecureString.
func SnowflakeLinkedService(connectionString string) json.RawMessage {
	return encode(linkedServiceProps{
		Type:           "Snowflake",
		TypeProperties: connectionProps{ConnectionString: secure(connectionString)},
	})
}

// ── Datasets ─────────────────────────────────────────────────

type blobLocation struct {
	Type       string `json:"type"`
	Container  string `json:"container"`
	FolderPath string `json:"folderPath,omitempty"`
	FileName   string `json:"fileName"`
}

type delimitedTextProps struct {
	Location         blobLocation `json:"location"`
	ColumnDelimiter  string       `json:"columnDelimiter"`
	FirstRowAsHeader bool         `json:"firstRowAsHeader"`
}

type delimitedTextDataset struct {
	LinkedServiceName reference          `json:"linkedServiceName"`
	Type              string             `json:"type"`
	TypeProperties    delimitedTextProps `json:"typeProperties"`
	Schema            []interface{}      `json:"schema"`
}

// SplitBlobPath splits "a/b/file.csv" into folder "a/b" and file "file.csv".
func SplitBlobPath(blob string) (folder, file string) {
	blob = strings.Trim(blob, "/")
	if i := strings.LastIndex(blob, "/"); i >= 0 {
		return blob[:i], blob[i+1:]
	}
	return "", blob
}

// BlobCSVDataset is a comma-delimited text dataset with a header row.
func BlobCSVDataset(linkedService, container, blob string) json.RawMessage {
	folder, file := SplitBlobPath(blob)
	return encode(delimitedTextDataset{
		LinkedServiceName: reference{ReferenceName: linkedService, Type: "LinkedServiceReference"},
		Type:              "DelimitedText",
		TypeProperties: delimitedTextProps{
			Location: blobLocation{
				Type:       "AzureBlobStorageLocation",
				Container:  container,
				FolderPath: folder,
				FileName:   file,
			},
			ColumnDelimiter:  ",",
			FirstRowAsHeader: true,
		},
		Schema: []interface{}{},
	})
}

type snowflakeTableProps struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type snowflakeTableDataset struct {
	LinkedServiceName reference           `json:"linkedServiceName"`
	Type              string              `json:"type"`
	TypeProperties    snowflakeTableProps `json:"typeProperties"`
}

// SnowflakeTableDataset binds schema.table to a Snowflake linked service.
// The Copy activity pairs it with SnowflakeSink.
func SnowflakeTableDataset(linkedService, schema, table string) json.RawMessage {
	return encode(snowflakeTableDataset{
		LinkedServiceName: reference{ReferenceName: linkedService, Type: "LinkedServiceReference"},
		Type:              "SnowflakeTable",
		TypeProperties:    snowflakeTableProps{Schema: schema, Table: table},
	})
}

// ── Pipeline ─────────────────────────────────────────────────

// Pipeline wraps the artifact properties as a pipeline resource body.
func Pipeline(a *models.PipelineArtifact) json.RawMessage {
	return encode(a.Properties)
}

// ── Trigger ──────────────────────────────────────────────────

type recurrenceSchedule struct {
	Hours   []int `json:"hours"`
	Minutes []int `json:"minutes"`
}

type recurrence struct {
	Frequency string             `json:"frequency"`
	Interval  int                `json:"interval"`
	StartTime string             `json:"startTime"`
	TimeZone  string             `json:"timeZone"`
	Schedule  recurrenceSchedule `json:"schedule"`
}

type triggerPipeline struct {
	PipelineReference reference              `json:"pipelineReference"`
	Parameters        map[string]interface{} `json:"parameters"`
}

type scheduleTriggerProps struct {
	Type           string `json:"type"`
	TypeProperties struct {
		Recurrence recurrence `json:"recurrence"`
	} `json:"typeProperties"`
	Pipelines []triggerPipeline `json:"pipelines"`
}

// TriggerName derives the trigger name for a pipeline.
func TriggerName(pipeline string) string {
	return pipeline + "_Trigger"
}

// ScheduleTrigger is a daily UTC recurrence that runs pipeline at spec's
// hour and minute, starting from start.
func ScheduleTrigger(pipeline string, spec models.ScheduleTrigger, start time.Time) json.RawMessage {
	props := scheduleTriggerProps{
		Type: "ScheduleTrigger",
		Pipelines: []triggerPipeline{{
			PipelineReference: reference{ReferenceName: pipeline, Type: "PipelineReference"},
			Parameters:        map[string]interface{}{},
		}},
	}
	props.TypeProperties.Recurrence = recurrence{
		Frequency: "Day",
		Interval:  1,
		StartTime: start.UTC().Format(time.RFC3339),
		TimeZone:  "UTC",
		Schedule:  recurrenceSchedule{Hours: []int{spec.Hour}, Minutes: []int{spec.Minute}},
	}
	return encode(props)
}
