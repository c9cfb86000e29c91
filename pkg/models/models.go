package models

import (
	"time"
)

// ── Resolved Context ─────────────────────────────────────────

// ResolvedContext is the single configuration record an operation runs
// against. It is built once per request by the resolver and passed through
// every stage. Secret-bearing fields never serialize.
type ResolvedContext struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	ResourceGroup  string `json:"resource_group,omitempty"`
	FactoryName    string `json:"factory_name,omitempty"`

	StorageAccountName string `json:"storage_account_name,omitempty"`
	StorageAccountKey  string `json:"-"`
	Container          string `json:"container,omitempty"`
	BlobName           string `json:"blob_name,omitempty"`

	SnowflakeSchema           string `json:"snowflake_schema,omitempty"`
	SnowflakeTable            string `json:"snowflake_table,omitempty"`
	SnowflakeConnectionString string `json:"-"`

	BlobLinkedService      string `json:"blob_ls_name,omitempty"`
	SnowflakeLinkedService string `json:"snowflake_ls_name,omitempty"`
	SourceDataset          string `json:"source_dataset_name,omitempty"`
	SinkDataset            string `json:"sink_dataset_name,omitempty"`

	// Prompt hints.
	SourcePath string `json:"source_path,omitempty"`
	Schedule   string `json:"schedule,omitempty"`
}

// HasBootstrap reports whether subscription, resource group and factory are all set.
func (c *ResolvedContext) HasBootstrap() bool {
	return c.SubscriptionID != "" && c.ResourceGroup != "" && c.FactoryName != ""
}

// MissingBootstrap lists the unset bootstrap identifiers in a fixed order.
func (c *ResolvedContext) MissingBootstrap() []string {
	var missing []string
	if c.SubscriptionID == "" {
		missing = append(missing, "subscription_id")
	}
	if c.ResourceGroup == "" {
		missing = append(missing, "resource_group")
	}
	if c.FactoryName == "" {
		missing = append(missing, "factory_name")
	}
	return missing
}

// Redacted returns a loggable map of the context where secrets are replaced
// by "set"/"unset".
func (c *ResolvedContext) Redacted() map[string]string {
	secret := func(v string) string {
		if v == "" {
			return "unset"
		}
		return "set"
	}
	return map[string]string{
		"subscription_id":             c.SubscriptionID,
		"resource_group":              c.ResourceGroup,
		"factory_name":                c.FactoryName,
		"storage_account_name":        c.StorageAccountName,
		"storage_account_key":         secret(c.StorageAccountKey),
		"container":                   c.Container,
		"blob_name":                   c.BlobName,
		"snowflake_schema":            c.SnowflakeSchema,
		"snowflake_table":             c.SnowflakeTable,
		"snowflake_connection_string": secret(c.SnowflakeConnectionString),
		"blob_ls_name":                c.BlobLinkedService,
		"snowflake_ls_name":           c.SnowflakeLinkedService,
		"source_dataset_name":         c.SourceDataset,
		"sink_dataset_name":           c.SinkDataset,
	}
}

// ── Pipeline Config (LLM output) ─────────────────────────────

type PipelineConfig struct {
	PipelineType   string                   `json:"pipeline_type"`
	Name           string                   `json:"name,omitempty"`
	Source         SourceConfig             `json:"source"`
	Sink           SinkConfig               `json:"sink"`
	Schedule       string                   `json:"schedule"`
	Transformation []map[string]interface{} `json:"transformation,omitempty"`
}

type SourceConfig struct {
	Type          string `json:"type"`
	Path          string `json:"path"`
	LinkedService string `json:"linked_service,omitempty"`
	DatasetName   string `json:"dataset_name,omitempty"`
	Format        string `json:"format,omitempty"`
}

type SinkConfig struct {
	Type          string `json:"type"`
	Table         string `json:"table"`
	LinkedService string `json:"linked_service,omitempty"`
	DatasetName   string `json:"dataset_name,omitempty"`
}

// ── Prerequisite Report ──────────────────────────────────────

type CheckStatus string

const (
	CheckPresent CheckStatus = "present"
	CheckMissing CheckStatus = "missing"
	CheckError   CheckStatus = "error"
)

// CheckItem is one reconciled prerequisite.
type CheckItem struct {
	Item     string                 `json:"item"`
	Status   CheckStatus            `json:"status"`
	Details  map[string]interface{} `json:"details,omitempty"`
	HowToFix string                 `json:"how_to_fix,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type ReportSummary struct {
	Present []string    `json:"present"`
	Missing []CheckItem `json:"missing"`
	Errors  []CheckItem `json:"errors"`
}

// PrerequisiteReport is the ordered result of one reconciliation pass.
type PrerequisiteReport struct {
	Items   []CheckItem   `json:"items"`
	Summary ReportSummary `json:"summary"`
}

// NewPrerequisiteReport builds a report and derives its summary from items.
func NewPrerequisiteReport(items []CheckItem) *PrerequisiteReport {
	r := &PrerequisiteReport{
		Items: items,
		Summary: ReportSummary{
			Present: []string{},
			Missing: []CheckItem{},
			Errors:  []CheckItem{},
		},
	}
	if r.Items == nil {
		r.Items = []CheckItem{}
	}
	for _, it := range r.Items {
		switch it.Status {
		case CheckPresent:
			r.Summary.Present = append(r.Summary.Present, it.Item)
		case CheckMissing:
			r.Summary.Missing = append(r.Summary.Missing, it)
		case CheckError:
			r.Summary.Errors = append(r.Summary.Errors, it)
		}
	}
	return r
}

// IsMissing reports whether the named item was classified missing.
func (r *PrerequisiteReport) IsMissing(item string) bool {
	for _, it := range r.Summary.Missing {
		if it.Item == item {
			return true
		}
	}
	return false
}

// Status returns the status of the named item and whether it was checked at all.
func (r *PrerequisiteReport) Status(item string) (CheckStatus, bool) {
	for _, it := range r.Items {
		if it.Item == item {
			return it.Status, true
		}
	}
	return "", false
}

// ── Auto-Fix ─────────────────────────────────────────────────

type FixStatus string

const (
	FixCreated FixStatus = "created"
	FixSkipped FixStatus = "skipped"
	FixError   FixStatus = "error"
)

// AutoFixAction records one remediation attempt.
type AutoFixAction struct {
	Item    string                 `json:"item"`
	Action  string                 `json:"action"`
	Status  FixStatus              `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Missing []string               `json:"missing,omitempty"`
}

// ── Pipeline Artifact (ADF document) ─────────────────────────

type PipelineArtifact struct {
	Name       string              `json:"name"`
	Properties *PipelineProperties `json:"properties,omitempty"`
}

type PipelineProperties struct {
	Activities  []Activity          `json:"activities"`
	Annotations []map[string]string `json:"annotations,omitempty"`
}

type Activity struct {
	Name           string                 `json:"name"`
	Type           string                 `json:"type"`
	Policy         *ActivityPolicy        `json:"policy,omitempty"`
	Inputs         []DatasetRef           `json:"inputs,omitempty"`
	Outputs        []DatasetRef           `json:"outputs,omitempty"`
	TypeProperties CopyActivityProperties `json:"typeProperties"`
}

type ActivityPolicy struct {
	Timeout                string `json:"timeout"`
	Retry                  int    `json:"retry"`
	RetryIntervalInSeconds int    `json:"retryIntervalInSeconds"`
	SecureOutput           bool   `json:"secureOutput"`
	SecureInput            bool   `json:"secureInput"`
}

type DatasetRef struct {
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type"`
}

type CopyActivityProperties struct {
	Source TypedBlock `json:"source"`
	Sink   TypedBlock `json:"sink"`
}

type TypedBlock struct {
	Type string `json:"type"`
}

// ── Schedule Trigger ─────────────────────────────────────────

// ScheduleTrigger is the recurrence parsed from a canonical schedule string.
type ScheduleTrigger struct {
	Kind   string `json:"kind"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

const TriggerKindDaily = "daily"

// ── Deployment ───────────────────────────────────────────────

type DeployStatus string

const (
	DeployDeployed DeployStatus = "deployed"
	DeployBlocked  DeployStatus = "blocked"
	DeployError    DeployStatus = "error"
)

// DeployIssue names a dependent object that cannot be provisioned and the
// inputs it still needs.
type DeployIssue struct {
	Type              string   `json:"type"`
	Needed            []string `json:"needed,omitempty"`
	Message           string   `json:"message"`
	LinkedServiceName string   `json:"linked_service_name,omitempty"`
}

type DatasetOutcome struct {
	Name   string `json:"name"`
	Status string `json:"status"` // created, exists, skipped
	Reason string `json:"reason,omitempty"`
}

type TriggerResult struct {
	Name     string           `json:"name,omitempty"`
	Status   string           `json:"status"` // none, started, error, unsupported
	Schedule string           `json:"schedule"`
	Spec     *ScheduleTrigger `json:"spec,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type DeployResult struct {
	Status       DeployStatus     `json:"status"`
	PipelineName string           `json:"pipeline_name,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Issues       []DeployIssue    `json:"issues,omitempty"`
	FailedObject string           `json:"failed_object,omitempty"`
	Datasets     []DatasetOutcome `json:"datasets,omitempty"`
	Trigger      *TriggerResult   `json:"trigger,omitempty"`
}

// ── Operation Results ────────────────────────────────────────

type OperationStatus string

const (
	StatusBlocked       OperationStatus = "blocked"
	StatusValidated     OperationStatus = "validated"
	StatusDeployed      OperationStatus = "deployed"
	StatusMissingInputs OperationStatus = "missing_inputs"
	StatusOK            OperationStatus = "ok"
)

type GenerateResult struct {
	ID             string              `json:"id"`
	Status         OperationStatus     `json:"status"`
	Stage          string              `json:"stage,omitempty"`
	Initial        *PrerequisiteReport `json:"initial,omitempty"`
	Final          *PrerequisiteReport `json:"final,omitempty"`
	MissingInputs  map[string]string   `json:"missing_inputs,omitempty"`
	Pipeline       *PipelineArtifact   `json:"pipeline,omitempty"`
	SavedTo        string              `json:"saved_to,omitempty"`
	AutoFixActions []AutoFixAction     `json:"autofix_actions,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	DeployResult   *DeployResult       `json:"deploy_result,omitempty"`
	Message        string              `json:"message,omitempty"`
}

type PrecheckResult struct {
	ID             string              `json:"id"`
	Status         OperationStatus     `json:"status"`
	Initial        *PrerequisiteReport `json:"initial"`
	Final          *PrerequisiteReport `json:"final,omitempty"`
	MissingInputs  map[string]string   `json:"missing_inputs,omitempty"`
	AutoFixActions []AutoFixAction     `json:"autofix_actions"`
	Message        string              `json:"message,omitempty"`
}

// ── Profiles ─────────────────────────────────────────────────

// AccountProfile holds persisted, non-secret account identifiers.
type AccountProfile struct {
	Name               string `json:"-"`
	SubscriptionID     string `json:"subscription_id"`
	ResourceGroup      string `json:"resource_group"`
	FactoryName        string `json:"factory_name"`
	StorageAccountName string `json:"storage_account_name"`
}

// UseCaseProfile holds persisted, non-secret data locations.
type UseCaseProfile struct {
	Name            string `json:"-"`
	BlobContainer   string `json:"blob_container"`
	BlobName        string `json:"blob_name"`
	SnowflakeSchema string `json:"snowflake_schema"`
	SnowflakeTable  string `json:"snowflake_table"`
}

type ActiveProfiles struct {
	Account string `json:"account"`
	UseCase string `json:"usecase"`
}

// Profiles bundles the currently active profile pair.
type Profiles struct {
	Account AccountProfile
	UseCase UseCaseProfile
}

// ── LLM ──────────────────────────────────────────────────────

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Completion is one text-generation response.
type Completion struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`
}

// ── Audit ────────────────────────────────────────────────────

// AuditEvent is a classified failure recorded by the audit log.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Stage     string                 `json:"stage"`
	Type      string                 `json:"type"`
	Reason    string                 `json:"reason"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
