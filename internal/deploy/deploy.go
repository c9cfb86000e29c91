// Package deploy pushes a generated pipeline and everything it depends on
// into a Data Factory.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/christy136/AutoFlowAI/internal/adf"
	"github.com/christy136/AutoFlowAI/internal/generator"
	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// ReasonMissingCredentials is the blocked reason when a linked service is
// absent and cannot be created from the inputs at hand.
const ReasonMissingCredentials = "missing_credentials_or_names"

// Trigger statuses reported in models.TriggerResult.
const (
	TriggerNone        = "none"
	TriggerStarted     = "started"
	TriggerError       = "error"
	TriggerUnsupported = "unsupported"
)

// Dataset outcomes.
const (
	DatasetCreated = "created"
	DatasetExists  = "exists"
	DatasetSkipped = "skipped"
)

var now = func() time.Time { return time.Now().UTC() }

// Deployer runs deployments against a remote factory.
type Deployer struct {
	remote remote.Factory
}

// New creates a deployer backed by f.
func New(f remote.Factory) *Deployer {
	return &Deployer{remote: f}
}

// Deploy ensures linked services and datasets, then creates the pipeline and
// its trigger. It never returns an error: every outcome is a DeployResult.
// Objects created before a failure are left in place.
func (d *Deployer) Deploy(ctx context.Context, artifact *models.PipelineArtifact, cfg *models.PipelineConfig, rctx *models.ResolvedContext) *models.DeployResult {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "deploy.run")
	defer span.End()

	if cfg == nil {
		cfg = &models.PipelineConfig{}
	}
	if rctx == nil {
		rctx = &models.ResolvedContext{}
	}
	if artifact == nil || artifact.Properties == nil {
		return &models.DeployResult{Status: models.DeployError, Reason: "artifact has no properties", FailedObject: "pipeline"}
	}
	span.SetAttributes(attribute.String("deploy.pipeline", artifact.Name))

	if miss := rctx.MissingBootstrap(); len(miss) > 0 {
		return &models.DeployResult{
			Status:       models.DeployBlocked,
			PipelineName: artifact.Name,
			Reason:       "missing_bootstrap",
			Issues: []models.DeployIssue{{
				Type:    "missing_bootstrap",
				Needed:  miss,
				Message: "Subscription, resource group and factory name are required to deploy.",
			}},
		}
	}

	client, err := d.remote.Open(ctx, rctx.SubscriptionID)
	if err != nil {
		span.RecordError(err)
		return failure(artifact.Name, "credentials", err)
	}
	t := target{client: client, rg: rctx.ResourceGroup, factory: rctx.FactoryName}

	// Linked services
	issues, failed, err := t.ensureLinkedServices(ctx, cfg, rctx)
	if err != nil {
		span.RecordError(err)
		return failure(artifact.Name, failed, err)
	}
	if len(issues) > 0 {
		log.Warn().Str("pipeline", artifact.Name).Int("issues", len(issues)).Msg("Deployment blocked on linked services")
		return &models.DeployResult{
			Status:       models.DeployBlocked,
			PipelineName: artifact.Name,
			Reason:       ReasonMissingCredentials,
			Issues:       issues,
		}
	}

	// Datasets
	datasets, failed, err := t.ensureDatasets(ctx, artifact, cfg, rctx)
	if err != nil {
		span.RecordError(err)
		res := failure(artifact.Name, failed, err)
		res.Datasets = datasets
		return res
	}

	// Pipeline
	if err := client.CreateOrUpdatePipeline(ctx, t.rg, t.factory, artifact.Name, adf.Pipeline(artifact)); err != nil {
		span.RecordError(err)
		res := failure(artifact.Name, "pipeline:"+artifact.Name, err)
		res.Datasets = datasets
		return res
	}
	log.Info().Str("pipeline", artifact.Name).Str("factory", t.factory).Msg("Pipeline deployed")

	schedule := cfg.Schedule
	if schedule == "" {
		schedule, _ = generator.Schedule(artifact)
	}
	return &models.DeployResult{
		Status:       models.DeployDeployed,
		PipelineName: artifact.Name,
		Datasets:     datasets,
		Trigger:      t.ensureTrigger(ctx, artifact.Name, schedule),
	}
}

func failure(pipeline, object string, err error) *models.DeployResult {
	log.Error().Err(err).Str("pipeline", pipeline).Str("object", object).Msg("Deployment failed")
	return &models.DeployResult{
		Status:       models.DeployError,
		PipelineName: pipeline,
		Reason:       err.Error(),
		FailedObject: object,
	}
}

type target struct {
	client  remote.Client
	rg      string
	factory string
}

// ── Linked services ──────────────────────────────────────────

func (t target) ensureLinkedServices(ctx context.Context, cfg *models.PipelineConfig, rctx *models.ResolvedContext) ([]models.DeployIssue, string, error) {
	var issues []models.DeployIssue

	blobLS := firstNonEmpty(cfg.Source.LinkedService, rctx.BlobLinkedService)
	exists, err := t.client.LinkedServiceExists(ctx, t.rg, t.factory, blobLS)
	if err != nil {
		return nil, "linked_service:" + blobLS, err
	}
	switch {
	case exists:
	case rctx.StorageAccountName == "" || rctx.StorageAccountKey == "":
		issues = append(issues, models.DeployIssue{
			Type:              "missing_blob_credentials",
			Needed:            []string{"storage_account_name", "storage_account_key"},
			Message:           "Blob Linked Service is missing and needs Storage Account credentials.",
			LinkedServiceName: blobLS,
		})
	default:
		if err := t.client.CreateOrUpdateLinkedService(ctx, t.rg, t.factory, blobLS,
			adf.BlobLinkedService(rctx.StorageAccountName, rctx.StorageAccountKey)); err != nil {
			return nil, "linked_service:" + blobLS, err
		}
		log.Info().Str("linked_service", blobLS).Msg("Linked service created")
	}

	sfLS := firstNonEmpty(cfg.Sink.LinkedService, rctx.SnowflakeLinkedService)
	exists, err = t.client.LinkedServiceExists(ctx, t.rg, t.factory, sfLS)
	if err != nil {
		return nil, "linked_service:" + sfLS, err
	}
	switch {
	case exists:
	case rctx.SnowflakeConnectionString == "":
		issues = append(issues, models.DeployIssue{
			Type:              "missing_snowflake_connection_string",
			Needed:            []string{"snowflake_connection_string"},
			Message:           "Snowflake Linked Service is missing and needs a connection string.",
			LinkedServiceName: sfLS,
		})
	default:
		if err := t.client.CreateOrUpdateLinkedService(ctx, t.rg, t.factory, sfLS,
			adf.SnowflakeLinkedService(rctx.SnowflakeConnectionString)); err != nil {
			return nil, "linked_service:" + sfLS, err
		}
		log.Info().Str("linked_service", sfLS).Msg("Linked service created")
	}
	return issues, "", nil
}

// ── Datasets ─────────────────────────────────────────────────

func (t target) ensureDatasets(ctx context.Context, a *models.PipelineArtifact, cfg *models.PipelineConfig, rctx *models.ResolvedContext) ([]models.DatasetOutcome, string, error) {
	blobLS := firstNonEmpty(cfg.Source.LinkedService, rctx.BlobLinkedService)
	sfLS := firstNonEmpty(cfg.Sink.LinkedService, rctx.SnowflakeLinkedService)
	schema, table := splitTable(rctx.SnowflakeSchema, rctx.SnowflakeTable)

	var outcomes []models.DatasetOutcome
	seen := map[string]bool{}
	for _, act := range a.Properties.Activities {
		for _, ref := range act.Inputs {
			if seen[ref.ReferenceName] {
				continue
			}
			seen[ref.ReferenceName] = true
			out, err := t.ensureDataset(ctx, ref.ReferenceName,
				[]string{rctx.Container, rctx.BlobName},
				func() json.RawMessage { return adf.BlobCSVDataset(blobLS, rctx.Container, rctx.BlobName) })
			if err != nil {
				return outcomes, "dataset:" + ref.ReferenceName, err
			}
			outcomes = append(outcomes, out)
		}
		for _, ref := range act.Outputs {
			if seen[ref.ReferenceName] {
				continue
			}
			seen[ref.ReferenceName] = true
			out, err := t.ensureDataset(ctx, ref.ReferenceName,
				[]string{schema, table},
				func() json.RawMessage { return adf.SnowflakeTableDataset(sfLS, schema, table) })
			if err != nil {
				return outcomes, "dataset:" + ref.ReferenceName, err
			}
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, "", nil
}

func (t target) ensureDataset(ctx context.Context, name string, location []string, build func() json.RawMessage) (models.DatasetOutcome, error) {
	for _, v := range location {
		if v != "" {
			continue
		}
		// Without a location the dataset can only be used as it already is.
		exists, err := t.client.DatasetExists(ctx, t.rg, t.factory, name)
		if err != nil {
			return models.DatasetOutcome{Name: name}, err
		}
		if exists {
			return models.DatasetOutcome{Name: name, Status: DatasetExists}, nil
		}
		log.Debug().Str("dataset", name).Msg("Dataset skipped, location unknown")
		return models.DatasetOutcome{Name: name, Status: DatasetSkipped, Reason: "location fields not provided"}, nil
	}
	if err := t.client.CreateOrUpdateDataset(ctx, t.rg, t.factory, name, build()); err != nil {
		return models.DatasetOutcome{Name: name}, err
	}
	return models.DatasetOutcome{Name: name, Status: DatasetCreated}, nil
}

// splitTable accepts "schema.table" in table when schema is not given.
func splitTable(schema, table string) (string, string) {
	if schema == "" {
		if s, t, ok := strings.Cut(table, "."); ok {
			return s, t
		}
	}
	return schema, table
}

// ── Trigger ──────────────────────────────────────────────────

func (t target) ensureTrigger(ctx context.Context, pipeline, schedule string) *models.TriggerResult {
	spec, supported := ParseSchedule(schedule)
	res := &models.TriggerResult{Schedule: schedule, Spec: spec}
	switch {
	case !supported:
		res.Status = TriggerUnsupported
		res.Error = fmt.Sprintf("schedule %q cannot be expressed as a trigger", schedule)
		return res
	case spec == nil:
		res.Status = TriggerNone
		return res
	}

	res.Name = adf.TriggerName(pipeline)
	if err := t.client.CreateOrUpdateTrigger(ctx, t.rg, t.factory, res.Name, adf.ScheduleTrigger(pipeline, *spec, now())); err != nil {
		log.Warn().Err(err).Str("trigger", res.Name).Msg("Trigger create failed")
		res.Status = TriggerError
		res.Error = err.Error()
		return res
	}
	if err := t.client.StartTrigger(ctx, t.rg, t.factory, res.Name); err != nil {
		log.Warn().Err(err).Str("trigger", res.Name).Msg("Trigger start failed")
		res.Status = TriggerError
		res.Error = err.Error()
		return res
	}
	log.Info().Str("trigger", res.Name).Int("hour", spec.Hour).Int("minute", spec.Minute).Msg("Trigger started")
	res.Status = TriggerStarted
	return res
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
