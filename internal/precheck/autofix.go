package precheck

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/christy136/AutoFlowAI/internal/adf"
	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

const actionCreateOrUpdate = "create_or_update"

// requirement is one input a fix needs.
type requirement struct {
	name  string
	value string
}

func absent(reqs ...requirement) []string {
	var out []string
	for _, r := range reqs {
		if r.value == "" {
			out = append(out, r.name)
		}
	}
	return out
}

func skipped(item string, miss []string) models.AutoFixAction {
	return models.AutoFixAction{
		Item:    item,
		Action:  "skipped",
		Status:  models.FixSkipped,
		Error:   "Missing required inputs: " + strings.Join(miss, ", "),
		Missing: miss,
	}
}

// fix describes how to remediate one missing item.
type fix struct {
	item   string
	name   string
	inputs []requirement
	create func(ctx context.Context, c remote.Client, rctx *models.ResolvedContext) error
}

func fixes(rctx *models.ResolvedContext) []fix {
	return []fix{
		{
			item: ItemBlobLinkedService,
			name: rctx.BlobLinkedService,
			inputs: []requirement{
				{"storage_account_name", rctx.StorageAccountName},
				{"storage_account_key", rctx.StorageAccountKey},
			},
			create: func(ctx context.Context, c remote.Client, r *models.ResolvedContext) error {
				return c.CreateOrUpdateLinkedService(ctx, r.ResourceGroup, r.FactoryName, r.BlobLinkedService,
					adf.BlobLinkedService(r.StorageAccountName, r.StorageAccountKey))
			},
		},
		{
			item:   ItemSnowflakeLinked,
			name:   rctx.SnowflakeLinkedService,
			inputs: []requirement{{"snowflake_connection_string", rctx.SnowflakeConnectionString}},
			create: func(ctx context.Context, c remote.Client, r *models.ResolvedContext) error {
				return c.CreateOrUpdateLinkedService(ctx, r.ResourceGroup, r.FactoryName, r.SnowflakeLinkedService,
					adf.SnowflakeLinkedService(r.SnowflakeConnectionString))
			},
		},
		{
			item: ItemSourceDataset,
			name: rctx.SourceDataset,
			inputs: []requirement{
				{"blob_ls_name", rctx.BlobLinkedService},
				{"container", rctx.Container},
				{"blob_name", rctx.BlobName},
			},
			create: func(ctx context.Context, c remote.Client, r *models.ResolvedContext) error {
				return c.CreateOrUpdateDataset(ctx, r.ResourceGroup, r.FactoryName, r.SourceDataset,
					adf.BlobCSVDataset(r.BlobLinkedService, r.Container, r.BlobName))
			},
		},
		{
			item: ItemSinkDataset,
			name: rctx.SinkDataset,
			inputs: []requirement{
				{"snowflake_ls_name", rctx.SnowflakeLinkedService},
				{"snowflake_schema", rctx.SnowflakeSchema},
				{"snowflake_table", rctx.SnowflakeTable},
			},
			create: func(ctx context.Context, c remote.Client, r *models.ResolvedContext) error {
				return c.CreateOrUpdateDataset(ctx, r.ResourceGroup, r.FactoryName, r.SinkDataset,
					adf.SnowflakeTableDataset(r.SnowflakeLinkedService, r.SnowflakeSchema, r.SnowflakeTable))
			},
		},
	}
}

// AutoFix creates the linked services and datasets the report marked
// missing, provided every input each one needs is present. Absent inputs
// yield a skipped action naming them. Attempts are independent.
func (c *Checker) AutoFix(ctx context.Context, rctx *models.ResolvedContext, report *models.PrerequisiteReport) (bool, []models.AutoFixAction) {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "precheck.autofix")
	defer span.End()

	if miss := rctx.MissingBootstrap(); len(miss) > 0 {
		return false, []models.AutoFixAction{{
			Item:    "bootstrap",
			Action:  "verify_context",
			Status:  models.FixSkipped,
			Error:   "Missing: " + strings.Join(miss, ", "),
			Missing: miss,
		}}
	}

	actions := []models.AutoFixAction{}
	fixedAny := false
	var client remote.Client
	for _, f := range fixes(rctx) {
		if report == nil || !report.IsMissing(f.item) {
			continue
		}
		if miss := absent(f.inputs...); len(miss) > 0 {
			actions = append(actions, skipped(f.item, miss))
			continue
		}

		// Credentials are only needed once something is creatable.
		if client == nil {
			var err error
			if client, err = c.remote.Open(ctx, rctx.SubscriptionID); err != nil {
				span.RecordError(err)
				return false, []models.AutoFixAction{{
					Item:   ItemCredentials,
					Action: "init_clients",
					Status: models.FixError,
					Error:  err.Error(),
				}}
			}
		}

		if err := f.create(ctx, client, rctx); err != nil {
			log.Warn().Err(err).Str("item", f.item).Str("name", f.name).Msg("Auto-fix failed")
			actions = append(actions, models.AutoFixAction{
				Item: f.item, Action: actionCreateOrUpdate, Status: models.FixError, Error: err.Error(),
			})
			continue
		}
		log.Info().Str("item", f.item).Str("name", f.name).Msg("Auto-fix created object")
		actions = append(actions, models.AutoFixAction{
			Item: f.item, Action: actionCreateOrUpdate, Status: models.FixCreated,
			Details: map[string]interface{}{"name": f.name},
		})
		fixedAny = true
	}
	return fixedAny, actions
}
