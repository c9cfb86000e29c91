// Package precheck reconciles a ResolvedContext against remote state and
// remediates the gaps it can fill without guessing.
package precheck

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Check item names.
const (
	ItemSubscriptionID     = "subscription_id"
	ItemFactoryName        = "factory_name"
	ItemCredentials        = "credentials"
	ItemSubscription       = "subscription"
	ItemProviders          = "providers"
	ItemResourceGroup      = "resource_group"
	ItemDataFactory        = "data_factory"
	ItemStorageAccount     = "storage_account"
	ItemStorageAccountName = "storage_account_name"
	ItemStorageAccountKey  = "storage_account_key"
	ItemContainer          = "container"
	ItemBlobContainer      = "blob_container"
	ItemBlobName           = "blob_name"
	ItemBlobExists         = "blob_exists"
	ItemBlobDataPlane      = "blob_data_plane"
	ItemLinkedServices     = "linked_services"
	ItemBlobLinkedService  = "blob_linked_service"
	ItemSnowflakeLinked    = "snowflake_linked_service"
	ItemDatasets           = "datasets"
	ItemSourceDataset      = "source_dataset"
	ItemSinkDataset        = "sink_dataset"
)

var requiredProviders = []string{"Microsoft.DataFactory", "Microsoft.Storage"}

func present(item string, details map[string]interface{}) models.CheckItem {
	return models.CheckItem{Item: item, Status: models.CheckPresent, Details: details}
}

func missing(item, howToFix string, details map[string]interface{}) models.CheckItem {
	return models.CheckItem{Item: item, Status: models.CheckMissing, HowToFix: howToFix, Details: details}
}

func failed(item, howToFix string, err error) models.CheckItem {
	return models.CheckItem{Item: item, Status: models.CheckError, HowToFix: howToFix, Error: err.Error()}
}

// Checker runs reconciliation passes.
type Checker struct {
	remote remote.Factory
}

// New creates a checker backed by f.
func New(f remote.Factory) *Checker {
	return &Checker{remote: f}
}

// Check reconciles rctx in dependency order and stops early when a required
// ancestor is absent. It never returns an error: faults become error items.
func (c *Checker) Check(ctx context.Context, rctx *models.ResolvedContext) *models.PrerequisiteReport {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "precheck.check")
	defer span.End()

	items := c.check(ctx, rctx)
	report := models.NewPrerequisiteReport(items)

	span.SetAttributes(
		attribute.Int("precheck.present", len(report.Summary.Present)),
		attribute.Int("precheck.missing", len(report.Summary.Missing)),
		attribute.Int("precheck.errors", len(report.Summary.Errors)),
	)
	log.Debug().
		Int("present", len(report.Summary.Present)).
		Int("missing", len(report.Summary.Missing)).
		Int("errors", len(report.Summary.Errors)).
		Msg("Prerequisite check complete")
	return report
}

func (c *Checker) check(ctx context.Context, rctx *models.ResolvedContext) []models.CheckItem {
	var items []models.CheckItem

	// Bootstrap: nothing remote is checkable without these.
	if rctx.SubscriptionID == "" {
		items = append(items, missing(ItemSubscriptionID, "Set AZURE_SUBSCRIPTION_ID or include 'subscription_id' in context", nil))
	}
	if rctx.ResourceGroup == "" {
		items = append(items, missing(ItemResourceGroup, "Set AZURE_RESOURCE_GROUP or include 'resource_group' in context", nil))
	}
	if rctx.FactoryName == "" {
		items = append(items, missing(ItemFactoryName, "Set AZURE_FACTORY_NAME or include 'factory_name' in context", nil))
	}
	if len(items) > 0 {
		return items
	}

	client, err := c.remote.Open(ctx, rctx.SubscriptionID)
	if err != nil {
		return append(items, failed(ItemCredentials, "Run 'az login' or configure a service principal (AZURE_CLIENT_ID, AZURE_TENANT_ID, AZURE_CLIENT_SECRET)", fmt.Errorf("auth failed: %w", err)))
	}
	items = append(items, present(ItemCredentials, map[string]interface{}{"type": client.CredentialType()}))

	// Subscription
	subs, err := client.ListSubscriptions(ctx)
	switch {
	case err != nil:
		items = append(items, present(ItemSubscription, map[string]interface{}{
			"subscription_id": rctx.SubscriptionID,
			"note":            fmt.Sprintf("Could not enumerate (%v)", err),
		}))
	case !contains(subs, rctx.SubscriptionID):
		return append(items, missing(ItemSubscription, "az account set --subscription <id>",
			map[string]interface{}{"subscription_id": rctx.SubscriptionID}))
	default:
		items = append(items, present(ItemSubscription, map[string]interface{}{"subscription_id": rctx.SubscriptionID}))
	}

	items = append(items, checkProviders(ctx, client))

	// Resource group and factory gate everything below.
	rg, err := client.GetResourceGroup(ctx, rctx.ResourceGroup)
	if err != nil {
		hint := fmt.Sprintf("az group create -n %s -l <your-region>", rctx.ResourceGroup)
		if remote.IsNotFound(err) {
			return append(items, missing(ItemResourceGroup, hint, map[string]interface{}{"error": err.Error()}))
		}
		return append(items, failed(ItemResourceGroup, hint, err))
	}
	items = append(items, present(ItemResourceGroup, map[string]interface{}{"name": rg.Name, "location": rg.Location}))

	factory, err := client.GetFactory(ctx, rctx.ResourceGroup, rctx.FactoryName)
	if err != nil {
		hint := fmt.Sprintf("az datafactory create -g %s -n %s -l <your-region>", rctx.ResourceGroup, rctx.FactoryName)
		if remote.IsNotFound(err) {
			return append(items, missing(ItemDataFactory, hint, map[string]interface{}{"error": err.Error()}))
		}
		return append(items, failed(ItemDataFactory, hint, err))
	}
	items = append(items, present(ItemDataFactory, map[string]interface{}{"name": factory.Name, "location": factory.Location}))

	items = append(items, checkStorage(ctx, client, rctx)...)
	items = append(items, checkLinkedServices(ctx, client, rctx)...)
	items = append(items, checkDatasets(ctx, client, rctx)...)
	return items
}

func checkProviders(ctx context.Context, client remote.Client) models.CheckItem {
	states := map[string]interface{}{}
	registered := true
	for _, ns := range requiredProviders {
		state, err := client.ProviderState(ctx, ns)
		if err != nil {
			states[ns] = "unknown: " + err.Error()
			registered = false
			continue
		}
		states[ns] = state
		if state != remote.ProviderRegistered {
			registered = false
		}
	}
	if !registered {
		return missing(ItemProviders,
			"az provider register --namespace Microsoft.DataFactory && az provider register --namespace Microsoft.Storage",
			states)
	}
	return present(ItemProviders, states)
}

func checkStorage(ctx context.Context, client remote.Client, rctx *models.ResolvedContext) []models.CheckItem {
	var items []models.CheckItem
	account := rctx.StorageAccountName
	if account == "" {
		return append(items, missing(ItemStorageAccountName, "Provide 'storage_account_name' in context or env.", nil))
	}

	info, err := client.GetStorageAccount(ctx, rctx.ResourceGroup, account)
	hint := fmt.Sprintf("az storage account create -g %s -n %s -l <your-region> --sku Standard_LRS --kind StorageV2", rctx.ResourceGroup, account)
	switch {
	case err == nil:
		items = append(items, present(ItemStorageAccount, map[string]interface{}{"name": info.Name, "location": info.Location}))
	case remote.IsNotFound(err):
		items = append(items, missing(ItemStorageAccount, hint, map[string]interface{}{"error": err.Error()}))
	default:
		items = append(items, failed(ItemStorageAccount, hint, err))
	}

	if rctx.StorageAccountKey == "" {
		return append(items, missing(ItemStorageAccountKey, "Provide STORAGE_ACCOUNT_KEY or use Managed Identity for LS.", nil))
	}

	dataPlaneHint := "Verify the storage account key and network access to the blob endpoint."
	container := rctx.Container
	if container == "" {
		return append(items, missing(ItemContainer, "Provide blob container name in context or env (BLOB_CONTAINER).", nil))
	}
	ok, err := client.ContainerExists(ctx, account, rctx.StorageAccountKey, container)
	if err != nil {
		return append(items, failed(ItemBlobDataPlane, dataPlaneHint, fmt.Errorf("blob data-plane access failed: %w", err)))
	}
	if !ok {
		return append(items, missing(ItemBlobContainer,
			fmt.Sprintf("az storage container create --account-name %s --account-key <KEY> --name %s", account, container), nil))
	}
	items = append(items, present(ItemBlobContainer, map[string]interface{}{"name": container}))

	blob := rctx.BlobName
	if blob == "" {
		return append(items, missing(ItemBlobName, "Provide blob file name in context or env (BLOB_NAME).", nil))
	}
	ok, err = client.BlobExists(ctx, account, rctx.StorageAccountKey, container, blob)
	if err != nil {
		return append(items, failed(ItemBlobDataPlane, dataPlaneHint, fmt.Errorf("blob data-plane access failed: %w", err)))
	}
	if !ok {
		return append(items, missing(ItemBlobExists,
			fmt.Sprintf("az storage blob upload --account-name %s --account-key <KEY> --container-name %s --name %s --file <local-file>", account, container, blob), nil))
	}
	return append(items, present(ItemBlobExists, map[string]interface{}{"name": blob}))
}

func checkLinkedServices(ctx context.Context, client remote.Client, rctx *models.ResolvedContext) []models.CheckItem {
	names, err := client.ListLinkedServices(ctx, rctx.ResourceGroup, rctx.FactoryName)
	if err != nil {
		return []models.CheckItem{failed(ItemLinkedServices, "Check Data Factory Contributor access on the factory.", fmt.Errorf("list failed: %w", err))}
	}
	return []models.CheckItem{
		byName(names, ItemBlobLinkedService, rctx.BlobLinkedService,
			fmt.Sprintf("Create Blob LS '%s' (connection string SecureString or Managed Identity).", rctx.BlobLinkedService)),
		byName(names, ItemSnowflakeLinked, rctx.SnowflakeLinkedService,
			fmt.Sprintf("Create Snowflake LS '%s' with a valid JDBC-like connection string.", rctx.SnowflakeLinkedService)),
	}
}

func checkDatasets(ctx context.Context, client remote.Client, rctx *models.ResolvedContext) []models.CheckItem {
	names, err := client.ListDatasets(ctx, rctx.ResourceGroup, rctx.FactoryName)
	if err != nil {
		return []models.CheckItem{failed(ItemDatasets, "Check Data Factory Contributor access on the factory.", fmt.Errorf("list failed: %w", err))}
	}
	return []models.CheckItem{
		byName(names, ItemSourceDataset, rctx.SourceDataset,
			fmt.Sprintf("Create dataset '%s' (Blob CSV) referencing '%s'.", rctx.SourceDataset, rctx.BlobLinkedService)),
		byName(names, ItemSinkDataset, rctx.SinkDataset,
			fmt.Sprintf("Create dataset '%s' (Snowflake table) referencing '%s'.", rctx.SinkDataset, rctx.SnowflakeLinkedService)),
	}
}

func byName(names []string, item, name, hint string) models.CheckItem {
	if name != "" && contains(names, name) {
		return present(item, map[string]interface{}{"name": name})
	}
	return missing(item, hint, map[string]interface{}{"name": name})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
