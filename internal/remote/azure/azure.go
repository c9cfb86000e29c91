// Package azure implements remote.Factory on the Azure SDK for Go.
//
// Management-plane calls go through the ARM clients (subscriptions,
// resources, storage, datafactory); blob checks use the data plane with the
// storage account shared key.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/datafactory/armdatafactory/v9"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/remote"
)

const managementScope = "https://management.azure.com/.default"

// Factory opens ARM sessions with a DefaultAzureCredential, optionally
// chained with an interactive browser login.
type Factory struct {
	cfg config.AzureConfig
}

// NewFactory creates a factory.
func NewFactory(cfg config.AzureConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Open acquires a credential, verifies it can mint a management token and
// builds the clients for subscriptionID.
func (f *Factory) Open(ctx context.Context, subscriptionID string) (remote.Client, error) {
	cred, credType, err := f.credential()
	if err != nil {
		return nil, fmt.Errorf("acquire credential: %w", err)
	}
	if _, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{managementScope}}); err != nil {
		return nil, fmt.Errorf("auth failed: %w", err)
	}

	c := &Client{cred: cred, credType: credType, subscriptionID: subscriptionID}
	if c.subs, err = armsubscriptions.NewClient(cred, nil); err != nil {
		return nil, fmt.Errorf("subscriptions client: %w", err)
	}
	if c.groups, err = armresources.NewResourceGroupsClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("resource groups client: %w", err)
	}
	if c.providers, err = armresources.NewProvidersClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("providers client: %w", err)
	}
	if c.accounts, err = armstorage.NewAccountsClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("storage accounts client: %w", err)
	}
	adf, err := armdatafactory.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("datafactory client: %w", err)
	}
	c.factories = adf.NewFactoriesClient()
	c.linkedServices = adf.NewLinkedServicesClient()
	c.datasets = adf.NewDatasetsClient()
	c.pipelines = adf.NewPipelinesClient()
	c.triggers = adf.NewTriggersClient()

	log.Debug().Str("subscription", subscriptionID).Str("credential", credType).Msg("Azure session opened")
	return c, nil
}

func (f *Factory) credential() (azcore.TokenCredential, string, error) {
	def, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{TenantID: f.cfg.TenantID})
	if err != nil && !f.cfg.InteractiveLogin {
		return nil, "", err
	}
	if !f.cfg.InteractiveLogin {
		return def, "DefaultAzureCredential", nil
	}

	browser, berr := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{TenantID: f.cfg.TenantID})
	if berr != nil {
		if err != nil {
			return nil, "", errors.Join(err, berr)
		}
		return def, "DefaultAzureCredential", nil
	}
	sources := []azcore.TokenCredential{browser}
	if err == nil {
		sources = []azcore.TokenCredential{def, browser}
	}
	chain, err := azidentity.NewChainedTokenCredential(sources, nil)
	if err != nil {
		return nil, "", err
	}
	return chain, "ChainedTokenCredential", nil
}

// Client is an open Azure session.
type Client struct {
	cred           azcore.TokenCredential
	credType       string
	subscriptionID string

	subs           *armsubscriptions.Client
	groups         *armresources.ResourceGroupsClient
	providers      *armresources.ProvidersClient
	accounts       *armstorage.AccountsClient
	factories      *armdatafactory.FactoriesClient
	linkedServices *armdatafactory.LinkedServicesClient
	datasets       *armdatafactory.DatasetsClient
	pipelines      *armdatafactory.PipelinesClient
	triggers       *armdatafactory.TriggersClient
}

func (c *Client) CredentialType() string { return c.credType }

// mapErr converts ARM 404 responses into remote.ErrNotFound.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, remote.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ── Management plane ─────────────────────────────────────────

func (c *Client) ListSubscriptions(ctx context.Context) ([]string, error) {
	var ids []string
	pager := c.subs.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapErr(err, "list subscriptions")
		}
		for _, s := range page.Value {
			if s != nil {
				ids = append(ids, deref(s.SubscriptionID))
			}
		}
	}
	return ids, nil
}

func (c *Client) ProviderState(ctx context.Context, namespace string) (string, error) {
	resp, err := c.providers.Get(ctx, namespace, nil)
	if err != nil {
		return "", mapErr(err, "provider "+namespace)
	}
	return deref(resp.RegistrationState), nil
}

func (c *Client) GetResourceGroup(ctx context.Context, resourceGroup string) (*remote.ResourceInfo, error) {
	resp, err := c.groups.Get(ctx, resourceGroup, nil)
	if err != nil {
		return nil, mapErr(err, "resource group "+resourceGroup)
	}
	return &remote.ResourceInfo{Name: deref(resp.Name), Location: deref(resp.Location)}, nil
}

func (c *Client) GetFactory(ctx context.Context, resourceGroup, factory string) (*remote.ResourceInfo, error) {
	resp, err := c.factories.Get(ctx, resourceGroup, factory, nil)
	if err != nil {
		return nil, mapErr(err, "data factory "+factory)
	}
	return &remote.ResourceInfo{Name: deref(resp.Name), Location: deref(resp.Location)}, nil
}

func (c *Client) GetStorageAccount(ctx context.Context, resourceGroup, account string) (*remote.ResourceInfo, error) {
	resp, err := c.accounts.GetProperties(ctx, resourceGroup, account, nil)
	if err != nil {
		return nil, mapErr(err, "storage account "+account)
	}
	return &remote.ResourceInfo{Name: deref(resp.Name), Location: deref(resp.Location)}, nil
}

// ── Blob data plane ──────────────────────────────────────────

func blobClient(account, key string) (*azblob.Client, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("blob shared key: %w", err)
	}
	url := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	return azblob.NewClientWithSharedKeyCredential(url, cred, nil)
}

func (c *Client) ContainerExists(ctx context.Context, account, key, container string) (bool, error) {
	client, err := blobClient(account, key)
	if err != nil {
		return false, err
	}
	pager := client.NewListContainersPager(&azblob.ListContainersOptions{Prefix: &container})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list containers: %w", err)
		}
		for _, item := range page.ContainerItems {
			if item != nil && deref(item.Name) == container {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *Client) BlobExists(ctx context.Context, account, key, container, blob string) (bool, error) {
	client, err := blobClient(account, key)
	if err != nil {
		return false, err
	}
	pager := client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &blob})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list blobs: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && deref(item.Name) == blob {
				return true, nil
			}
		}
	}
	return false, nil
}

// ── Data Factory objects ─────────────────────────────────────

func (c *Client) ListLinkedServices(ctx context.Context, resourceGroup, factory string) ([]string, error) {
	var names []string
	pager := c.linkedServices.NewListByFactoryPager(resourceGroup, factory, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapErr(err, "list linked services")
		}
		for _, ls := range page.Value {
			if ls != nil {
				names = append(names, deref(ls.Name))
			}
		}
	}
	return names, nil
}

func (c *Client) ListDatasets(ctx context.Context, resourceGroup, factory string) ([]string, error) {
	var names []string
	pager := c.datasets.NewListByFactoryPager(resourceGroup, factory, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapErr(err, "list datasets")
		}
		for _, ds := range page.Value {
			if ds != nil {
				names = append(names, deref(ds.Name))
			}
		}
	}
	return names, nil
}

func (c *Client) LinkedServiceExists(ctx context.Context, resourceGroup, factory, name string) (bool, error) {
	_, err := c.linkedServices.Get(ctx, resourceGroup, factory, name, nil)
	return existence(mapErr(err, "linked service "+name))
}

func (c *Client) DatasetExists(ctx context.Context, resourceGroup, factory, name string) (bool, error) {
	_, err := c.datasets.Get(ctx, resourceGroup, factory, name, nil)
	return existence(mapErr(err, "dataset "+name))
}

func existence(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case remote.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) CreateOrUpdateLinkedService(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error {
	var res armdatafactory.LinkedServiceResource
	if err := json.Unmarshal(doc, &res); err != nil {
		return fmt.Errorf("decode linked service %s: %w", name, err)
	}
	_, err := c.linkedServices.CreateOrUpdate(ctx, resourceGroup, factory, name, res, nil)
	return mapErr(err, "create linked service "+name)
}

func (c *Client) CreateOrUpdateDataset(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error {
	var res armdatafactory.DatasetResource
	if err := json.Unmarshal(doc, &res); err != nil {
		return fmt.Errorf("decode dataset %s: %w", name, err)
	}
	_, err := c.datasets.CreateOrUpdate(ctx, resourceGroup, factory, name, res, nil)
	return mapErr(err, "create dataset "+name)
}

func (c *Client) CreateOrUpdatePipeline(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error {
	var res armdatafactory.PipelineResource
	if err := json.Unmarshal(doc, &res); err != nil {
		return fmt.Errorf("decode pipeline %s: %w", name, err)
	}
	_, err := c.pipelines.CreateOrUpdate(ctx, resourceGroup, factory, name, res, nil)
	return mapErr(err, "create pipeline "+name)
}

func (c *Client) CreateOrUpdateTrigger(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error {
	var res armdatafactory.TriggerResource
	if err := json.Unmarshal(doc, &res); err != nil {
		return fmt.Errorf("decode trigger %s: %w", name, err)
	}
	_, err := c.triggers.CreateOrUpdate(ctx, resourceGroup, factory, name, res, nil)
	return mapErr(err, "create trigger "+name)
}

func (c *Client) StartTrigger(ctx context.Context, resourceGroup, factory, name string) error {
	poller, err := c.triggers.BeginStart(ctx, resourceGroup, factory, name, nil)
	if err != nil {
		return mapErr(err, "start trigger "+name)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return mapErr(err, "start trigger "+name)
	}
	return nil
}
