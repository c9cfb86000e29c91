// Package remote defines the resource-management adapter the reconciler,
// auto-fixer and deployer talk to.
//
// Implementations must return an error wrapping ErrNotFound when an object
// does not exist, so callers can tell absence apart from authorization or
// network faults.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound marks a remote object that does not exist.
var ErrNotFound = errors.New("remote object not found")

// IsNotFound reports whether err marks an absent remote object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Provider registration states reported by ProviderState.
const (
	ProviderRegistered = "Registered"
)

// Factory acquires credentials and opens a client scoped to a subscription.
type Factory interface {
	Open(ctx context.Context, subscriptionID string) (Client, error)
}

// Client is a connected resource-management session.
//
// Document arguments are full ADF resource bodies, {"properties": {...}}.
type Client interface {
	// CredentialType names the credential in use, for reports.
	CredentialType() string

	ListSubscriptions(ctx context.Context) ([]string, error)
	ProviderState(ctx context.Context, namespace string) (string, error)
	GetResourceGroup(ctx context.Context, resourceGroup string) (*ResourceInfo, error)
	GetFactory(ctx context.Context, resourceGroup, factory string) (*ResourceInfo, error)
	GetStorageAccount(ctx context.Context, resourceGroup, account string) (*ResourceInfo, error)

	// Blob data plane, authenticated with the account key.
	ContainerExists(ctx context.Context, account, key, container string) (bool, error)
	BlobExists(ctx context.Context, account, key, container, blob string) (bool, error)

	ListLinkedServices(ctx context.Context, resourceGroup, factory string) ([]string, error)
	ListDatasets(ctx context.Context, resourceGroup, factory string) ([]string, error)
	LinkedServiceExists(ctx context.Context, resourceGroup, factory, name string) (bool, error)
	DatasetExists(ctx context.Context, resourceGroup, factory, name string) (bool, error)

	CreateOrUpdateLinkedService(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error
	CreateOrUpdateDataset(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error
	CreateOrUpdatePipeline(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error
	CreateOrUpdateTrigger(ctx context.Context, resourceGroup, factory, name string, doc json.RawMessage) error
	StartTrigger(ctx context.Context, resourceGroup, factory, name string) error
}

// ResourceInfo is the subset of ARM resource metadata the reports show.
type ResourceInfo struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}
