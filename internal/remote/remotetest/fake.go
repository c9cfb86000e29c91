// Package remotetest provides an in-memory remote.Factory for tests and for
// the CLI's dry-run mode.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/christy136/AutoFlowAI/internal/remote"
)

// Call records one mutating call against the fake.
type Call struct {
	Op   string
	Name string
	Doc  json.RawMessage
}

// Fake is a mutable in-memory view of one subscription. Zero values mean
// "nothing exists"; tests populate the maps they need.
type Fake struct {
	mu sync.Mutex

	OpenErr       error
	Subscriptions []string
	ListSubsErr   error
	Providers     map[string]string
	ResourceGroup string
	Factory       string
	Location      string

	StorageAccounts map[string]bool
	// Containers maps container name to its blob names.
	Containers   map[string][]string
	DataPlaneErr error

	LinkedServices map[string]json.RawMessage
	Datasets       map[string]json.RawMessage
	Pipelines      map[string]json.RawMessage
	Triggers       map[string]json.RawMessage
	Started        map[string]bool

	ListLinkedServicesErr error
	ListDatasetsErr       error
	// FailCreate makes a create call for the named object fail.
	FailCreate map[string]error

	Calls []Call
	Opens int
}

// New returns a fake with the given subscription, resource group and factory
// present and both providers registered.
func New(subscriptionID, resourceGroup, factory string) *Fake {
	return &Fake{
		Subscriptions: []string{subscriptionID},
		Providers: map[string]string{
			"Microsoft.DataFactory": remote.ProviderRegistered,
			"Microsoft.Storage":     remote.ProviderRegistered,
		},
		ResourceGroup:   resourceGroup,
		Factory:         factory,
		Location:        "westeurope",
		StorageAccounts: map[string]bool{},
		Containers:      map[string][]string{},
		LinkedServices:  map[string]json.RawMessage{},
		Datasets:        map[string]json.RawMessage{},
		Pipelines:       map[string]json.RawMessage{},
		Triggers:        map[string]json.RawMessage{},
		Started:         map[string]bool{},
		FailCreate:      map[string]error{},
	}
}

// Open implements remote.Factory.
func (f *Fake) Open(_ context.Context, _ string) (remote.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opens++
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return &client{f: f}, nil
}

// CallsFor returns the recorded mutating calls for op.
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

type client struct {
	f *Fake
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, remote.ErrNotFound)
}

func (c *client) CredentialType() string { return "FakeCredential" }

func (c *client) ListSubscriptions(_ context.Context) ([]string, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if c.f.ListSubsErr != nil {
		return nil, c.f.ListSubsErr
	}
	return append([]string(nil), c.f.Subscriptions...), nil
}

func (c *client) ProviderState(_ context.Context, namespace string) (string, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	state, ok := c.f.Providers[namespace]
	if !ok {
		return "NotRegistered", nil
	}
	return state, nil
}

func (c *client) GetResourceGroup(_ context.Context, rg string) (*remote.ResourceInfo, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if rg != c.f.ResourceGroup {
		return nil, notFound("resource group " + rg)
	}
	return &remote.ResourceInfo{Name: rg, Location: c.f.Location}, nil
}

func (c *client) GetFactory(_ context.Context, rg, factory string) (*remote.ResourceInfo, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if rg != c.f.ResourceGroup || factory != c.f.Factory {
		return nil, notFound("data factory " + factory)
	}
	return &remote.ResourceInfo{Name: factory, Location: c.f.Location}, nil
}

func (c *client) GetStorageAccount(_ context.Context, _ string, account string) (*remote.ResourceInfo, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if !c.f.StorageAccounts[account] {
		return nil, notFound("storage account " + account)
	}
	return &remote.ResourceInfo{Name: account, Location: c.f.Location}, nil
}

func (c *client) ContainerExists(_ context.Context, _, _ string, container string) (bool, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if c.f.DataPlaneErr != nil {
		return false, c.f.DataPlaneErr
	}
	_, ok := c.f.Containers[container]
	return ok, nil
}

func (c *client) BlobExists(_ context.Context, _, _ string, container, blob string) (bool, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if c.f.DataPlaneErr != nil {
		return false, c.f.DataPlaneErr
	}
	for _, b := range c.f.Containers[container] {
		if b == blob {
			return true, nil
		}
	}
	return false, nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *client) ListLinkedServices(_ context.Context, _, _ string) ([]string, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if c.f.ListLinkedServicesErr != nil {
		return nil, c.f.ListLinkedServicesErr
	}
	return sortedKeys(c.f.LinkedServices), nil
}

func (c *client) ListDatasets(_ context.Context, _, _ string) ([]string, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if c.f.ListDatasetsErr != nil {
		return nil, c.f.ListDatasetsErr
	}
	return sortedKeys(c.f.Datasets), nil
}

func (c *client) LinkedServiceExists(_ context.Context, _, _ string, name string) (bool, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	_, ok := c.f.LinkedServices[name]
	return ok, nil
}

func (c *client) DatasetExists(_ context.Context, _, _ string, name string) (bool, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	_, ok := c.f.Datasets[name]
	return ok, nil
}

func (c *client) put(op string, store map[string]json.RawMessage, name string, doc json.RawMessage) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.Calls = append(c.f.Calls, Call{Op: op, Name: name, Doc: doc})
	if err := c.f.FailCreate[name]; err != nil {
		return err
	}
	store[name] = doc
	return nil
}

func (c *client) CreateOrUpdateLinkedService(_ context.Context, _, _ string, name string, doc json.RawMessage) error {
	return c.put("linked_service", c.f.LinkedServices, name, doc)
}

func (c *client) CreateOrUpdateDataset(_ context.Context, _, _ string, name string, doc json.RawMessage) error {
	return c.put("dataset", c.f.Datasets, name, doc)
}

func (c *client) CreateOrUpdatePipeline(_ context.Context, _, _ string, name string, doc json.RawMessage) error {
	return c.put("pipeline", c.f.Pipelines, name, doc)
}

func (c *client) CreateOrUpdateTrigger(_ context.Context, _, _ string, name string, doc json.RawMessage) error {
	return c.put("trigger", c.f.Triggers, name, doc)
}

func (c *client) StartTrigger(_ context.Context, _, _ string, name string) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.Calls = append(c.f.Calls, Call{Op: "start_trigger", Name: name})
	if err := c.f.FailCreate["start:"+name]; err != nil {
		return err
	}
	if _, ok := c.f.Triggers[name]; !ok {
		return notFound("trigger " + name)
	}
	c.f.Started[name] = true
	return nil
}
