// Package resolver builds the ResolvedContext an operation runs against.
//
// Every field is resolved by the same rule: the first non-empty value among
// the request payload, the live process environment, the active persisted
// profile and the configured default wins. Secret fields skip the profile
// and default tiers entirely.
package resolver

import (
	"os"
	"strings"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Lookup reads one environment variable. os.Getenv satisfies it.
type Lookup func(key string) string

// OSEnv reads the live process environment.
var OSEnv Lookup = os.Getenv

type field struct {
	key     string
	env     string
	secret  bool
	profile func(p models.Profiles) string
	def     func(d config.AzureConfig) string
	target  func(c *models.ResolvedContext) *string
}

var fields = []field{
	{key: "subscription_id", env: "AZURE_SUBSCRIPTION_ID",
		profile: func(p models.Profiles) string { return p.Account.SubscriptionID },
		target:  func(c *models.ResolvedContext) *string { return &c.SubscriptionID }},
	{key: "resource_group", env: "AZURE_RESOURCE_GROUP",
		profile: func(p models.Profiles) string { return p.Account.ResourceGroup },
		target:  func(c *models.ResolvedContext) *string { return &c.ResourceGroup }},
	{key: "factory_name", env: "AZURE_FACTORY_NAME",
		profile: func(p models.Profiles) string { return p.Account.FactoryName },
		target:  func(c *models.ResolvedContext) *string { return &c.FactoryName }},
	{key: "storage_account_name", env: "STORAGE_ACCOUNT_NAME",
		profile: func(p models.Profiles) string { return p.Account.StorageAccountName },
		target:  func(c *models.ResolvedContext) *string { return &c.StorageAccountName }},
	{key: "storage_account_key", env: "STORAGE_ACCOUNT_KEY", secret: true,
		target: func(c *models.ResolvedContext) *string { return &c.StorageAccountKey }},
	{key: "container", env: "BLOB_CONTAINER",
		profile: func(p models.Profiles) string { return p.UseCase.BlobContainer },
		target:  func(c *models.ResolvedContext) *string { return &c.Container }},
	{key: "blob_name", env: "BLOB_NAME",
		profile: func(p models.Profiles) string { return p.UseCase.BlobName },
		target:  func(c *models.ResolvedContext) *string { return &c.BlobName }},
	{key: "snowflake_schema", env: "SNOWFLAKE_SCHEMA",
		profile: func(p models.Profiles) string { return p.UseCase.SnowflakeSchema },
		target:  func(c *models.ResolvedContext) *string { return &c.SnowflakeSchema }},
	{key: "snowflake_table", env: "SNOWFLAKE_TABLE",
		profile: func(p models.Profiles) string { return p.UseCase.SnowflakeTable },
		target:  func(c *models.ResolvedContext) *string { return &c.SnowflakeTable }},
	{key: "snowflake_connection_string", env: "SNOWFLAKE_CONNECTION_STRING", secret: true,
		target: func(c *models.ResolvedContext) *string { return &c.SnowflakeConnectionString }},
	{key: "blob_ls_name", env: "ADF_BLOB_LINKED_SERVICE",
		def:    func(d config.AzureConfig) string { return d.BlobLinkedService },
		target: func(c *models.ResolvedContext) *string { return &c.BlobLinkedService }},
	{key: "snowflake_ls_name", env: "ADF_SNOWFLAKE_LINKED_SERVICE",
		def:    func(d config.AzureConfig) string { return d.SnowflakeLinkedService },
		target: func(c *models.ResolvedContext) *string { return &c.SnowflakeLinkedService }},
	{key: "source_dataset_name", env: "ADF_SOURCE_DATASET",
		def:    func(d config.AzureConfig) string { return d.SourceDataset },
		target: func(c *models.ResolvedContext) *string { return &c.SourceDataset }},
	{key: "sink_dataset_name", env: "ADF_SINK_DATASET",
		def:    func(d config.AzureConfig) string { return d.SinkDataset },
		target: func(c *models.ResolvedContext) *string { return &c.SinkDataset }},
	// Prompt hints come from the request only.
	{key: "source_path",
		target: func(c *models.ResolvedContext) *string { return &c.SourcePath }},
	{key: "schedule",
		target: func(c *models.ResolvedContext) *string { return &c.Schedule }},
}

// Keys lists every request key the resolver understands.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.key)
	}
	return out
}

// Resolver merges request, environment, profile and default values.
type Resolver struct {
	defaults config.AzureConfig
}

// New creates a resolver with the given fallback names.
func New(defaults config.AzureConfig) *Resolver {
	return &Resolver{defaults: defaults}
}

// Resolve builds a fresh context. It never fails; unresolved fields stay empty.
func (r *Resolver) Resolve(request map[string]string, env Lookup, profiles models.Profiles) *models.ResolvedContext {
	if env == nil {
		env = OSEnv
	}
	rctx := &models.ResolvedContext{}
	for _, f := range fields {
		*f.target(rctx) = r.resolveField(f, request, env, profiles)
	}
	return rctx
}

func (r *Resolver) resolveField(f field, request map[string]string, env Lookup, profiles models.Profiles) string {
	if v := strings.TrimSpace(request[f.key]); v != "" {
		return v
	}
	if f.env != "" {
		if v := strings.TrimSpace(env(f.env)); v != "" {
			return v
		}
	}
	if f.secret {
		return ""
	}
	if f.profile != nil {
		if v := strings.TrimSpace(f.profile(profiles)); v != "" {
			return v
		}
	}
	if f.def != nil {
		return f.def(r.defaults)
	}
	return ""
}
