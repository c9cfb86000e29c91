package precheck_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/precheck"
	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/internal/remote/remotetest"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

func fullContext() *models.ResolvedContext {
	return &models.ResolvedContext{
		SubscriptionID:            "sub-1",
		ResourceGroup:             "rg-data",
		FactoryName:               "adf-prod",
		StorageAccountName:        "acct",
		StorageAccountKey:         "c2VjcmV0a2V5",
		Container:                 "raw",
		BlobName:                  "sales.csv",
		SnowflakeSchema:           "PUBLIC",
		SnowflakeTable:            "SALES",
		SnowflakeConnectionString: "jdbc:snowflake://acct.snowflakecomputing.com",
		BlobLinkedService:         "AzureBlobStorageLinkedService",
		SnowflakeLinkedService:    "Snowflake_LS",
		SourceDataset:             "SourceDataset",
		SinkDataset:               "SinkDataset",
	}
}

func newFake() *remotetest.Fake {
	f := remotetest.New("sub-1", "rg-data", "adf-prod")
	f.StorageAccounts["acct"] = true
	f.Containers["raw"] = []string{"sales.csv"}
	return f
}

func statuses(r *models.PrerequisiteReport) map[string]models.CheckStatus {
	out := map[string]models.CheckStatus{}
	for _, it := range r.Items {
		out[it.Item] = it.Status
	}
	return out
}

// ─── Check ───────────────────────────────────────────────────

func TestCheck_BootstrapMissingMakesNoRemoteCalls(t *testing.T) {
	f := newFake()
	rctx := fullContext()
	rctx.ResourceGroup = ""
	rctx.FactoryName = ""

	r := precheck.New(f).Check(context.Background(), rctx)

	assert.Equal(t, 0, f.Opens)
	require.Len(t, r.Items, 2)
	assert.True(t, r.IsMissing("resource_group"))
	assert.True(t, r.IsMissing("factory_name"))
	for _, it := range r.Items {
		assert.NotEmpty(t, it.HowToFix)
	}
}

func TestCheck_CredentialFailureIsError(t *testing.T) {
	f := newFake()
	f.OpenErr = errors.New("no credential")

	r := precheck.New(f).Check(context.Background(), fullContext())
	require.Len(t, r.Items, 1)
	assert.Equal(t, models.CheckError, r.Items[0].Status)
	assert.Equal(t, "credentials", r.Items[0].Item)
	assert.Len(t, r.Summary.Errors, 1)
	assert.Empty(t, r.Summary.Missing)
}

func TestCheck_AllPresentAfterObjectsExist(t *testing.T) {
	f := newFake()
	f.LinkedServices["AzureBlobStorageLinkedService"] = json.RawMessage(`{}`)
	f.LinkedServices["Snowflake_LS"] = json.RawMessage(`{}`)
	f.Datasets["SourceDataset"] = json.RawMessage(`{}`)
	f.Datasets["SinkDataset"] = json.RawMessage(`{}`)

	r := precheck.New(f).Check(context.Background(), fullContext())
	assert.Empty(t, r.Summary.Missing)
	assert.Empty(t, r.Summary.Errors)
	assert.Equal(t, []string{
		"credentials", "subscription", "providers", "resource_group", "data_factory",
		"storage_account", "blob_container", "blob_exists",
		"blob_linked_service", "snowflake_linked_service", "source_dataset", "sink_dataset",
	}, r.Summary.Present)
}

func TestCheck_Idempotent(t *testing.T) {
	f := newFake()
	c := precheck.New(f)
	first := c.Check(context.Background(), fullContext())
	second := c.Check(context.Background(), fullContext())
	assert.Equal(t, statuses(first), statuses(second))
	assert.Equal(t, len(first.Items), len(second.Items))
}

func TestCheck_SubscriptionEnumeration(t *testing.T) {
	f := newFake()
	f.ListSubsErr = errors.New("forbidden")
	r := precheck.New(f).Check(context.Background(), fullContext())
	st, _ := r.Status("subscription")
	assert.Equal(t, models.CheckPresent, st)

	f = newFake()
	f.Subscriptions = []string{"other"}
	r = precheck.New(f).Check(context.Background(), fullContext())
	assert.True(t, r.IsMissing("subscription"))
	_, checked := r.Status("resource_group")
	assert.False(t, checked, "reconciliation should stop after a missing subscription")
}

func TestCheck_ProvidersNotRegisteredIsNonFatal(t *testing.T) {
	f := newFake()
	f.Providers["Microsoft.DataFactory"] = "NotRegistered"
	r := precheck.New(f).Check(context.Background(), fullContext())
	assert.True(t, r.IsMissing("providers"))
	st, _ := r.Status("data_factory")
	assert.Equal(t, models.CheckPresent, st)
}

func TestCheck_FactoryMissingStops(t *testing.T) {
	f := newFake()
	f.Factory = "other"
	r := precheck.New(f).Check(context.Background(), fullContext())
	assert.True(t, r.IsMissing("data_factory"))
	_, checked := r.Status("blob_linked_service")
	assert.False(t, checked)
}

func TestCheck_StorageCascade(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.ResolvedContext, *remotetest.Fake)
		missing string
		absent  []string
	}{
		{"no account name", func(r *models.ResolvedContext, _ *remotetest.Fake) { r.StorageAccountName = "" },
			"storage_account_name", []string{"storage_account", "blob_container"}},
		{"no key", func(r *models.ResolvedContext, _ *remotetest.Fake) { r.StorageAccountKey = "" },
			"storage_account_key", []string{"blob_container"}},
		{"no container name", func(r *models.ResolvedContext, _ *remotetest.Fake) { r.Container = "" },
			"container", []string{"blob_name"}},
		{"container absent", func(_ *models.ResolvedContext, f *remotetest.Fake) { delete(f.Containers, "raw") },
			"blob_container", []string{"blob_exists"}},
		{"no blob name", func(r *models.ResolvedContext, _ *remotetest.Fake) { r.BlobName = "" },
			"blob_name", nil},
		{"blob absent", func(_ *models.ResolvedContext, f *remotetest.Fake) { f.Containers["raw"] = nil },
			"blob_exists", nil},
		{"account absent", func(_ *models.ResolvedContext, f *remotetest.Fake) { delete(f.StorageAccounts, "acct") },
			"storage_account", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			rctx := fullContext()
			tt.mutate(rctx, f)
			r := precheck.New(f).Check(context.Background(), rctx)
			assert.True(t, r.IsMissing(tt.missing), "expected %s missing", tt.missing)
			for _, a := range tt.absent {
				_, checked := r.Status(a)
				assert.False(t, checked, "%s should not be checked", a)
			}
			// Linked services and datasets are still reconciled.
			_, checked := r.Status("sink_dataset")
			assert.True(t, checked)
		})
	}
}

func TestCheck_DataPlaneFailureIsError(t *testing.T) {
	f := newFake()
	f.DataPlaneErr = errors.New("403 AuthenticationFailed")
	r := precheck.New(f).Check(context.Background(), fullContext())
	st, _ := r.Status("blob_data_plane")
	assert.Equal(t, models.CheckError, st)
}

func TestCheck_ListFailuresAreIndependent(t *testing.T) {
	f := newFake()
	f.ListLinkedServicesErr = errors.New("throttled")
	r := precheck.New(f).Check(context.Background(), fullContext())

	st, _ := r.Status("linked_services")
	assert.Equal(t, models.CheckError, st)
	assert.True(t, r.IsMissing("source_dataset"))
	assert.True(t, r.IsMissing("sink_dataset"))
}

// ─── AutoFix ─────────────────────────────────────────────────

func TestAutoFix_CreatesEverythingMissing(t *testing.T) {
	f := newFake()
	c := precheck.New(f)
	rctx := fullContext()

	initial := c.Check(context.Background(), rctx)
	fixed, actions := c.AutoFix(context.Background(), rctx, initial)
	require.True(t, fixed)
	require.Len(t, actions, 4)
	for _, a := range actions {
		assert.Equal(t, models.FixCreated, a.Status, a.Item)
	}

	final := c.Check(context.Background(), rctx)
	assert.Empty(t, final.Summary.Missing)

	var blobLS map[string]interface{}
	require.NoError(t, json.Unmarshal(f.LinkedServices["AzureBlobStorageLinkedService"], &blobLS))
	assert.Equal(t, "AzureBlobStorage", blobLS["properties"].(map[string]interface{})["type"])
}

func TestAutoFix_SkipsNamingEveryMissingField(t *testing.T) {
	f := newFake()
	c := precheck.New(f)
	rctx := fullContext()
	rctx.StorageAccountKey = ""
	rctx.SnowflakeConnectionString = ""
	rctx.Container = ""
	rctx.BlobName = ""
	rctx.SnowflakeSchema = ""
	rctx.SnowflakeTable = ""

	initial := c.Check(context.Background(), rctx)
	fixed, actions := c.AutoFix(context.Background(), rctx, initial)
	assert.False(t, fixed)

	byItem := map[string]models.AutoFixAction{}
	for _, a := range actions {
		byItem[a.Item] = a
		assert.Equal(t, models.FixSkipped, a.Status)
	}
	assert.Equal(t, []string{"storage_account_key"}, byItem["blob_linked_service"].Missing)
	assert.Equal(t, []string{"snowflake_connection_string"}, byItem["snowflake_linked_service"].Missing)
	assert.Equal(t, []string{"container", "blob_name"}, byItem["source_dataset"].Missing)
	assert.Equal(t, []string{"snowflake_schema", "snowflake_table"}, byItem["sink_dataset"].Missing)
	assert.Contains(t, byItem["source_dataset"].Error, "container, blob_name")

	assert.Empty(t, f.CallsFor("linked_service"))
	assert.Empty(t, f.CallsFor("dataset"))
}

func TestAutoFix_Bootstrap(t *testing.T) {
	f := newFake()
	rctx := fullContext()
	rctx.SubscriptionID = ""
	_, actions := precheck.New(f).AutoFix(context.Background(), rctx, models.NewPrerequisiteReport(nil))
	require.Len(t, actions, 1)
	assert.Equal(t, "bootstrap", actions[0].Item)
	assert.Equal(t, models.FixSkipped, actions[0].Status)
	assert.Equal(t, []string{"subscription_id"}, actions[0].Missing)
	assert.Equal(t, 0, f.Opens)
}

func TestAutoFix_CredentialFailure(t *testing.T) {
	f := newFake()
	report := models.NewPrerequisiteReport([]models.CheckItem{{Item: "blob_linked_service", Status: models.CheckMissing}})
	f.OpenErr = errors.New("expired token")

	fixed, actions := precheck.New(f).AutoFix(context.Background(), fullContext(), report)
	assert.False(t, fixed)
	require.Len(t, actions, 1)
	assert.Equal(t, "credentials", actions[0].Item)
	assert.Equal(t, models.FixError, actions[0].Status)
}

func TestAutoFix_IndependentAttempts(t *testing.T) {
	f := newFake()
	f.FailCreate["AzureBlobStorageLinkedService"] = errors.New("conflict")
	c := precheck.New(f)
	rctx := fullContext()

	fixed, actions := c.AutoFix(context.Background(), rctx, c.Check(context.Background(), rctx))
	assert.True(t, fixed)
	require.Len(t, actions, 4)
	assert.Equal(t, models.FixError, actions[0].Status)
	assert.Equal(t, models.FixCreated, actions[1].Status)
}

// ─── MissingInputs ───────────────────────────────────────────

func TestMissingInputs_StorageKey(t *testing.T) {
	f := newFake()
	rctx := fullContext()
	rctx.StorageAccountKey = ""
	r := precheck.New(f).Check(context.Background(), rctx)

	in := precheck.MissingInputs(r, rctx)
	assert.Contains(t, in, "storage_account_key")
	assert.NotContains(t, in, "snowflake_connection_string")
}

func TestMissingInputs_StorageKeyPrompt(t *testing.T) {
	r := models.NewPrerequisiteReport([]models.CheckItem{
		{Item: precheck.ItemBlobLinkedService, Status: models.CheckMissing},
	})

	named := &models.ResolvedContext{SubscriptionID: "s", ResourceGroup: "rg", FactoryName: "adf", StorageAccountName: "acct"}
	assert.Equal(t, "Enter storage account key for acct", precheck.MissingInputs(r, named)["storage_account_key"])

	unnamed := &models.ResolvedContext{SubscriptionID: "s", ResourceGroup: "rg", FactoryName: "adf"}
	in := precheck.MissingInputs(r, unnamed)
	assert.Equal(t, "Enter storage account key", in["storage_account_key"])
	assert.Contains(t, in, "storage_account_name")
}

func TestMissingInputs_Bootstrap(t *testing.T) {
	rctx := &models.ResolvedContext{}
	r := precheck.New(newFake()).Check(context.Background(), rctx)
	in := precheck.MissingInputs(r, rctx)
	assert.Contains(t, in, "subscription_id")
	assert.Contains(t, in, "resource_group")
	assert.Contains(t, in, "factory_name")
}

func TestMissingInputs_NoneWhenFixable(t *testing.T) {
	rctx := fullContext()
	r := precheck.New(newFake()).Check(context.Background(), rctx)
	assert.Empty(t, precheck.MissingInputs(r, rctx))
}

var _ remote.Factory = (*remotetest.Fake)(nil)
