package precheck

import "github.com/christy136/AutoFlowAI/pkg/models"

// MissingInputs lists the caller-supplied inputs that would let the missing
// items of report be checked or created. Keys are request context keys;
// values are prompts for the caller. An empty map means auto-fix has all it
// needs.
func MissingInputs(report *models.PrerequisiteReport, rctx *models.ResolvedContext) map[string]string {
	out := map[string]string{}
	if report == nil || rctx == nil {
		return out
	}

	if rctx.SubscriptionID == "" {
		out["subscription_id"] = "Enter Azure subscription id"
	}
	if rctx.ResourceGroup == "" {
		out["resource_group"] = "Enter Azure resource group"
	}
	if rctx.FactoryName == "" {
		out["factory_name"] = "Enter Data Factory name"
	}

	if report.IsMissing(ItemSnowflakeLinked) && rctx.SnowflakeConnectionString == "" {
		out["snowflake_connection_string"] = "Enter Snowflake JDBC connection string"
	}
	if report.IsMissing(ItemBlobLinkedService) {
		if rctx.StorageAccountName == "" {
			out["storage_account_name"] = "Enter storage account name"
		}
		if rctx.StorageAccountKey == "" {
			prompt := "Enter storage account key"
			if rctx.StorageAccountName != "" {
				prompt += " for " + rctx.StorageAccountName
			}
			out["storage_account_key"] = prompt
		}
	}
	if report.IsMissing(ItemSourceDataset) {
		if rctx.Container == "" {
			out["container"] = "Enter blob container name"
		}
		if rctx.BlobName == "" {
			out["blob_name"] = "Enter blob file name"
		}
	}
	if report.IsMissing(ItemSinkDataset) {
		if rctx.SnowflakeSchema == "" {
			out["snowflake_schema"] = "Enter Snowflake schema"
		}
		if rctx.SnowflakeTable == "" {
			out["snowflake_table"] = "Enter Snowflake table"
		}
	}
	return out
}
