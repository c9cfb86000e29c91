package generator

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

// knownActivityTypes is the set of ADF activity types the validator accepts
// without a warning.
var knownActivityTypes = map[string]bool{
	"Copy":                     true,
	"ExecutePipeline":          true,
	"Lookup":                   true,
	"GetMetadata":              true,
	"Delete":                   true,
	"ForEach":                  true,
	"IfCondition":              true,
	"Switch":                   true,
	"Until":                    true,
	"Wait":                     true,
	"Fail":                     true,
	"Filter":                   true,
	"SetVariable":              true,
	"AppendVariable":           true,
	"WebActivity":              true,
	"WebHook":                  true,
	"Script":                   true,
	"SqlServerStoredProcedure": true,
	"ExecuteDataFlow":          true,
	"DatabricksNotebook":       true,
	"DatabricksSparkJar":       true,
	"DatabricksSparkPython":    true,
	"AzureFunctionActivity":    true,
	"Custom":                   true,
	"Validation":               true,
}

// Result is the outcome of Validate.
type Result struct {
	OK       bool     `json:"ok"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func fail(format string, args ...interface{}) Result {
	return Result{OK: false, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structure of a pipeline document. Unknown activity
// types only produce warnings.
func Validate(a *models.PipelineArtifact) Result {
	if a == nil {
		return fail("pipeline is nil")
	}
	if a.Name == "" {
		return fail("pipeline has no name")
	}
	if a.Properties == nil {
		return fail("pipeline %q has no properties", a.Name)
	}
	if len(a.Properties.Activities) == 0 {
		return fail("pipeline %q has no activities", a.Name)
	}

	res := Result{OK: true, Reason: "Validation successful"}
	seen := make(map[string]bool, len(a.Properties.Activities))
	for i, act := range a.Properties.Activities {
		if act.Name == "" {
			return fail("activity %d has no name", i)
		}
		if act.Type == "" {
			return fail("activity %q has no type", act.Name)
		}
		if seen[act.Name] {
			return fail("duplicate activity name %q", act.Name)
		}
		seen[act.Name] = true

		if !knownActivityTypes[act.Type] {
			w := fmt.Sprintf("activity %q has unrecognized type %q", act.Name, act.Type)
			res.Warnings = append(res.Warnings, w)
			log.Warn().Str("pipeline", a.Name).Str("activity", act.Name).Str("type", act.Type).Msg("Unrecognized activity type")
		}
	}
	return res
}
