// Package guardrails screens requirement text before it is sent to the LLM.
//
// Checks:
//   - max_length: character limit
//   - prompt_injection: heuristic prompt injection detection
//
// Redact strips credentials that users paste into a requirement
// (storage account keys, connection-string passwords, SAS signatures).
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/christy136/AutoFlowAI/internal/config"
)

const (
	KindMaxLength       = "max_length"
	KindPromptInjection = "prompt_injection"
)

// Result is the outcome of one check.
type Result struct {
	Kind    string `json:"kind"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Evaluation aggregates the checks that ran.
type Evaluation struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Failures joins the messages of failed checks.
func (e Evaluation) Failures() string {
	var msgs []string
	for _, r := range e.Results {
		if !r.Passed {
			msgs = append(msgs, r.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// Guard evaluates requirement text. A nil *Guard passes everything.
type Guard struct {
	maxChars       int
	blockInjection bool
}

func New(cfg config.GuardConfig) *Guard {
	return &Guard{maxChars: cfg.MaxChars, blockInjection: cfg.BlockInjection}
}

// Evaluate runs the enabled checks.
func (g *Guard) Evaluate(text string) Evaluation {
	eval := Evaluation{Passed: true, Results: []Result{}}
	if g == nil {
		return eval
	}
	if g.maxChars > 0 {
		eval.add(evalMaxLength(g.maxChars, text))
	}
	if g.blockInjection {
		eval.add(evalPromptInjection(text))
	}
	return eval
}

func (e *Evaluation) add(r Result) {
	e.Results = append(e.Results, r)
	if !r.Passed {
		e.Passed = false
	}
}

// ── Max Length ───────────────────────────────────────────────

func evalMaxLength(limit int, text string) Result {
	if n := utf8.RuneCountInString(text); n > limit {
		return Result{Kind: KindMaxLength, Message: fmt.Sprintf("requirement has %d characters, limit is %d", n, limit)}
	}
	return Result{Kind: KindMaxLength, Passed: true}
}

// ── Prompt Injection Detection ──────────────────────────────

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
}

func evalPromptInjection(text string) Result {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return Result{Kind: KindPromptInjection, Message: "potential prompt injection detected"}
		}
	}
	return Result{Kind: KindPromptInjection, Passed: true}
}

// ── Redaction ────────────────────────────────────────────────

const redacted = "[REDACTED]"

var secretPatterns = map[string]*regexp.Regexp{
	"account_key": regexp.MustCompile(`(?i)(AccountKey\s*=\s*)[^;\s]+`),
	"password":    regexp.MustCompile(`(?i)((?:password|pwd)\s*=\s*)[^;&\s]+`),
	"sas":         regexp.MustCompile(`(?i)([?&]sig=)[^&\s]+`),
	// 88-char base64 storage keys pasted bare.
	"storage_key": regexp.MustCompile(`()\b[A-Za-z0-9+/]{86}==`),
}

// secretOrder keeps Redact deterministic.
var secretOrder = []string{"account_key", "password", "sas", "storage_key"}

// Redact replaces credential values in text and returns the kinds found.
func Redact(text string) (string, []string) {
	var found []string
	for _, kind := range secretOrder {
		re := secretPatterns[kind]
		if re.MatchString(text) {
			found = append(found, kind)
			text = re.ReplaceAllString(text, "${1}"+redacted)
		}
	}
	return text, found
}
