package reasoning

import (
	"time"

	"github.com/google/uuid"
)

// StepType names one stage of the query state machine.
type StepType string

const (
	StepReceived         StepType = "received"
	StepLanguageDetected StepType = "language_detected"
	StepQueryTranslated  StepType = "query_translated"
	StepAnalyzed         StepType = "analyzed"
	StepRetrieved        StepType = "retrieved"
	StepScored           StepType = "scored"
	StepConflictChecked  StepType = "conflict_checked"
	StepStrategyChosen   StepType = "strategy_chosen"
	StepGenerated        StepType = "generated"
	StepAnswerTranslated StepType = "answer_translated"
	StepResponded        StepType = "responded"
)

// StepStatus is the outcome of one reasoning step.
type StepStatus string

const (
	StatusCompleted StepStatus = "completed"
	StatusWarning   StepStatus = "warning"
	StatusError     StepStatus = "error"
)

// Step is one recorded transition in the query state machine.
type Step struct {
	StepNumber  int        `json:"step_number"`
	Type        StepType   `json:"step_type"`
	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	SourcesUsed []string   `json:"sources_used,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms"`
	StartedAt   time.Time  `json:"started_at"`
}

// Chain records the full sequence of steps for one query, in strictly
// increasing step_number order, plus the summary fields (chain_id, query,
// total_duration_ms, final_decision, key_insights) that let a caller show
// or log the chain without replaying every step.
type Chain struct {
	ChainID         string    `json:"chain_id,omitempty"`
	Query           string    `json:"query,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	Steps           []Step    `json:"steps"`
	TotalDurationMs int64     `json:"total_duration_ms,omitempty"`
	FinalDecision   Strategy  `json:"final_decision,omitempty"`
	KeyInsightsList []string  `json:"key_insights,omitempty"`
}

// Record appends a step with the given status. Callers compute elapsed time
// themselves (typically via time.Since(start)) since Record never reads the
// clock.
func (c *Chain) Record(stepType StepType, status StepStatus, description string, sourcesUsed []string, elapsed time.Duration, startedAt time.Time) {
	c.Steps = append(c.Steps, Step{
		StepNumber:  len(c.Steps) + 1,
		Type:        stepType,
		Status:      status,
		Description: description,
		SourcesUsed: sourcesUsed,
		ElapsedMs:   elapsed.Milliseconds(),
		StartedAt:   startedAt,
	})
}

// LastStatus returns the status of the most recently recorded step, or
// StatusCompleted if the chain is empty.
func (c *Chain) LastStatus() StepStatus {
	if len(c.Steps) == 0 {
		return StatusCompleted
	}
	return c.Steps[len(c.Steps)-1].Status
}

// KeyInsights derives a short list of human-readable notices from the
// recorded steps: one "<step_type>: <description>" entry per step whose
// status is warning or error (for example low relevance or an unavailable
// translation). Completed steps add no entry, so the confidence level and
// the conflict count are not listed as insights.
func (c *Chain) KeyInsights() []string {
	var insights []string
	for _, s := range c.Steps {
		if s.Status == StatusWarning || s.Status == StatusError {
			insights = append(insights, string(s.Type)+": "+s.Description)
		}
	}
	return insights
}

// Finalize stamps the chain's summary fields. Call once, after every step
// has been recorded, right before the chain leaves the package — a fresh
// ChainID here would otherwise change on every JSON re-marshal.
func (c *Chain) Finalize(query string, startedAt time.Time, decision Strategy) {
	if c.ChainID == "" {
		c.ChainID = uuid.NewString()
	}
	c.Query = query
	c.Timestamp = startedAt
	c.TotalDurationMs = time.Since(startedAt).Milliseconds()
	c.FinalDecision = decision
	c.KeyInsightsList = c.KeyInsights()
}
