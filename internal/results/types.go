package results

import (
	"time"

	"github.com/xkilldash9x/hurdle/internal/challenge"
	"github.com/xkilldash9x/hurdle/internal/extract"
)

// Report is the document written at the end of a run.
type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Targets    []TargetResult   `json:"targets"`
	Records    []extract.Record `json:"records"`
	Summary    map[string]int   `json:"summary"`
}

// TargetResult describes what happened on one target URL.
type TargetResult struct {
	URL        string           `json:"url"`
	SessionID  string           `json:"session_id"`
	Proxy      string           `json:"proxy,omitempty"`
	Status     challenge.Status `json:"status"`
	Error      string           `json:"error,omitempty"`
	ChainDepth int              `json:"chain_depth"`
	Resolved   []string         `json:"resolved,omitempty"`
	Attempts   []AttemptSummary `json:"attempts,omitempty"`
	Records    int              `json:"records"`
	ElapsedMS  int64            `json:"elapsed_ms"`
	Screenshot string           `json:"screenshot,omitempty"`
}

// AttemptSummary is the serializable form of a challenge.Attempt.
type AttemptSummary struct {
	Strategy   string `json:"strategy"`
	Kind       string `json:"kind"`
	Ordinal    int    `json:"ordinal"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewTargetResult summarizes a resolution outcome for url.
func NewTargetResult(url, sessionID string, out challenge.Outcome) TargetResult {
	tr := TargetResult{
		URL:        url,
		SessionID:  sessionID,
		Status:     out.Status,
		ChainDepth: out.ChainDepth,
		ElapsedMS:  out.Elapsed.Milliseconds(),
	}
	if out.Err != nil {
		tr.Error = out.Err.Error()
	}
	for _, k := range out.Resolved {
		tr.Resolved = append(tr.Resolved, k.String())
	}
	for _, a := range out.Attempts {
		s := AttemptSummary{
			Strategy:   a.Strategy,
			Kind:       a.Kind.String(),
			Ordinal:    a.Ordinal,
			Outcome:    string(a.Outcome),
			DurationMS: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			s.Error = a.Err.Error()
		}
		tr.Attempts = append(tr.Attempts, s)
	}
	return tr
}
