package results

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
	"github.com/xkilldash9x/hurdle/internal/extract"
)

// Collector gathers per-target results from concurrent sessions.
type Collector struct {
	mu         sync.Mutex
	runID      string
	started    time.Time
	maxRecords int
	targets    []TargetResult
	records    []extract.Record
	seen       map[string]struct{}
	logger     *zap.Logger
	now        func() time.Time
}

// NewCollector creates a collector keeping at most maxRecords records over
// the whole run; zero or less means no limit.
func NewCollector(maxRecords int, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		runID:      uuid.NewString(),
		maxRecords: maxRecords,
		seen:       make(map[string]struct{}),
		logger:     logger.Named("results"),
		now:        time.Now,
	}
	c.started = c.now()
	return c
}

// RunID identifies the run in logs and persisted history.
func (c *Collector) RunID() string { return c.runID }

// Add records the result for one target along with its records. Records
// already seen on another page are dropped. It returns how many were kept.
func (c *Collector) Add(tr TargetResult, recs []extract.Record) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := 0
	for _, r := range recs {
		if c.maxRecords > 0 && len(c.records) >= c.maxRecords {
			break
		}
		key := recordKey(r)
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		c.records = append(c.records, r)
		kept++
	}
	tr.Records = kept
	c.targets = append(c.targets, tr)

	c.logger.Debug("Target collected.",
		zap.String("url", tr.URL),
		zap.String("status", string(tr.Status)),
		zap.Int("records", kept),
	)
	return kept
}

// Full reports whether the record cap has been reached.
func (c *Collector) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxRecords > 0 && len(c.records) >= c.maxRecords
}

// Report builds the final report. Targets are ordered by URL so output is
// stable across runs.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := append([]TargetResult(nil), c.targets...)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].URL < targets[j].URL })
	records := append([]extract.Record(nil), c.records...)

	return &Report{
		RunID:      c.runID,
		StartedAt:  c.started,
		FinishedAt: c.now(),
		Targets:    targets,
		Records:    records,
		Summary:    summarize(targets, len(records)),
	}
}

func summarize(targets []TargetResult, records int) map[string]int {
	summary := map[string]int{
		"targets":                              len(targets),
		"records":                              records,
		string(challenge.StatusResolved):       0,
		string(challenge.StatusManualResolved): 0,
		string(challenge.StatusExhausted):      0,
	}
	for _, t := range targets {
		summary[string(t.Status)]++
		summary["attempts"] += len(t.Attempts)
	}
	return summary
}

func recordKey(r extract.Record) string {
	if r.URL != "" {
		return r.URL
	}
	return strings.ToLower(r.Title) + "|" + r.Price
}
