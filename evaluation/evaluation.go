// Package evaluation scores the pipeline against golden query sets. A Case
// names the evidence documents a query should surface, optionally the intent
// it should route to and substrings its answer must contain; Evaluate runs
// the whole set through the engine and aggregates retrieval hit rate, mean
// reciprocal rank and intent accuracy.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/runner"
)

// Case is one golden query with its expectations. Zero-value expectations
// are skipped: a Case with no RelevantDocs contributes nothing to the
// retrieval metrics, an empty WantIntent skips the intent check.
type Case struct {
	Query core.Query

	// RelevantDocs lists document IDs counted as correct evidence.
	RelevantDocs []string

	// WantIntent is the label the router should produce.
	WantIntent core.IntentLabel

	// WantAnswerContains lists substrings the final answer must include.
	WantAnswerContains []string
}

// CaseResult is the scored outcome of a single Case.
type CaseResult struct {
	Case    Case
	Outcome runner.Outcome

	// Hit is true when any relevant document appears in the retrieved set.
	Hit bool
	// ReciprocalRank is 1/rank of the first relevant document, 0 on miss.
	ReciprocalRank float64
	IntentMatch    bool
	AnswerMatch    bool

	// Failures lists human-readable expectation misses.
	Failures []string
}

// Report aggregates a full evaluation run.
type Report struct {
	Cases []CaseResult

	// HitRate and MRR cover cases with RelevantDocs; IntentAccuracy covers
	// cases with WantIntent.
	HitRate        float64
	MRR            float64
	IntentAccuracy float64
	// Passed counts cases with no expectation misses.
	Passed int
}

// Options configures the Evaluator.
type Options struct {
	// Concurrency is passed through to the batch runner.
	Concurrency int
}

// Evaluator runs golden sets through an engine.
type Evaluator struct {
	runner *runner.Runner
}

// New constructs an Evaluator over the given engine.
func New(engine runner.Engine, optFns ...func(o *Options)) *Evaluator {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Evaluator{
		runner: runner.New(engine, func(o *runner.Options) {
			o.Concurrency = opts.Concurrency
		}),
	}
}

// Evaluate runs every case and scores the outcomes. It fails only when the
// batch itself is aborted; per-case engine failures are scored as misses.
func (e *Evaluator) Evaluate(ctx context.Context, cases []Case) (*Report, error) {
	queries := make([]core.Query, len(cases))
	for i, c := range cases {
		queries[i] = c.Query
	}
	outcomes, err := e.runner.Run(ctx, queries)
	if err != nil {
		return nil, err
	}

	report := &Report{Cases: make([]CaseResult, len(cases))}
	var retrievalCases, hits, intentCases, intentHits int
	var rrSum float64

	for i, c := range cases {
		cr := score(c, outcomes[i])
		report.Cases[i] = cr

		if len(c.RelevantDocs) > 0 {
			retrievalCases++
			if cr.Hit {
				hits++
			}
			rrSum += cr.ReciprocalRank
		}
		if c.WantIntent != "" {
			intentCases++
			if cr.IntentMatch {
				intentHits++
			}
		}
		if len(cr.Failures) == 0 {
			report.Passed++
		}
	}

	if retrievalCases > 0 {
		report.HitRate = float64(hits) / float64(retrievalCases)
		report.MRR = rrSum / float64(retrievalCases)
	}
	if intentCases > 0 {
		report.IntentAccuracy = float64(intentHits) / float64(intentCases)
	}
	return report, nil
}

func score(c Case, outcome runner.Outcome) CaseResult {
	cr := CaseResult{Case: c, Outcome: outcome}
	if outcome.Failed() {
		cr.Failures = append(cr.Failures, fmt.Sprintf("run failed: %v", outcome.Err))
		return cr
	}
	result := outcome.Result

	if len(c.RelevantDocs) > 0 {
		relevant := make(map[string]bool, len(c.RelevantDocs))
		for _, id := range c.RelevantDocs {
			relevant[id] = true
		}
		if result.Retrieval != nil {
			for rank, chunk := range result.Retrieval.Chunks {
				if relevant[chunk.DocumentID] {
					cr.Hit = true
					cr.ReciprocalRank = 1.0 / float64(rank+1)
					break
				}
			}
		}
		if !cr.Hit {
			cr.Failures = append(cr.Failures, "no relevant document retrieved")
		}
	}

	if c.WantIntent != "" {
		cr.IntentMatch = result.Intent.Label == c.WantIntent
		if !cr.IntentMatch {
			cr.Failures = append(cr.Failures, fmt.Sprintf("intent %s, want %s", result.Intent.Label, c.WantIntent))
		}
	}

	cr.AnswerMatch = true
	for _, want := range c.WantAnswerContains {
		if !strings.Contains(result.Answer, want) {
			cr.AnswerMatch = false
			cr.Failures = append(cr.Failures, fmt.Sprintf("answer missing %q", want))
		}
	}
	return cr
}
