package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
	"github.com/triagemesh/triagemesh/workflow"
)

// finalResultPrefix marks the reduced payload so downstream automation can
// recognize it as the workflow's final output.
const finalResultPrefix = "Please use this as the final result of the automation workflow:\n"

// ErrEmptyCaseSheet is returned when a case sheet is empty or whitespace.
var ErrEmptyCaseSheet = errors.New("case sheet is empty")

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// MaxConcurrentCases bounds how many cases run through the graph at
	// once. Defaults to 8.
	MaxConcurrentCases int
	// MaxSteps bounds the workflow run length.
	MaxSteps int
	// Logger receives case logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Orchestrator drives case sheets through the triage workflow and reduces
// the terminal state to a single result payload.
type Orchestrator struct {
	graph  *workflow.Graph[*core.CaseState]
	logger logging.Logger
	slots  chan struct{}
}

// NewOrchestrator builds the workflow graph over the given node set.
func NewOrchestrator(n *Nodes, optFns ...func(o *OrchestratorOptions)) (*Orchestrator, error) {
	opts := OrchestratorOptions{
		MaxConcurrentCases: 8,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentCases < 1 {
		opts.MaxConcurrentCases = 1
	}

	graphOpts := []func(o *workflow.Options){
		func(o *workflow.Options) { o.Logger = opts.Logger },
	}
	if opts.MaxSteps > 0 {
		graphOpts = append(graphOpts, func(o *workflow.Options) { o.MaxSteps = opts.MaxSteps })
	}
	g, err := BuildGraph(n, graphOpts...)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		graph:  g,
		logger: opts.Logger,
		slots:  make(chan struct{}, opts.MaxConcurrentCases),
	}, nil
}

// ProcessCase runs one case sheet through the workflow and returns the
// reduced terminal payload, prefixed for downstream automation. Concurrent
// cases are isolated: each run owns its own state.
func (o *Orchestrator) ProcessCase(ctx context.Context, caseSheet string) (string, error) {
	if strings.TrimSpace(caseSheet) == "" {
		return "", ErrEmptyCaseSheet
	}

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	state := core.NewCaseState(caseSheet)
	if err := o.graph.Run(ctx, state); err != nil {
		o.logger.Error("case workflow failed: %v", err)
		return "", err
	}

	result, err := Reduce(state)
	if err != nil {
		return "", err
	}
	return finalResultPrefix + result, nil
}

// Reduce picks the terminal payload from a finished case state. Priority
// order: verification fallback, low-risk appointment, non-accepted resource
// allocation, handover summary.
func Reduce(s *core.CaseState) (string, error) {
	switch {
	case s.Verified == core.VerifiedNo:
		if s.FallbackResponse == "" {
			return fallbackDefault, nil
		}
		return s.FallbackResponse, nil
	case s.Verified == core.VerifiedYes && s.Criticality == core.CriticalityLowRisk:
		if s.AppointmentDetails == "" {
			return "", errors.New("verified low-risk case without appointment details")
		}
		return s.AppointmentDetails, nil
	case s.ResourceAllocation != nil && s.ResourceAllocation.AdmissionStatus != core.AdmissionAccepted:
		out, err := json.MarshalIndent(s.ResourceAllocation, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode resource allocation: %w", err)
		}
		return string(out), nil
	case s.HandoverSummary != "":
		return s.HandoverSummary, nil
	default:
		return "", errors.New("workflow terminated without a terminal payload")
	}
}
