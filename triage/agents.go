package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/history"
	"github.com/triagemesh/triagemesh/model"
	"github.com/triagemesh/triagemesh/registry"
	"github.com/triagemesh/triagemesh/resource"
)

// Stable agent identities. The workflow addresses remote agents by these IDs
// and the auth bootstrap registers them with the backend under the same IDs,
// so restarts reuse existing registrations instead of minting duplicates.
var (
	AgentCaseAutomationID       = uuid.MustParse("fa94c912-c6e4-4af4-a5e4-a3af4aaab109")
	AgentCaseHistoryID          = uuid.MustParse("e9dc5dbd-433e-4df8-ada1-cfda98440a66")
	AgentEmergencyChecklistID   = uuid.MustParse("4d2c1223-6e60-4ee5-af6a-6831fd3245e2")
	AgentResourceAvailabilityID = uuid.MustParse("df0bfed8-21ea-4240-b2d6-50030a6fdfec")
)

func payloadString(req core.Request, key string) (string, error) {
	v, ok := req.Payload[key]
	if !ok {
		return "", fmt.Errorf("payload missing %q: %w", key, core.ErrContractViolation)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload %q is not a string: %w", key, core.ErrContractViolation)
	}
	return s, nil
}

// BindCaseHistoryAgent binds the previous-case search agent. It searches the
// historical case store for records similar to the query and renders them as
// a clinical history block.
func BindCaseHistoryAgent(d *registry.Dispatcher, store history.Searcher, topK int) (core.AgentIdentity, error) {
	handler := func(ctx context.Context, req core.Request) (string, error) {
		query, err := payloadString(req, "query")
		if err != nil {
			return "", err
		}
		records, err := store.Search(ctx, query, topK)
		if err != nil {
			return "", fmt.Errorf("case history search: %w", err)
		}
		return "SimilarCase:\n" + history.Format(records), nil
	}
	return d.Bind(AgentCaseHistoryID, "CaseHistoryAgent",
		"Searches prior emergency cases similar to the submitted case sheet.", handler)
}

// BindEmergencyChecklistAgent binds the agent that drafts the structured
// emergency action plan from the case sheet and retrieved clinical history.
func BindEmergencyChecklistAgent(d *registry.Dispatcher, m model.Model) (core.AgentIdentity, error) {
	handler := func(ctx context.Context, req core.Request) (string, error) {
		hist, err := payloadString(req, "clinical_history")
		if err != nil {
			return "", err
		}
		sheet, err := payloadString(req, "patient_case_sheet")
		if err != nil {
			return "", err
		}
		resp, err := m.Complete(ctx, model.Request{
			Prompt: fmt.Sprintf(emergencyChecklistPromptTmpl, hist, sheet),
		})
		if err != nil {
			return "", fmt.Errorf("emergency checklist: %w", err)
		}
		var actions core.EmergencyActions
		if err := model.Decode(resp, &actions); err != nil {
			return "", fmt.Errorf("emergency checklist: %w", err)
		}
		out, err := json.Marshal(actions)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return d.Bind(AgentEmergencyChecklistID, "EmergencyChecklistAgent",
		"Drafts a structured emergency action plan from the case sheet and clinical history.", handler)
}

// BindResourceAvailabilityAgent binds the admission decision agent. It
// decides acceptance or redirection from the live resource snapshot and the
// hospital directory, and re-validates the model's allocation before replying
// so a malformed decision fails at the agent, not downstream.
func BindResourceAvailabilityAgent(d *registry.Dispatcher, m model.Model, availability, hospitals *resource.Data) (core.AgentIdentity, error) {
	handler := func(ctx context.Context, req core.Request) (string, error) {
		sheet, ok := req.Payload["emergency_sheet"]
		if !ok {
			return "", fmt.Errorf("payload missing %q: %w", "emergency_sheet", core.ErrContractViolation)
		}
		encoded, err := json.Marshal(sheet)
		if err != nil {
			return "", fmt.Errorf("encode emergency sheet: %w", err)
		}
		resp, err := m.Complete(ctx, model.Request{
			Instructions: resourceInstructions,
			Prompt:       fmt.Sprintf(resourcePromptTmpl, availability.JSON(), hospitals.JSON(), encoded),
		})
		if err != nil {
			return "", fmt.Errorf("resource availability: %w", err)
		}
		var allocation core.ResourceAllocation
		if err := model.Decode(resp, &allocation); err != nil {
			return "", fmt.Errorf("resource availability: %w", err)
		}
		if !allocation.AdmissionStatus.Valid() {
			return "", fmt.Errorf("admission_status %q: %w", allocation.AdmissionStatus, core.ErrContractViolation)
		}
		out, err := json.Marshal(allocation)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return d.Bind(AgentResourceAvailabilityID, "ResourceAvailabilityAgent",
		"Decides admission or redirection from current bed, stretcher and doctor availability.", handler)
}

// CaseProcessor runs one case sheet through the full workflow.
type CaseProcessor interface {
	ProcessCase(ctx context.Context, caseSheet string) (string, error)
}

// BindCaseAutomationAgent binds the front-door agent: it accepts a case sheet
// payload and runs the whole triage workflow, returning the reduced terminal
// payload.
func BindCaseAutomationAgent(d *registry.Dispatcher, p CaseProcessor) (core.AgentIdentity, error) {
	handler := func(ctx context.Context, req core.Request) (string, error) {
		sheet, err := payloadString(req, "case_sheet")
		if err != nil {
			return "", err
		}
		return p.ProcessCase(ctx, sheet)
	}
	return d.Bind(AgentCaseAutomationID, "CaseAutomationAgent",
		"Runs a submitted patient case sheet through the triage and admission workflow.", handler)
}
