package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
	"github.com/triagemesh/triagemesh/model"
	"github.com/triagemesh/triagemesh/resource"
	"github.com/triagemesh/triagemesh/workflow"
)

// Node identifiers for the triage/admission state machine.
const (
	NodeTriage workflow.NodeID = iota + 1
	NodeLowRiskChecklist
	NodeHighRiskChecklist
	NodeVerification
	NodeCaseHistory
	NodeEmergencyActions
	NodeResourceAvailability
	NodeSummary
	NodeAppointment
)

// Sender delivers a payload to a remote agent and awaits the correlated
// response. Satisfied by client.Client.
type Sender interface {
	Send(ctx context.Context, payload map[string]any, target uuid.UUID) (string, error)
}

type triageResponse struct {
	Criticality core.Criticality `json:"criticality"`
}

type verificationResponse struct {
	Verified         core.Verified `json:"verified"`
	FallbackResponse string        `json:"fallback_response"`
}

// NodesOptions configures a Nodes set.
type NodesOptions struct {
	// Logger receives node logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Nodes holds the dependencies shared by every workflow node handler:
// the classification model, the richer composition model, the remote agent
// sender and the read-only resource snapshot used by the appointment node.
type Nodes struct {
	triageModel  model.Model
	planModel    model.Model
	sender       Sender
	availability *resource.Data
	logger       logging.Logger
}

// NewNodes wires the node handler set.
func NewNodes(
	triageModel, planModel model.Model,
	sender Sender,
	availability *resource.Data,
	optFns ...func(o *NodesOptions),
) *Nodes {
	opts := NodesOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Nodes{
		triageModel:  triageModel,
		planModel:    planModel,
		sender:       sender,
		availability: availability,
		logger:       opts.Logger,
	}
}

// Triage classifies the case sheet into HighRisk or LowRisk. Any high-risk
// indicator takes precedence over co-occurring low-risk indicators.
func (n *Nodes) Triage(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	resp, err := n.triageModel.Complete(ctx, model.Request{
		Instructions: triageInstructions,
		Prompt:       fmt.Sprintf(triagePromptTmpl, s.CaseSheet),
	})
	if err != nil {
		return workflow.Next{}, fmt.Errorf("triage classification: %w", err)
	}
	var out triageResponse
	if err := model.Decode(resp, &out); err != nil {
		return workflow.Next{}, fmt.Errorf("triage classification: %w", err)
	}
	if !out.Criticality.Valid() {
		return workflow.Next{}, fmt.Errorf("triage returned criticality %q: %w", out.Criticality, core.ErrContractViolation)
	}
	s.Criticality = out.Criticality
	n.logger.Debug("case classified as %s", s.Criticality)

	if s.Criticality == core.CriticalityHighRisk {
		return workflow.Continue(NodeHighRiskChecklist), nil
	}
	return workflow.Continue(NodeLowRiskChecklist), nil
}

// LowRiskChecklist selects the two-field checklist for non-urgent cases.
func (n *Nodes) LowRiskChecklist(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	s.Checklist = lowRiskChecklist
	return workflow.Continue(NodeVerification), nil
}

// HighRiskChecklist selects the four-field checklist for emergency cases.
func (n *Nodes) HighRiskChecklist(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	s.Checklist = highRiskChecklist
	return workflow.Continue(NodeVerification), nil
}

// Verification checks the case sheet against the selected checklist. It is a
// hard gate: a "no" terminates the workflow with resubmission guidance and no
// downstream node executes.
func (n *Nodes) Verification(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	resp, err := n.triageModel.Complete(ctx, model.Request{
		Prompt: fmt.Sprintf(verificationPromptTmpl, s.CaseSheet, s.Checklist),
	})
	if err != nil {
		return workflow.Next{}, fmt.Errorf("checklist verification: %w", err)
	}
	var out verificationResponse
	if err := model.Decode(resp, &out); err != nil {
		return workflow.Next{}, fmt.Errorf("checklist verification: %w", err)
	}

	switch out.Verified {
	case core.VerifiedNo:
		s.Verified = core.VerifiedNo
		s.FallbackResponse = out.FallbackResponse
		if s.FallbackResponse == "" {
			s.FallbackResponse = fallbackDefault
		}
		return workflow.Terminate(), nil
	case core.VerifiedYes:
		s.Verified = core.VerifiedYes
	default:
		return workflow.Next{}, fmt.Errorf("verification returned %q: %w", out.Verified, core.ErrContractViolation)
	}

	if s.Criticality == core.CriticalityLowRisk {
		return workflow.Continue(NodeAppointment), nil
	}
	return workflow.Continue(NodeCaseHistory), nil
}

// CaseHistory invokes the case-history search agent with the case sheet as
// the query.
func (n *Nodes) CaseHistory(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	payload := map[string]any{"query": s.CaseSheet}
	result, err := n.sender.Send(ctx, payload, AgentCaseHistoryID)
	if err != nil {
		return workflow.Next{}, err
	}
	s.History = result
	return workflow.Continue(NodeEmergencyActions), nil
}

// EmergencyActions invokes the emergency-checklist agent with the retrieved
// history and the case sheet, storing the structured action plan.
func (n *Nodes) EmergencyActions(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	payload := map[string]any{
		"clinical_history":   s.History,
		"patient_case_sheet": s.CaseSheet,
	}
	result, err := n.sender.Send(ctx, payload, AgentEmergencyChecklistID)
	if err != nil {
		return workflow.Next{}, err
	}
	var actions core.EmergencyActions
	if err := json.Unmarshal([]byte(result), &actions); err != nil {
		return workflow.Next{}, fmt.Errorf("decode emergency action plan: %w", err)
	}
	s.Actions = &actions
	return workflow.Continue(NodeResourceAvailability), nil
}

// ResourceAvailability invokes the resource-availability agent with the
// action plan as the emergency sheet. An accepted admission with no assigned
// resource is a data-contract violation and aborts the case.
func (n *Nodes) ResourceAvailability(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	payload := map[string]any{"emergency_sheet": s.Actions}
	result, err := n.sender.Send(ctx, payload, AgentResourceAvailabilityID)
	if err != nil {
		return workflow.Next{}, err
	}
	var allocation core.ResourceAllocation
	if err := json.Unmarshal([]byte(result), &allocation); err != nil {
		return workflow.Next{}, fmt.Errorf("decode resource allocation: %w", err)
	}
	if !allocation.AdmissionStatus.Valid() {
		return workflow.Next{}, fmt.Errorf("resource allocation admission_status %q: %w", allocation.AdmissionStatus, core.ErrContractViolation)
	}
	if allocation.AdmissionStatus == core.AdmissionAccepted && len(allocation.AssignedResource) == 0 {
		return workflow.Next{}, fmt.Errorf("accepted admission with empty assigned_resource: %w", core.ErrContractViolation)
	}
	s.ResourceAllocation = &allocation

	if allocation.AdmissionStatus == core.AdmissionAccepted {
		return workflow.Continue(NodeSummary), nil
	}
	return workflow.Terminate(), nil
}

// Summary composes the clinical handover summary for an accepted high-risk
// admission. Terminal.
func (n *Nodes) Summary(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	allocation, err := json.Marshal(s.ResourceAllocation)
	if err != nil {
		return workflow.Next{}, fmt.Errorf("encode resource allocation: %w", err)
	}
	actions, err := json.Marshal(s.Actions)
	if err != nil {
		return workflow.Next{}, fmt.Errorf("encode action plan: %w", err)
	}
	resp, err := n.planModel.Complete(ctx, model.Request{
		Prompt: fmt.Sprintf(summaryPromptTmpl, allocation, actions),
	})
	if err != nil {
		return workflow.Next{}, fmt.Errorf("handover summary: %w", err)
	}
	s.HandoverSummary = resp.Text
	return workflow.Terminate(), nil
}

// Appointment composes a doctor appointment note for a verified low-risk
// case from the case sheet and the current resource snapshot. Terminal.
func (n *Nodes) Appointment(ctx context.Context, s *core.CaseState) (workflow.Next, error) {
	resp, err := n.planModel.Complete(ctx, model.Request{
		Prompt: fmt.Sprintf(appointmentPromptTmpl, n.availability.JSON(), s.CaseSheet),
	})
	if err != nil {
		return workflow.Next{}, fmt.Errorf("appointment note: %w", err)
	}
	s.AppointmentDetails = resp.Text
	return workflow.Terminate(), nil
}

// BuildGraph assembles the triage/admission state machine.
func BuildGraph(n *Nodes, optFns ...func(o *workflow.Options)) (*workflow.Graph[*core.CaseState], error) {
	g := workflow.New[*core.CaseState](optFns...)

	entries := []struct {
		id      workflow.NodeID
		name    string
		handler workflow.Handler[*core.CaseState]
	}{
		{NodeTriage, "Triage", n.Triage},
		{NodeLowRiskChecklist, "LowRiskChecklist", n.LowRiskChecklist},
		{NodeHighRiskChecklist, "HighRiskChecklist", n.HighRiskChecklist},
		{NodeVerification, "Verification", n.Verification},
		{NodeCaseHistory, "CaseHistory", n.CaseHistory},
		{NodeEmergencyActions, "EmergencyActions", n.EmergencyActions},
		{NodeResourceAvailability, "ResourceAvailability", n.ResourceAvailability},
		{NodeSummary, "Summary", n.Summary},
		{NodeAppointment, "Appointment", n.Appointment},
	}
	for _, e := range entries {
		if err := g.AddNode(e.id, e.name, e.handler); err != nil {
			return nil, err
		}
	}
	g.SetEntry(NodeTriage)
	return g, nil
}
