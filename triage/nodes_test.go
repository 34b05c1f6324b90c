package triage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/model"
	"github.com/triagemesh/triagemesh/resource"
)

// fakeSender records invocations and replies from a script keyed by target
// agent identifier.
type fakeSender struct {
	replies map[uuid.UUID]string
	errs    map[uuid.UUID]error
	calls   []uuid.UUID
	payload map[uuid.UUID]map[string]any
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		replies: make(map[uuid.UUID]string),
		errs:    make(map[uuid.UUID]error),
		payload: make(map[uuid.UUID]map[string]any),
	}
}

func (s *fakeSender) Send(ctx context.Context, payload map[string]any, target uuid.UUID) (string, error) {
	s.calls = append(s.calls, target)
	s.payload[target] = payload
	if err := s.errs[target]; err != nil {
		return "", err
	}
	return s.replies[target], nil
}

func testAvailability(t *testing.T) *resource.Data {
	t.Helper()
	d, err := resource.FromJSON([]byte(`{"beds": 2}`))
	require.NoError(t, err)
	return d
}

func newTestNodes(t *testing.T, triageModel, planModel model.Model, sender Sender) *Nodes {
	t.Helper()
	if sender == nil {
		sender = newFakeSender()
	}
	return NewNodes(triageModel, planModel, sender, testAvailability(t))
}

func TestTriageRoutesHighRisk(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("triage zone", `{"criticality": "HighRisk"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	state := core.NewCaseState("unconscious patient, BP 82/50")
	next, err := n.Triage(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, core.CriticalityHighRisk, state.Criticality)
	assert.Equal(t, NodeHighRiskChecklist, next.Node())
}

func TestTriageRoutesLowRisk(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("triage zone", `{"criticality": "LowRisk"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	state := core.NewCaseState("mild headache, vitals stable")
	next, err := n.Triage(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, core.CriticalityLowRisk, state.Criticality)
	assert.Equal(t, NodeLowRiskChecklist, next.Node())
}

func TestTriageRejectsUnknownClassification(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("triage zone", `{"criticality": "MediumRisk"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	_, err := n.Triage(context.Background(), core.NewCaseState("note"))
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestChecklistNodesSelectTemplates(t *testing.T) {
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), nil)

	state := core.NewCaseState("note")
	next, err := n.LowRiskChecklist(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeVerification, next.Node())
	assert.Contains(t, state.Checklist, "Presenting Complaint")
	assert.NotContains(t, state.Checklist, "Vital Signs")

	state = core.NewCaseState("note")
	next, err = n.HighRiskChecklist(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeVerification, next.Node())
	assert.Contains(t, state.Checklist, "Vital Signs")
	assert.Contains(t, state.Checklist, "Medical History")
}

func TestVerificationFailureTerminatesWithFallback(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("checklist item", `{"verified": "no", "fallback_response": "please add vital signs"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	state := core.NewCaseState("incomplete note")
	state.Criticality = core.CriticalityHighRisk
	state.Checklist = highRiskChecklist

	next, err := n.Verification(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Equal(t, core.VerifiedNo, state.Verified)
	assert.Equal(t, "please add vital signs", state.FallbackResponse)
}

func TestVerificationFailureWithoutGuidanceUsesDefault(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("checklist item", `{"verified": "no"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	state := core.NewCaseState("incomplete note")
	state.Criticality = core.CriticalityLowRisk
	state.Checklist = lowRiskChecklist

	next, err := n.Verification(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Equal(t, fallbackDefault, state.FallbackResponse)
}

func TestVerificationRoutesByCriticality(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("checklist item", `{"verified": "yes"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	state := core.NewCaseState("complete note")
	state.Criticality = core.CriticalityLowRisk
	next, err := n.Verification(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeAppointment, next.Node())

	state = core.NewCaseState("complete note")
	state.Criticality = core.CriticalityHighRisk
	next, err = n.Verification(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeCaseHistory, next.Node())
}

func TestVerificationRejectsUnknownOutcome(t *testing.T) {
	m := model.NewMockModel("triage")
	m.AddResponse("checklist item", `{"verified": "maybe"}`)
	n := newTestNodes(t, m, model.NewMockModel("plan"), nil)

	_, err := n.Verification(context.Background(), core.NewCaseState("note"))
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestCaseHistoryQueriesAgent(t *testing.T) {
	sender := newFakeSender()
	sender.replies[AgentCaseHistoryID] = "SimilarCase:\nDepartment: Emergency Medicine\n"
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("chest pain note")
	next, err := n.CaseHistory(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeEmergencyActions, next.Node())
	assert.Contains(t, state.History, "SimilarCase")
	assert.Equal(t, "chest pain note", sender.payload[AgentCaseHistoryID]["query"])
}

func TestCaseHistoryPropagatesAgentFailure(t *testing.T) {
	sender := newFakeSender()
	sender.errs[AgentCaseHistoryID] = &core.UnavailableError{AgentID: AgentCaseHistoryID, Err: errors.New("down")}
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	_, err := n.CaseHistory(context.Background(), core.NewCaseState("note"))
	var unavailable *core.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestEmergencyActionsDecodesPlan(t *testing.T) {
	plan := core.EmergencyActions{
		Department:              "Emergency Medicine",
		PresentingComplaint:     "chest pain",
		Assessment:              "suspected ACS",
		InterventionsManagement: []string{"aspirin", "oxygen"},
		ChecklistActionsTaken:   []string{"ECG done"},
		ClinicalNotes:           "no known allergies",
		DispositionNextSteps:    "admit",
	}
	encoded, err := json.Marshal(plan)
	require.NoError(t, err)

	sender := newFakeSender()
	sender.replies[AgentEmergencyChecklistID] = string(encoded)
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("chest pain note")
	state.History = "SimilarCase:\n..."
	next, err := n.EmergencyActions(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeResourceAvailability, next.Node())
	require.NotNil(t, state.Actions)
	assert.Equal(t, "Emergency Medicine", state.Actions.Department)
	assert.Equal(t, "chest pain note", sender.payload[AgentEmergencyChecklistID]["patient_case_sheet"])
}

func TestResourceAvailabilityAcceptedRoutesToSummary(t *testing.T) {
	sender := newFakeSender()
	sender.replies[AgentResourceAvailabilityID] = `{
		"admission_status": "Accepted",
		"assigned_resource": [{"type": "bed", "number": "ED-03"}],
		"assigned_doctor": "Dr. Anil Menon",
		"suggested_hospital": "City General Hospital"
	}`
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("note")
	state.Actions = &core.EmergencyActions{Department: "Emergency Medicine"}
	next, err := n.ResourceAvailability(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, NodeSummary, next.Node())
	require.NotNil(t, state.ResourceAllocation)
	assert.Equal(t, core.AdmissionAccepted, state.ResourceAllocation.AdmissionStatus)
}

func TestResourceAvailabilityRedirectedTerminates(t *testing.T) {
	sender := newFakeSender()
	sender.replies[AgentResourceAvailabilityID] = `{
		"admission_status": "Redirected",
		"assigned_resource": [],
		"assigned_doctor": "",
		"reason": "no beds or stretchers available",
		"suggested_hospital": "St. Mary Medical Center"
	}`
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("note")
	state.Actions = &core.EmergencyActions{}
	next, err := n.ResourceAvailability(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Equal(t, core.AdmissionRedirected, state.ResourceAllocation.AdmissionStatus)
}

func TestResourceAvailabilityAcceptedWithoutResourceIsContractViolation(t *testing.T) {
	sender := newFakeSender()
	sender.replies[AgentResourceAvailabilityID] = `{
		"admission_status": "Accepted",
		"assigned_resource": [],
		"assigned_doctor": "Dr. Anil Menon",
		"suggested_hospital": ""
	}`
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("note")
	state.Actions = &core.EmergencyActions{}
	_, err := n.ResourceAvailability(context.Background(), state)
	assert.ErrorIs(t, err, core.ErrContractViolation)
	assert.Nil(t, state.ResourceAllocation)
}

func TestResourceAvailabilityRejectsUnknownStatus(t *testing.T) {
	sender := newFakeSender()
	sender.replies[AgentResourceAvailabilityID] = `{"admission_status": "Waitlisted"}`
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), sender)

	state := core.NewCaseState("note")
	state.Actions = &core.EmergencyActions{}
	_, err := n.ResourceAvailability(context.Background(), state)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestSummaryStoresHandover(t *testing.T) {
	plan := model.NewMockModel("plan")
	plan.AddResponse("clinical handover summary", "Patient admitted to ED-03 under Dr. Anil Menon.")
	n := newTestNodes(t, model.NewMockModel("triage"), plan, nil)

	state := core.NewCaseState("note")
	state.Actions = &core.EmergencyActions{Department: "Emergency Medicine"}
	state.ResourceAllocation = &core.ResourceAllocation{
		AdmissionStatus:  core.AdmissionAccepted,
		AssignedResource: []core.Resource{{Type: "bed", Number: "ED-03"}},
	}
	next, err := n.Summary(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Contains(t, state.HandoverSummary, "ED-03")
}

func TestAppointmentStoresDetails(t *testing.T) {
	plan := model.NewMockModel("plan")
	plan.AddResponse("Doctor Appointment Request", "Doctor Appointment Request\nAssigned Doctor: Dr. Anil Menon")
	n := newTestNodes(t, model.NewMockModel("triage"), plan, nil)

	state := core.NewCaseState("mild headache note")
	next, err := n.Appointment(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Contains(t, state.AppointmentDetails, "Dr. Anil Menon")
}

func TestBuildGraphRegistersAllNodes(t *testing.T) {
	n := newTestNodes(t, model.NewMockModel("triage"), model.NewMockModel("plan"), nil)
	g, err := BuildGraph(n)
	require.NoError(t, err)
	assert.Equal(t, "Triage", g.NodeName(NodeTriage))
	assert.Equal(t, "ResourceAvailability", g.NodeName(NodeResourceAvailability))
	assert.Equal(t, "Appointment", g.NodeName(NodeAppointment))
}
