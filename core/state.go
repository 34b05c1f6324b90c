package core

// Criticality is the triage classification of a case sheet.
type Criticality string

const (
	// CriticalityHighRisk marks cases needing immediate emergency care.
	CriticalityHighRisk Criticality = "HighRisk"
	// CriticalityLowRisk marks non-urgent cases.
	CriticalityLowRisk Criticality = "LowRisk"
)

// Valid reports whether the value is one of the two known classifications.
func (c Criticality) Valid() bool {
	return c == CriticalityHighRisk || c == CriticalityLowRisk
}

// Verified is the outcome of checklist verification. The zero value means the
// verification node has not run yet.
type Verified string

const (
	// VerifiedYes means the case sheet satisfies every checklist item.
	VerifiedYes Verified = "yes"
	// VerifiedNo means required checklist items are missing.
	VerifiedNo Verified = "no"
)

// AdmissionStatus is the resource-availability decision for a case.
type AdmissionStatus string

const (
	// AdmissionAccepted means the current hospital admits the patient.
	AdmissionAccepted AdmissionStatus = "Accepted"
	// AdmissionRedirected means the patient is sent to another hospital.
	AdmissionRedirected AdmissionStatus = "Redirected"
)

// Valid reports whether the value is one of the two known statuses.
func (a AdmissionStatus) Valid() bool {
	return a == AdmissionAccepted || a == AdmissionRedirected
}

// Resource is a single allocated hospital resource (bed or stretcher).
type Resource struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// ResourceAllocation is the structured record returned by the
// resource-availability agent.
type ResourceAllocation struct {
	AdmissionStatus   AdmissionStatus `json:"admission_status"`
	AssignedResource  []Resource      `json:"assigned_resource"`
	AssignedDoctor    string          `json:"assigned_doctor"`
	Reason            string          `json:"reason,omitempty"`
	SuggestedHospital string          `json:"suggested_hospital"`
}

// EmergencyActions is the structured emergency action plan produced by the
// emergency-checklist agent.
type EmergencyActions struct {
	Department              string   `json:"department"`
	PresentingComplaint     string   `json:"presenting_complaint"`
	Assessment              string   `json:"assessment"`
	InterventionsManagement []string `json:"interventions_management"`
	ChecklistActionsTaken   []string `json:"checklist_actions_taken"`
	ClinicalNotes           string   `json:"clinical_notes"`
	DispositionNextSteps    string   `json:"disposition_next_steps"`
}

// CaseState is the single mutable record threaded through one case's workflow
// execution. It is created at orchestration start, exclusively owned by the
// in-flight graph run, and discarded at orchestration end. Fields other than
// CaseSheet start unset and are populated by the node that owns them;
// CaseSheet is set once and never mutated.
type CaseState struct {
	CaseSheet          string
	Criticality        Criticality
	Checklist          string
	Verified           Verified
	FallbackResponse   string
	History            string
	Actions            *EmergencyActions
	ResourceAllocation *ResourceAllocation
	HandoverSummary    string
	AppointmentDetails string
}

// NewCaseState creates the workflow state for one case submission.
func NewCaseState(caseSheet string) *CaseState {
	return &CaseState{CaseSheet: caseSheet}
}
