// Package triage implements the emergency-department case workflow: the
// node handlers of the triage/admission state machine, the bindings for the
// remote agents the workflow invokes, and the orchestrator that runs a case
// sheet end to end and reduces the terminal state to a single result.
//
// The workflow is a fixed graph. Triage classifies the case sheet, a
// risk-matched checklist gates it through verification, and high-risk cases
// proceed through case-history retrieval, an emergency action plan, and an
// admission decision before a handover summary. Low-risk verified cases get
// an appointment note instead. A failed verification terminates immediately
// with resubmission guidance.
package triage
