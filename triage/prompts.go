package triage

// Checklist templates. The low-risk checklist requires two fields, the
// high-risk checklist four; verification checks the case sheet against
// whichever the triage branch selected.
const (
	lowRiskChecklist = `Patient Details
Presenting Complaint`

	highRiskChecklist = `Patient Details
Medical History
Current medications
Vital Signs`
)

const triageInstructions = "You are an experienced emergency-room triage nurse."

// triagePromptTmpl expects the case sheet. The precedence rule is explicit:
// any matching high-risk indicator outranks every low-risk indicator.
const triagePromptTmpl = `### TASK
From the free-text patient note provided, decide whether the patient belongs in the **HighRisk** or **LowRisk** triage zone.

### DECISION RULES
(Apply the most severe rule that matches; if several match, pick the highest-priority zone. If ANY HighRisk indicator is present, classify HighRisk regardless of co-occurring LowRisk indicators.)

**HighRisk (Immediate)**
- Patient is **unconscious** or **confused**
- ECG shows **ventricular fibrillation** or **ST depression**
- Blood pressure: systolic < 90 mmHg OR diastolic < 60 mmHg
- Vitals explicitly described as **unstable**
- Described **pain** or **chest pain**

**LowRisk (Non-urgent)**
- None of the HighRisk conditions apply
- ECG described as **normal**
- Symptoms limited to **mild headache** or request for **routine check-up**
- Vitals explicitly described as **stable**

### RESPONSE FORMAT
Return a single JSON object: {"criticality": "HighRisk"} or {"criticality": "LowRisk"}. No other text.

### PATIENT NOTE
<<<
%s
>>>`

// verificationPromptTmpl expects the case sheet and the checklist items.
const verificationPromptTmpl = `Please review the submitted case summary.

Patient Case Summary:
%s

CheckList:
%s

Verify that every checklist item is fulfilled by the case sheet.

### RESPONSE FORMAT
Return a single JSON object:
{"verified": "yes"} when all items are fulfilled, or
{"verified": "no", "fallback_response": "<clear instructions telling the submitter which information is missing and how to resubmit>"}.
No other text.`

// fallbackDefault is used when verification fails but the model supplied no
// guidance, so the terminal reducer always has a payload.
const fallbackDefault = "The submitted case sheet is missing required information. " +
	"Please resubmit with every checklist item filled in: patient details, presenting complaint, " +
	"and for high-risk cases the medical history, current medications and vital signs."

// emergencyChecklistPromptTmpl expects the clinical history and case sheet.
const emergencyChecklistPromptTmpl = `Instructions:

Reference historical treatment details only to inform clinical context and best practices.
Summarize the patient's presenting complaint, assessment, interventions, and disposition in a clear, structured format.
Provide a checklist of key emergency actions taken.
Highlight any notable observations or changes in patient status.
Make recommendations for immediate next steps or disposition (admit, discharge, observation, etc.).
Exclude all personal information and focus solely on clinical decision-making.

Clinical History:
%s

Patient CaseSheet:
%s

### RESPONSE FORMAT
Return a single, well-formed JSON object with exactly these keys:
{
  "department": string,
  "presenting_complaint": string,
  "assessment": string,
  "interventions_management": [string],
  "checklist_actions_taken": [string],
  "clinical_notes": string,
  "disposition_next_steps": string
}
Use arrays of strings where multiple items are appropriate. All values must be strings or arrays of strings. No other text.`

const resourceInstructions = "You are a hospital operations assistant responsible for managing emergency patient admissions."

// resourcePromptTmpl expects the resource availability JSON, the hospital
// list JSON and the emergency sheet JSON.
const resourcePromptTmpl = `### TASK
Based on the three JSON inputs below:

1. resource_availability — %s
2. hospital_availability — %s
3. ActionRequired — %s

Your job is to:

- **Check if the current hospital can admit the patient** based on available beds or stretchers.
- If **either beds or stretchers are available**, assign the resource (bed preferred over stretcher) and one available doctor.
- If **neither beds nor stretchers are available**, suggest the **best-rated alternative hospital** that has the required department.

Do not make up any hospitals or departments not present in the input. Work only with the given data.

### RESPONSE FORMAT
Return a single JSON object with exactly these keys:
{
  "admission_status": "Accepted" or "Redirected",
  "assigned_resource": [{"type": "bed" or "stretcher", "number": string}],
  "assigned_doctor": string,
  "reason": string or null,
  "suggested_hospital": string
}
When admission_status is "Accepted", assigned_resource must contain at least one entry. No other text.`

// summaryPromptTmpl expects the resource allocation JSON and the action plan JSON.
const summaryPromptTmpl = `You are to generate a structured, well-formatted clinical handover summary for a newly admitted patient, using the following information:
[ResourceAllocated]
%s

[ActionNeedToTaken]
%s

Resource Allocation Data:

Admission Status
Bed Assignment
Assigned Doctor
Suggested Hospital (if any)

Clinical Action & Assessment Data:

Department and Presenting Complaint
Clinical Assessment (including vitals, risk factors, and differential diagnosis)
Interventions and Management steps already taken
Checklist of Actions Completed
Clinical Notes (including allergies and stability)
Disposition and Next Steps

Requirements for the Output:

Begin with a brief patient introduction (including status, assigned doctor, and location).
Clearly structure sections as follows (use bold headings):
Presenting Complaint
Assessment and Differential Diagnosis
Current Status and Vital Signs
Interventions and Actions Taken
Clinical Notes
Disposition and Plan
Highlight any important allergy or safety concerns.
Use bullet points where appropriate for readability.
Be concise but comprehensive, suitable for handover to another clinician.`

// appointmentPromptTmpl expects the resource availability JSON and the case sheet.
const appointmentPromptTmpl = `You are provided with a patient case sheet containing relevant clinical and demographic information. Based on this, generate a structured and professional doctor appointment creation note. Your output should be formatted for use in a hospital or clinic setting.

Output Structure:
strictly follow the output format

Doctor Appointment Request

Patient Name: [Insert if available, otherwise leave blank]
Age/Gender: [Insert if available, otherwise leave blank]
Assigned Doctor: [e.g., Dr. Anil Menon]
Department: [e.g., Emergency Medicine]
Appointment Date & Time: [Insert date/time or leave blank for scheduling]
ResourceAvailable:
%s
Presenting Complaint:
%s`
