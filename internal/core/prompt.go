package core

import "fmt"

const extractionSystemInstruction = "Return ONLY valid JSON. No prose."

// buildExtractionPrompt asks for the official EMS report fields as strict
// JSON, including the pre-formatted English report text (form_en). The schema
// is opaque to the rest of the system; it is stored and returned whole.
func buildExtractionPrompt(transcript string) string {
	return fmt.Sprintf(`You are a paramedic assistant for field triage in Makkah.
Read the conversation transcript (English).
Extract structured data to fill the official EMS report and provide triage severity + action.

Return ONLY valid JSON with this schema:

{
  "patient": {
    "name": "string|null",
    "gender": "Male|Female|null",
    "age": "string|null",
    "nationality": "Saudi|Non-Saudi|null",
    "ID": "string|null"
  },
  "scene": {
    "date": "YYYY-MM-DD",
    "time": "HH:MM",
    "caller_phone": "string|null",
    "location": "string|null",
    "case_code": "string|null",
    "case_type": "Medical|Trauma|null",
    "mechanism": "Fall|Traffic Accident|Stab|Burn|Choking|Other|null"
  },
  "chief_complaint": "string",
  "history": {
    "onset": "string|null",
    "duration": "string|null",
    "associated_symptoms": ["string", "..."],
    "allergies": "string|null",
    "medications": "string|null",
    "past_history": "string|null",
    "last_meal": "string|null",
    "events": "string|null"
  },
  "vitals": {
    "bp_systolic": "number|null",
    "bp_diastolic": "number|null",
    "hr": "number|null",
    "rr": "number|null",
    "spo2": "number|null",
    "temp": "number|null",
    "gcs": "number|null",
    "pain_scale_0_10": "number|null"
  },
  "exam": "string|null",
  "interventions": ["string", "..."],
  "severity": "Very High|High|Medium|Low|Very Low",
  "recommendation": "Transfer to hospital|Treat on site",
  "reasoning": "Short rationale in English",
  "form_en": "A structured, sectioned, aligned English report as plain text."
}

Rules:
- If data is missing, use N/A or null (in JSON), but do not invent facts.
- High-risk red flags => Very High/High & Transfer.
- Stable minor issues => Treat on site if safe.

Transcript:
"""%s"""`, transcript)
}
