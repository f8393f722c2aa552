package calendar

import (
	"regexp"
	"strings"

	calendar "google.golang.org/api/calendar/v3"
)

// MedicalKind classifies a medical event.
type MedicalKind string

const (
	KindAppointment MedicalKind = "appointment"
	KindMedication  MedicalKind = "medication"
	KindReminder    MedicalKind = "reminder"
)

// medicalPhrases match anywhere in the summary or description.
var medicalPhrases = []string{
	"dr.", "doctor", "physician", "appointment", "checkup", "consultation",
	"blood work", "x-ray", "medication", "prescription", "💊",
	"follow-up", "followup", "surgery", "procedure",
	"physical", "examination", "clinic", "hospital",
	"cardiology", "dermatology", "orthopedics", "neurology",
	"oncology", "pediatrics", "psychiatry", "radiology",
	"therapy", "therapist", "counseling", "psychologist",
	"dentist", "dental", "optometrist", "eye doctor",
	"chiropractor", "acupuncture",
	"vaccination", "vaccine", "immunization",
	"biopsy", "colonoscopy", "endoscopy", "mammogram",
	"ultrasound", "echocardiogram", "stress test",
	"diabetes", "hypertension", "asthma", "arthritis",
	"pain management", "rehabilitation",
	"urgent care", "walk-in clinic",
}

// Short keywords only match as whole words so "ct" does not hit "project".
var medicalWords = regexp.MustCompile(`\b(lab|test|scan|mri|ct|pill|dose|exam|rehab|emergency)\b`)

var (
	appointmentPhrases = []string{
		"dr.", "doctor", "physician", "appointment", "checkup", "consultation",
		"follow-up", "followup", "physical", "examination",
	}
	medicationWords = regexp.MustCompile(`\b(medication|med|meds|pill|pills|dose|prescription)\b|💊`)
	timeOfDayWords  = regexp.MustCompile(`\b(morning|afternoon|evening|night|bedtime)\b`)
	takeWords       = regexp.MustCompile(`\b(med|meds|pill|dose|take)\b`)
	visitWords      = regexp.MustCompile(`\b(visit|see|meet|call)\b`)
	clinicianWords  = regexp.MustCompile(`\b(dr|doctor|nurse|specialist)\b`)
	recurringWords  = regexp.MustCompile(`\b(weekly|monthly|daily|recurring)\b`)
	monitorWords    = regexp.MustCompile(`\b(check|monitor|test|med)\b`)
)

// IsMedicalEvent reports whether the event's summary or description looks
// like an appointment, medication or health reminder.
func IsMedicalEvent(event *calendar.Event) bool {
	if event == nil {
		return false
	}
	summary := strings.ToLower(event.Summary)
	text := summary + "\n" + strings.ToLower(event.Description)

	if containsAny(text, medicalPhrases) || medicalWords.MatchString(text) {
		return true
	}

	switch {
	case timeOfDayWords.MatchString(summary) && takeWords.MatchString(summary):
		return true
	case visitWords.MatchString(summary) && clinicianWords.MatchString(summary):
		return true
	case recurringWords.MatchString(summary) && monitorWords.MatchString(summary):
		return true
	}
	return false
}

// ClassifyMedicalEvent returns the kind of a medical event, or "" when the
// event is not medical.
func ClassifyMedicalEvent(event *calendar.Event) MedicalKind {
	if !IsMedicalEvent(event) {
		return ""
	}
	text := strings.ToLower(event.Summary + "\n" + event.Description)
	switch {
	case medicationWords.MatchString(text):
		return KindMedication
	case containsAny(text, appointmentPhrases):
		return KindAppointment
	default:
		return KindReminder
	}
}

// FilterEvents returns the events for which keep returns true. The result
// is never nil.
func FilterEvents(events []*calendar.Event, keep func(*calendar.Event) bool) []*calendar.Event {
	out := make([]*calendar.Event, 0, len(events))
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
