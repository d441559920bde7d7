package transport

// SectionWeight is the share each of the four sections contributes.
const SectionWeight = 25

// Presence records which sections a report links.
type Presence struct {
	Patient            bool
	InformedConsent    bool
	CareTransfer       bool
	SatisfactionSurvey bool
}

// Evaluate maps section presence to a completion percentage in [0,100].
// A report is complete only at 100.
func Evaluate(p Presence) (percentage int, complete bool) {
	for _, present := range []bool{p.Patient, p.InformedConsent, p.CareTransfer, p.SatisfactionSurvey} {
		if present {
			percentage += SectionWeight
		}
	}
	if percentage > 100 {
		percentage = 100
	}
	return percentage, percentage == 100
}

// StatusFor derives the status from the evaluator; it is recomputed on every
// save, so a completed report goes back to draft if a section is unlinked.
func StatusFor(complete bool) Status {
	if complete {
		return StatusCompleted
	}
	return StatusDraft
}
