package models

// Application statuses.
const (
	ApplicationStatusSubmitted      = "submitted"
	ApplicationStatusPrescreening   = "prescreening"
	ApplicationStatusPrescreened    = "prescreened"
	ApplicationStatusStaffReview    = "staff_review"
	ApplicationStatusTestSent       = "test_sent"
	ApplicationStatusTestInProgress = "test_in_progress"
	ApplicationStatusTestSubmitted  = "test_submitted"
	ApplicationStatusTestAssessed   = "test_assessed"
	ApplicationStatusApproved       = "approved"
	ApplicationStatusRejected       = "rejected"
	ApplicationStatusWaitlisted     = "waitlisted"
	ApplicationStatusInfoRequested  = "info_requested"
	ApplicationStatusArchived       = "archived"
)

// Combination statuses.
const (
	CombinationStatusPending         = "pending"
	CombinationStatusTestAssigned    = "test_assigned"
	CombinationStatusNoTestAvailable = "no_test_available"
	CombinationStatusTestSent        = "test_sent"
	CombinationStatusTestSubmitted   = "test_submitted"
	CombinationStatusAssessed        = "assessed"
	CombinationStatusApproved        = "approved"
	CombinationStatusRejected        = "rejected"
	CombinationStatusSkipped         = "skipped"
)

// Test submission statuses.
const (
	SubmissionStatusSent       = "sent"
	SubmissionStatusViewed     = "viewed"
	SubmissionStatusDraftSaved = "draft_saved"
	SubmissionStatusSubmitted  = "submitted"
	SubmissionStatusAssessed   = "assessed"
	SubmissionStatusExpired    = "expired"
)

// Rejection email workflow states.
const (
	RejectionEmailQueued      = "queued"
	RejectionEmailSent        = "sent"
	RejectionEmailIntercepted = "intercepted"
)

// OpenSubmissionStatuses lists the statuses in which a token still accepts drafts and submissions.
var OpenSubmissionStatuses = []string{SubmissionStatusSent, SubmissionStatusViewed, SubmissionStatusDraftSaved}

// StaffDecisionStatuses are the statuses staff may write directly from any review point.
var StaffDecisionStatuses = []string{
	ApplicationStatusApproved,
	ApplicationStatusRejected,
	ApplicationStatusWaitlisted,
	ApplicationStatusInfoRequested,
	ApplicationStatusArchived,
}

var applicationTransitions = map[string][]string{
	ApplicationStatusSubmitted:    {ApplicationStatusPrescreening},
	ApplicationStatusPrescreening: {ApplicationStatusPrescreened, ApplicationStatusStaffReview, ApplicationStatusRejected},
	ApplicationStatusPrescreened:  {ApplicationStatusTestSent, ApplicationStatusStaffReview},
	ApplicationStatusTestSent: {
		ApplicationStatusTestInProgress, ApplicationStatusTestSubmitted, ApplicationStatusArchived,
		ApplicationStatusTestAssessed, ApplicationStatusStaffReview, ApplicationStatusRejected,
	},
	ApplicationStatusTestInProgress: {
		ApplicationStatusTestSubmitted, ApplicationStatusArchived,
		ApplicationStatusTestAssessed, ApplicationStatusStaffReview, ApplicationStatusRejected,
	},
	ApplicationStatusTestSubmitted: {
		ApplicationStatusTestInProgress,
		ApplicationStatusTestAssessed, ApplicationStatusStaffReview, ApplicationStatusRejected,
	},
	ApplicationStatusStaffReview:   {ApplicationStatusPrescreening, ApplicationStatusTestSent},
	ApplicationStatusInfoRequested: {ApplicationStatusPrescreening},
}

// CanTransition reports whether an application may move from one status to another.
// Staff decisions are reachable from every status other than themselves.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	for _, status := range StaffDecisionStatuses {
		if status == to {
			return true
		}
	}
	for _, next := range applicationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which the target status is reachable.
func SourcesFor(to string) []string {
	sources := make([]string, 0, len(applicationTransitions))
	for _, from := range AllApplicationStatuses() {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// AllApplicationStatuses enumerates the application status set.
func AllApplicationStatuses() []string {
	return []string{
		ApplicationStatusSubmitted, ApplicationStatusPrescreening, ApplicationStatusPrescreened,
		ApplicationStatusStaffReview, ApplicationStatusTestSent, ApplicationStatusTestInProgress,
		ApplicationStatusTestSubmitted, ApplicationStatusTestAssessed, ApplicationStatusApproved,
		ApplicationStatusRejected, ApplicationStatusWaitlisted, ApplicationStatusInfoRequested,
		ApplicationStatusArchived,
	}
}

// IsTerminalCombinationStatus reports whether no further automatic step applies to a combination.
func IsTerminalCombinationStatus(status string) bool {
	switch status {
	case CombinationStatusApproved, CombinationStatusRejected, CombinationStatusAssessed,
		CombinationStatusSkipped, CombinationStatusNoTestAvailable:
		return true
	default:
		return false
	}
}

// IsOpenSubmissionStatus reports whether the token window is still open for the status.
func IsOpenSubmissionStatus(status string) bool {
	for _, open := range OpenSubmissionStatuses {
		if open == status {
			return true
		}
	}
	return false
}

// AggregateApplicationStatus derives the application status implied by its combination statuses.
// The second return value is false when there are no combinations to aggregate.
func AggregateApplicationStatus(statuses []string) (string, bool) {
	if len(statuses) == 0 {
		return "", false
	}

	allTerminal := true
	anyAssessed := false
	scored := 0
	rejected := 0
	for _, status := range statuses {
		if !IsTerminalCombinationStatus(status) {
			allTerminal = false
		}
		switch status {
		case CombinationStatusAssessed:
			anyAssessed = true
		case CombinationStatusSkipped, CombinationStatusNoTestAvailable:
			continue
		}
		scored++
		if status == CombinationStatusRejected {
			rejected++
		}
	}

	switch {
	case !allTerminal:
		return ApplicationStatusTestInProgress, true
	case anyAssessed:
		return ApplicationStatusStaffReview, true
	case scored > 0 && rejected == scored:
		return ApplicationStatusRejected, true
	default:
		return ApplicationStatusTestAssessed, true
	}
}
