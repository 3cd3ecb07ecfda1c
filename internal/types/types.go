// Package types defines core data structures for mailtriage.
package types

// Category is a triage label from the fixed category set.
type Category string

// Category constants, in declared order. Order matters: when a model completion
// mentions several categories, the earliest one in this list wins.
const (
	CategoryActionRequired         Category = "Action Required"
	CategoryDeadlineApproaching    Category = "Deadline Approaching"
	CategoryMeeting                Category = "Meeting / Calendar Event"
	CategoryFollowUp               Category = "Follow-Up Needed"
	CategoryUpdates                Category = "Updates / Notifications"
	CategoryBilling                Category = "Billing / Invoice"
	CategoryReports                Category = "Reports / Summaries"
	CategoryPromotional            Category = "Promotional Offers"
	CategorySubscription           Category = "Subscription Updates"
	CategorySpam                   Category = "Spam"
	CategoryPhishing               Category = "Phishing / Unsafe"
	CategoryUnrecognizedSender     Category = "Unrecognized Sender"
	CategoryPersonal               Category = "Personal"
	CategoryJobs                   Category = "Job Applications / Careers"
	CategoryInternalCommunications Category = "Internal Communications"
	CategorySocial                 Category = "Social / Networking"

	// CategoryOther is the fallback when nothing else matches.
	CategoryOther Category = "Other"
)

// Categories is the fixed, ordered category set (without the fallback).
var Categories = []Category{
	CategoryActionRequired,
	CategoryDeadlineApproaching,
	CategoryMeeting,
	CategoryFollowUp,
	CategoryUpdates,
	CategoryBilling,
	CategoryReports,
	CategoryPromotional,
	CategorySubscription,
	CategorySpam,
	CategoryPhishing,
	CategoryUnrecognizedSender,
	CategoryPersonal,
	CategoryJobs,
	CategoryInternalCommunications,
	CategorySocial,
}

// AllLabels returns every label the triage run may apply, fallback included.
func AllLabels() []Category {
	labels := make([]Category, 0, len(Categories)+1)
	labels = append(labels, Categories...)
	return append(labels, CategoryOther)
}

// IsValidCategory checks if c is one of the 16 categories or the fallback.
func IsValidCategory(c Category) bool {
	if c == CategoryOther {
		return true
	}
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Header is a single message header, kept in message order.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Part is one MIME part of a multipart body. Data is base64url-encoded.
type Part struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"`
	Parts    []Part `json:"parts,omitempty"`
}

// Body is either a SinglePart or a MultiPart.
type Body interface {
	isBody()
}

// SinglePart is a message body without a parts list.
type SinglePart struct {
	Data string `json:"data,omitempty"`
}

// MultiPart is a message body made of ordered MIME parts.
type MultiPart struct {
	Parts []Part `json:"parts"`
}

func (SinglePart) isBody() {}
func (MultiPart) isBody()  {}

// RawMessage is a message as delivered by a mailbox backend.
type RawMessage struct {
	ID      string   `json:"id"`
	Headers []Header `json:"headers"`
	Body    Body     `json:"body,omitempty"`
}

// MessageOutcome is the per-message result of a triage run.
type MessageOutcome struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject,omitempty"`
	Category Category `json:"category,omitempty"`
	Labeled  bool     `json:"labeled"`
	Error    string   `json:"error,omitempty"`
}

// RunSummary holds the result of one triage run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	Window    string           `json:"window"`
	Found     int              `json:"found"`
	Processed int              `json:"processed"`
	Labeled   int              `json:"labeled"`
	Failed    int              `json:"failed"`
	Messages  []MessageOutcome `json:"messages"`
}
