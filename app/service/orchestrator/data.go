package orchestrator

import (
	"context"

	"voicedesk/app/client/llm"
	"voicedesk/app/service/history"
)

type Category string

const (
	CategoryBooking   Category = "booking"
	CategoryComplaint Category = "complaint"
	CategoryInquiry   Category = "inquiry"
	CategoryFeedback  Category = "feedback"
)

var categories = []Category{CategoryBooking, CategoryComplaint, CategoryInquiry, CategoryFeedback}

// Completer is the single capability every node depends on.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

type BookingRecord struct {
	CustomerName    string
	ServiceRequired string
	PhoneNumber     string
	AppointmentDate string
	AppointmentTime string
	Transcript      string
}

type ComplaintRecord struct {
	CustomerName string
	PhoneNumber  string
	Service      string
	Transcript   string
	Summary      string
}

type InquiryRecord struct {
	CustomerName string
	ServiceName  string
	PhoneNumber  string
	Transcript   string
}

type FeedbackRecord struct {
	CustomerName string
	ServiceName  string
	PhoneNumber  string
	Transcript   string
	Summary      string
}

type ConversationRecord struct {
	ConversationID string
	CallerID       string
	Category       string
	Messages       []history.Message
}

// Persister executes deferred persistence actions. Failures are recorded
// in the run's error list and never abort the conversation.
type Persister interface {
	RecordBooking(ctx context.Context, rec BookingRecord) (int64, error)
	RecordComplaint(ctx context.Context, rec ComplaintRecord) (int64, error)
	RecordInquiry(ctx context.Context, rec InquiryRecord) (int64, error)
	RecordFeedback(ctx context.Context, rec FeedbackRecord) (int64, error)
	RecordConversation(ctx context.Context, rec ConversationRecord) (int64, error)
}

// Action is the deferred persistence work produced by a category handler.
// Exactly one payload matching Kind is set.
type Action struct {
	Kind      Category
	Booking   *BookingRecord
	Complaint *ComplaintRecord
	Inquiry   *InquiryRecord
	Feedback  *FeedbackRecord
}

// Input describes one user turn.
type Input struct {
	Query    string
	CallerID string
	History  []history.Message
}

// Result is what one orchestration run produced.
type Result struct {
	RefinedQuery string
	Category     Category
	Response     string
	IsValid      bool
	CustomerName string
	Service      string
	ActionResult string
	Errors       []string
}
