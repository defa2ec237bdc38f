package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voicedesk/app/client/llm"

	_ "embed"
)

//go:embed prompts/booking_extract.txt
var bookingExtractPrompt string

//go:embed prompts/booking_reply.txt
var bookingReplyPrompt string

//go:embed prompts/complaint_extract.txt
var complaintExtractPrompt string

//go:embed prompts/complaint_reply.txt
var complaintReplyPrompt string

//go:embed prompts/inquiry_extract.txt
var inquiryExtractPrompt string

//go:embed prompts/inquiry_reply.txt
var inquiryReplyPrompt string

//go:embed prompts/feedback_extract.txt
var feedbackExtractPrompt string

//go:embed prompts/feedback_reply.txt
var feedbackReplyPrompt string

// handle dispatches to the category handler. On a retry entry the
// validator feedback is appended to the query before re-extraction.
func (s *Service) handle(ctx context.Context, state State, in Input) State {
	query := state.RefinedQuery
	if state.Retries > 0 && state.ValidationFeedback != "" {
		query = fmt.Sprintf("%s\n\nA previous answer was rejected with this feedback: %s",
			query, state.ValidationFeedback)
	}

	switch state.Category {
	case CategoryBooking:
		return s.handleBooking(ctx, state, in, query)
	case CategoryComplaint:
		return s.handleComplaint(ctx, state, in, query)
	case CategoryFeedback:
		return s.handleFeedback(ctx, state, in, query)
	default:
		return s.handleInquiry(ctx, state, in, query)
	}
}

func (s *Service) extract(ctx context.Context, systemPrompt, query string, out any) error {
	raw, err := s.handler.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: query},
	}, llm.Options{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		return err
	}

	if err = json.Unmarshal([]byte(trimModelJSON(raw)), out); err != nil {
		return fmt.Errorf("failed to parse extraction: %w", err)
	}

	return nil
}

func (s *Service) reply(ctx context.Context, template string, values map[string]any, query string) (string, error) {
	raw, err := s.handler.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: renderTemplate(template, values)},
		{Role: llm.RoleUser, Content: query},
	}, llm.Options{Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(raw), nil
}

type bookingDetails struct {
	CustomerName    string `json:"customerName"`
	ServiceRequired string `json:"serviceRequired"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
}

func (s *Service) handleBooking(ctx context.Context, state State, in Input, query string) State {
	var details bookingDetails
	if err := s.extract(ctx, bookingExtractPrompt, query, &details); err != nil {
		state.Response = "I apologize, but I couldn't process your booking request. Could you please provide your name, the service you need, and when you'd like to schedule it?"
		return state.withError("Booking handler error: " + err.Error())
	}

	response, err := s.reply(ctx, bookingReplyPrompt, map[string]any{
		"service": details.ServiceRequired,
		"date":    details.AppointmentDate,
		"time":    details.AppointmentTime,
	}, query)
	if err != nil {
		state.Response = "I apologize, but I couldn't process your booking request. Could you please try again?"
		return state.withError("Booking handler error: " + err.Error())
	}

	state.CustomerName = details.CustomerName
	state.Service = details.ServiceRequired
	state.Response = response
	state.Action = &Action{
		Kind: CategoryBooking,
		Booking: &BookingRecord{
			CustomerName:    details.CustomerName,
			ServiceRequired: details.ServiceRequired,
			PhoneNumber:     in.CallerID,
			AppointmentDate: details.AppointmentDate,
			AppointmentTime: details.AppointmentTime,
			Transcript:      state.OriginalQuery,
		},
	}

	return state
}

type complaintDetails struct {
	CustomerName string `json:"customerName"`
	Service      string `json:"service"`
	Summary      string `json:"summary"`
}

func (s *Service) handleComplaint(ctx context.Context, state State, in Input, query string) State {
	var details complaintDetails
	if err := s.extract(ctx, complaintExtractPrompt, query, &details); err != nil {
		state.Response = "I apologize, but I couldn't process your complaint. Could you please provide your name and tell me more about the issue you're experiencing?"
		return state.withError("Complaint handler error: " + err.Error())
	}

	response, err := s.reply(ctx, complaintReplyPrompt, map[string]any{
		"service": details.Service,
	}, query)
	if err != nil {
		state.Response = "I apologize, but I couldn't process your complaint. Could you please try again?"
		return state.withError("Complaint handler error: " + err.Error())
	}

	state.CustomerName = details.CustomerName
	state.Service = details.Service
	state.Response = response
	state.Action = &Action{
		Kind: CategoryComplaint,
		Complaint: &ComplaintRecord{
			CustomerName: details.CustomerName,
			PhoneNumber:  in.CallerID,
			Service:      details.Service,
			Transcript:   state.OriginalQuery,
			Summary:      details.Summary,
		},
	}

	return state
}

type inquiryDetails struct {
	CustomerName string `json:"customerName"`
	ServiceName  string `json:"serviceName"`
}

func (s *Service) handleInquiry(ctx context.Context, state State, in Input, query string) State {
	var details inquiryDetails
	if err := s.extract(ctx, inquiryExtractPrompt, query, &details); err != nil {
		state.Response = "I apologize, but I couldn't process your inquiry. Could you please clarify what specific information or service you're interested in?"
		return state.withError("Inquiry handler error: " + err.Error())
	}

	if details.CustomerName == "" {
		details.CustomerName = "Unknown"
	}

	response, err := s.reply(ctx, inquiryReplyPrompt, map[string]any{
		"service": details.ServiceName,
	}, query)
	if err != nil {
		state.Response = "I apologize, but I couldn't process your inquiry. Could you please try again?"
		return state.withError("Inquiry handler error: " + err.Error())
	}

	state.CustomerName = details.CustomerName
	state.Service = details.ServiceName
	state.Response = response
	state.Action = &Action{
		Kind: CategoryInquiry,
		Inquiry: &InquiryRecord{
			CustomerName: details.CustomerName,
			ServiceName:  details.ServiceName,
			PhoneNumber:  in.CallerID,
			Transcript:   state.OriginalQuery,
		},
	}

	return state
}

type feedbackDetails struct {
	CustomerName string `json:"customerName"`
	ServiceName  string `json:"serviceName"`
	Summary      string `json:"summary"`
}

func (s *Service) handleFeedback(ctx context.Context, state State, in Input, query string) State {
	var details feedbackDetails
	if err := s.extract(ctx, feedbackExtractPrompt, query, &details); err != nil {
		state.Response = "Thank you for your feedback. We appreciate you taking the time to share your thoughts with us. Is there anything specific about our services you'd like to comment on?"
		return state.withError("Feedback handler error: " + err.Error())
	}

	response, err := s.reply(ctx, feedbackReplyPrompt, map[string]any{
		"service": details.ServiceName,
	}, query)
	if err != nil {
		state.Response = "Thank you for your feedback. We appreciate you taking the time to share your thoughts with us."
		return state.withError("Feedback handler error: " + err.Error())
	}

	state.CustomerName = details.CustomerName
	state.Service = details.ServiceName
	state.Response = response
	state.Action = &Action{
		Kind: CategoryFeedback,
		Feedback: &FeedbackRecord{
			CustomerName: details.CustomerName,
			ServiceName:  details.ServiceName,
			PhoneNumber:  in.CallerID,
			Transcript:   state.OriginalQuery,
			Summary:      details.Summary,
		},
	}

	return state
}
