package store

import (
	"context"
	"encoding/json"
	"fmt"

	"voicedesk/app/service/fault"
	"voicedesk/app/service/orchestrator"
)

func (s *Store) RecordBooking(ctx context.Context, rec orchestrator.BookingRecord) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (customer_name, service_required, phone_number, date_of_appointment, time, transcript)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.CustomerName, rec.ServiceRequired, rec.PhoneNumber,
		rec.AppointmentDate, rec.AppointmentTime, rec.Transcript,
	).Scan(&id)
	if err != nil {
		return 0, fault.New(fault.CodePersistence, "failed to insert booking: %w", err)
	}

	return id, nil
}

func (s *Store) RecordComplaint(ctx context.Context, rec orchestrator.ComplaintRecord) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO complaints (customer_name, phone_number, service, transcript, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.CustomerName, rec.PhoneNumber, rec.Service, rec.Transcript, rec.Summary,
	).Scan(&id)
	if err != nil {
		return 0, fault.New(fault.CodePersistence, "failed to insert complaint: %w", err)
	}

	return id, nil
}

func (s *Store) RecordInquiry(ctx context.Context, rec orchestrator.InquiryRecord) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO inquiries (customer_name, service_name, phone_number, transcript)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rec.CustomerName, rec.ServiceName, rec.PhoneNumber, rec.Transcript,
	).Scan(&id)
	if err != nil {
		return 0, fault.New(fault.CodePersistence, "failed to insert inquiry: %w", err)
	}

	return id, nil
}

func (s *Store) RecordFeedback(ctx context.Context, rec orchestrator.FeedbackRecord) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO feedback (customer_name, service_name, phone_number, transcript, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.CustomerName, rec.ServiceName, rec.PhoneNumber, rec.Transcript, rec.Summary,
	).Scan(&id)
	if err != nil {
		return 0, fault.New(fault.CodePersistence, "failed to insert feedback: %w", err)
	}

	return id, nil
}

func (s *Store) RecordConversation(ctx context.Context, rec orchestrator.ConversationRecord) (int64, error) {
	transcript, err := json.Marshal(rec.Messages)
	if err != nil {
		return 0, fmt.Errorf("failed to encode transcript: %w", err)
	}

	var id int64

	err = s.pool.QueryRow(ctx, `
		INSERT INTO conversations (conversation_id, phone_number, category, messages)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rec.ConversationID, rec.CallerID, rec.Category, transcript,
	).Scan(&id)
	if err != nil {
		return 0, fault.New(fault.CodePersistence, "failed to insert conversation: %w", err)
	}

	return id, nil
}
