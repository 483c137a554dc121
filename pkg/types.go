package pkg

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity anchor for a contact.  One row exists per phone
// number; it is created on first inbound message and soft-deactivated
// rather than deleted.
type User struct {
	ID                   uuid.UUID  `json:"id"`
	PhoneNumber          string     `json:"phone_number"`
	Name                 *string    `json:"name,omitempty"`
	PreferredLanguage    string     `json:"preferred_language"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	Active               bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	LastInteractionAt    *time.Time `json:"last_interaction_at,omitempty"`
}

// Direction describes who authored a message: the contact or the bot.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one inbound or outbound unit of conversation.  Messages are
// immutable after creation; the only later write is the idempotent intent
// enrichment.  DeliveryID is the transport's message identifier and is the
// deduplication key: unique when present, absent on outbound messages.
type Message struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Direction  Direction `json:"direction"`
	Body       string    `json:"body"`
	MediaURLs  []string  `json:"media_urls,omitempty"`
	Intent     *string   `json:"intent,omitempty"`
	DeliveryID *string   `json:"delivery_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Delivery is one webhook invocation from the transport layer.  The
// transport retries deliveries, so the same DeliveryID may arrive more
// than once.
type Delivery struct {
	DeliveryID string   `json:"delivery_id"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Body       string   `json:"body"`
	MediaURLs  []string `json:"media_urls,omitempty"`
}

// IntakeStatus reports whether a delivery was newly recorded or had been
// seen before.
type IntakeStatus string

const (
	StatusRecorded  IntakeStatus = "recorded"
	StatusDuplicate IntakeStatus = "duplicate"
)

// IntakeResult is the outcome of ingesting one delivery.  On a duplicate,
// InboundMessageID points at the previously recorded message and nothing
// else is set.  ReplyFailed marks the partial-success case where the
// inbound message is durable but no reply was produced.
type IntakeResult struct {
	Status            IntakeStatus `json:"status"`
	InboundMessageID  uuid.UUID    `json:"inbound_message_id"`
	OutboundMessageID *uuid.UUID   `json:"outbound_message_id,omitempty"`
	ReplyText         string       `json:"reply_text,omitempty"`
	ReplyFailed       bool         `json:"reply_failed,omitempty"`
}

// AppointmentStatus tracks an appointment through its lifecycle.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a scheduled visit for a user.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	AppointmentDate time.Time         `json:"appointment_date"`
	AppointmentType string            `json:"appointment_type,omitempty"`
	DoctorName      string            `json:"doctor_name,omitempty"`
	ClinicName      string            `json:"clinic_name,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Status          AppointmentStatus `json:"status"`
	ReminderSent    bool              `json:"reminder_sent"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Medication is a drug a user is taking.  Times holds the dose times of
// day as free-form strings (e.g. "08:00").
type Medication struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Dosage       string     `json:"dosage,omitempty"`
	Frequency    string     `json:"frequency,omitempty"`
	Times        []string   `json:"times,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Active       bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SymptomLog records symptoms a user reported in one interaction.
type SymptomLog struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Symptoms        string    `json:"symptoms"`
	Severity        string    `json:"severity,omitempty"`
	Analysis        string    `json:"analysis,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
