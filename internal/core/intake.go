package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"healthbot/pkg"
	apperrors "healthbot/pkg/errors"
)

// Pipeline accepts inbound deliveries from the transport layer,
// deduplicates retried ones, resolves the sender to a user, persists the
// inbound message and produces an outbound reply.
//
// Per delivery identifier it behaves as a small state machine: an unseen
// identifier is recorded and replied to; an identifier seen before
// short-circuits to a duplicate acknowledgment without re-executing any
// side effect. The transport layer may therefore retry deliveries freely.
type Pipeline struct {
	Resolver  *IdentityResolver
	Messages  MessageStore
	Responder Responder
	Logger    *slog.Logger
}

// NewPipeline constructs an intake pipeline.
func NewPipeline(resolver *IdentityResolver, messages MessageStore, responder Responder, logger *slog.Logger) *Pipeline {
	return &Pipeline{Resolver: resolver, Messages: messages, Responder: responder, Logger: logger}
}

// Ingest processes one delivery.
//
// Storage failures before the inbound message is durable abort the whole
// operation with an UNAVAILABLE error; the caller retries the delivery and
// deduplication keeps the retry side-effect free. Failures after the
// inbound message is durable never roll it back: a responder failure turns
// into a recorded-but-unreplied result, and an outbound persist failure is
// surfaced alongside the partial result.
func (p *Pipeline) Ingest(ctx context.Context, d pkg.Delivery) (*pkg.IntakeResult, error) {
	if strings.TrimSpace(d.DeliveryID) == "" {
		return nil, apperrors.ErrEmptyDeliveryID
	}
	if strings.TrimSpace(d.From) == "" {
		return nil, apperrors.ErrEmptyContact
	}

	// Deduplicate by delivery identifier.
	existing, err := p.Messages.GetMessageByDeliveryID(ctx, d.DeliveryID)
	if err == nil {
		p.Logger.Info("duplicate delivery", "delivery_id", d.DeliveryID, "message_id", existing.ID)
		return &pkg.IntakeResult{Status: pkg.StatusDuplicate, InboundMessageID: existing.ID}, nil
	}
	if !errors.Is(err, apperrors.ErrMessageNotFound) {
		return nil, err
	}

	// Resolve the sender's identity.
	user, err := p.Resolver.Resolve(ctx, d.From)
	if err != nil {
		return nil, err
	}

	// Persist the inbound message.
	deliveryID := d.DeliveryID
	inbound := &pkg.Message{
		UserID:     user.ID,
		Direction:  pkg.DirectionInbound,
		Body:       d.Body,
		MediaURLs:  d.MediaURLs,
		DeliveryID: &deliveryID,
	}
	if err := p.Messages.CreateMessage(ctx, inbound); err != nil {
		if apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
			// A concurrent intake of the same delivery won between the
			// dedup check and the insert. Treat it like any replay.
			existing, err := p.Messages.GetMessageByDeliveryID(ctx, d.DeliveryID)
			if err != nil {
				return nil, err
			}
			return &pkg.IntakeResult{Status: pkg.StatusDuplicate, InboundMessageID: existing.ID}, nil
		}
		return nil, err
	}

	result := &pkg.IntakeResult{Status: pkg.StatusRecorded, InboundMessageID: inbound.ID}

	// Obtain the reply. The inbound message is durable at this
	// point, so a responder failure must not fail the intake.
	reply, err := p.Responder.Respond(ctx, inbound, user)
	if err != nil {
		p.Logger.Warn("responder failed, message recorded without reply",
			"delivery_id", d.DeliveryID, "message_id", inbound.ID, "error", err)
		result.ReplyFailed = true
		return result, nil
	}
	if reply == "" {
		return result, nil
	}

	// Persist the outbound reply. Outbound messages carry no
	// delivery identifier; they are never retried inputs.
	outbound := &pkg.Message{
		UserID:    user.ID,
		Direction: pkg.DirectionOutbound,
		Body:      reply,
	}
	if err := p.Messages.CreateMessage(ctx, outbound); err != nil {
		result.ReplyText = reply
		result.ReplyFailed = true
		return result, err
	}

	result.OutboundMessageID = &outbound.ID
	result.ReplyText = reply
	p.Logger.Info("delivery recorded",
		"delivery_id", d.DeliveryID, "user_id", user.ID,
		"inbound_id", inbound.ID, "outbound_id", outbound.ID)
	return result, nil
}
