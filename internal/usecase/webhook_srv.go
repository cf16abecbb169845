package usecase

import (
	"context"
	"errors"
	"fmt"

	"court-booking/internal/data/repository"
	"court-booking/internal/dto/response"
	"court-booking/internal/gateway"
	"court-booking/pkg/utils"

	"go.uber.org/zap"
)

// WebhookService authenticates provider deliveries and routes them to the
// reconciliation engine.
type WebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*response.WebhookResponse, error)
}

type webhookService struct {
	repo       *repository.Repository
	reconcile  ReconcileService
	secret     string
	production bool
	log        *zap.Logger
}

func NewWebhookService(repo *repository.Repository, reconcile ReconcileService, config *utils.Config, log *zap.Logger) WebhookService {
	return &webhookService{
		repo:       repo,
		reconcile:  reconcile,
		secret:     config.PayMongo.WebhookSecret,
		production: config.App.IsProduction(),
		log:        log.With(zap.String("service", "webhook")),
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, body []byte, signature string) (*response.WebhookResponse, error) {
	if err := s.verify(body, signature); err != nil {
		return nil, err
	}

	event, err := gateway.ParseEvent(body)
	if err != nil {
		s.log.Warn("Malformed webhook payload", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	resp := &response.WebhookResponse{
		Received:  true,
		EventID:   event.ID,
		EventType: event.Type,
	}

	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("resource_id", event.Resource.ID),
	)

	if event.ID != "" {
		first, err := s.repo.WebhookEvent.MarkProcessed(ctx, event.ID)
		if err != nil {
			// handling twice is safe, dropping the event is not
			log.Warn("Event dedupe unavailable, processing anyway", zap.Error(err))
		} else if !first {
			log.Info("Duplicate webhook delivery ignored")
			resp.Duplicate = true
			return resp, nil
		}
	}

	if err := s.dispatch(ctx, event); err != nil {
		if errors.Is(err, ErrNotFound) {
			// nothing of ours to update; a retry would not change that
			log.Warn("Webhook event does not match any payment")
			return resp, nil
		}

		if event.ID != "" {
			if forgetErr := s.repo.WebhookEvent.Forget(context.WithoutCancel(ctx), event.ID); forgetErr != nil {
				log.Warn("Failed to forget event after processing error", zap.Error(forgetErr))
			}
		}
		log.Error("Webhook processing failed", zap.Error(err))
		return nil, err
	}

	log.Info("Webhook processed")
	return resp, nil
}

// verify skips signature checks only for unconfigured non-production setups.
func (s *webhookService) verify(body []byte, signature string) error {
	if s.secret == "" {
		if s.production {
			s.log.Error("Webhook secret not configured in production, rejecting delivery")
			return ErrInvalidSignature
		}
		s.log.Warn("Webhook secret not configured, skipping signature verification")
		return nil
	}

	if err := gateway.VerifySignature(body, signature, s.secret); err != nil {
		s.log.Warn("Webhook signature rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func (s *webhookService) dispatch(ctx context.Context, event *gateway.Event) error {
	switch event.Type {
	case gateway.EventSourceChargeable:
		_, err := s.reconcile.Reconcile(ctx, event.Resource.ID)
		return err
	case gateway.EventPaymentPaid:
		_, err := s.reconcile.HandlePaymentPaid(ctx, event)
		return err
	case gateway.EventPaymentFailed:
		return s.reconcile.HandlePaymentFailed(ctx, event)
	default:
		s.log.Info("Ignoring unhandled webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}
