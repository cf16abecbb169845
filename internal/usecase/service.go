package usecase

import (
	"court-booking/internal/data/repository"
	"court-booking/internal/gateway"
	"court-booking/pkg/broker"
	"court-booking/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Payment   PaymentService
	Reconcile ReconcileService
	Webhook   WebhookService
	QueueSync QueueSyncService
}

func NewService(
	repo *repository.Repository,
	gw gateway.CheckoutGateway,
	publisher broker.Publisher,
	config *utils.Config,
	log *zap.Logger,
) *Service {
	queueSync := NewQueueSyncService(repo, log)
	reconcile := NewReconcileService(repo, gw, queueSync, publisher, config, log)

	return &Service{
		Payment:   NewPaymentService(repo, gw, config, log),
		Reconcile: reconcile,
		Webhook:   NewWebhookService(repo, reconcile, config, log),
		QueueSync: queueSync,
	}
}
