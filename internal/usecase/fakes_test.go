package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"court-booking/internal/data/entity"
	"court-booking/internal/data/repository"
	"court-booking/internal/gateway"
	"court-booking/pkg/broker"
	"court-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// store is an in-memory ledger shared by the fake repositories. Conditional
// writes mirror the SQL guards of the real repositories.
type store struct {
	mu           sync.Mutex
	payments     map[uuid.UUID]*entity.Payment
	reservations map[uuid.UUID]*entity.Reservation
	sessions     map[uuid.UUID]*entity.QueueSession
	events       map[string]bool

	// failing reservation writes, keyed by reservation id
	failUpdate      map[uuid.UUID]error
	noopUpdates     map[uuid.UUID]int
	updateCalls     map[uuid.UUID]int
	metadataPatches map[uuid.UUID]map[string]any
}

func newStore() *store {
	return &store{
		payments:        map[uuid.UUID]*entity.Payment{},
		reservations:    map[uuid.UUID]*entity.Reservation{},
		sessions:        map[uuid.UUID]*entity.QueueSession{},
		events:          map[string]bool{},
		failUpdate:      map[uuid.UUID]error{},
		noopUpdates:     map[uuid.UUID]int{},
		updateCalls:     map[uuid.UUID]int{},
		metadataPatches: map[uuid.UUID]map[string]any{},
	}
}

func (s *store) repository() *repository.Repository {
	return &repository.Repository{
		Payment:      &fakePaymentRepo{s},
		Reservation:  &fakeReservationRepo{s},
		QueueSession: &fakeQueueSessionRepo{s},
		WebhookEvent: &fakeEventRepo{s},
	}
}

func (s *store) addPayment(p *entity.Payment) *entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
	return p
}

func (s *store) addReservation(r *entity.Reservation) *entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
	return r
}

func (s *store) addSession(q *entity.QueueSession) *entity.QueueSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[q.ID] = q
	return q
}

func (s *store) payment(id uuid.UUID) entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.payments[id]
}

func (s *store) reservation(id uuid.UUID) entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.reservations[id]
}

func (s *store) session(id uuid.UUID) entity.QueueSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[id]
}

func clonePayment(p *entity.Payment) *entity.Payment {
	c := *p
	return &c
}

func cloneReservation(r *entity.Reservation) *entity.Reservation {
	c := *r
	c.Metadata.PaymentStatusHistory = append([]string(nil), r.Metadata.PaymentStatusHistory...)
	return &c
}

// ==================== PAYMENTS ====================

type fakePaymentRepo struct{ s *store }

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.Reference == payment.Reference {
			return fmt.Errorf("duplicate reference %s", payment.Reference)
		}
	}
	r.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payments[id]; ok {
		return clonePayment(p), nil
	}
	return nil, nil
}

func (r *fakePaymentRepo) findOne(match func(*entity.Payment) bool) *entity.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *entity.Payment
	for _, p := range r.s.payments {
		if match(p) && (found == nil || p.CreatedAt.After(found.CreatedAt)) {
			found = p
		}
	}
	if found == nil {
		return nil
	}
	return clonePayment(found)
}

func (r *fakePaymentRepo) FindByExternalID(_ context.Context, externalID string) (*entity.Payment, error) {
	return r.findOne(func(p *entity.Payment) bool {
		return (p.ExternalID != nil && *p.ExternalID == externalID) || (p.SourceID != nil && *p.SourceID == externalID)
	}), nil
}

func (r *fakePaymentRepo) FindByReference(_ context.Context, reference string) (*entity.Payment, error) {
	return r.findOne(func(p *entity.Payment) bool { return p.Reference == reference }), nil
}

func (r *fakePaymentRepo) FindByMetadataReference(_ context.Context, reference string) (*entity.Payment, error) {
	return nil, nil
}

func (r *fakePaymentRepo) FindLatestByReservationID(_ context.Context, reservationID uuid.UUID) (*entity.Payment, error) {
	return r.findOne(func(p *entity.Payment) bool { return p.ReservationID == reservationID }), nil
}

func (r *fakePaymentRepo) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Payment
	for _, p := range r.s.payments {
		if p.Status == entity.PaymentStatusPending && p.Method != entity.PaymentMethodCash && p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
			out = append(out, clonePayment(p))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) AcquireLease(_ context.Context, id uuid.UUID, owner string, now time.Time, staleAfter time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != entity.PaymentStatusPending || p.LeaseActive(now, staleAfter) {
		return false, nil
	}
	p.ProcessingOwner = &owner
	p.ProcessingStartedAt = &now
	return true, nil
}

func (r *fakePaymentRepo) ReleaseLease(_ context.Context, id uuid.UUID, owner string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.payments[id]; ok && p.ProcessingOwner != nil && *p.ProcessingOwner == owner {
		p.ProcessingOwner = nil
		p.ProcessingStartedAt = nil
	}
	return nil
}

func (r *fakePaymentRepo) MarkCompleted(_ context.Context, id uuid.UUID, chargeID string, paidAt time.Time, providerPayment []byte) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != entity.PaymentStatusPending {
		return false, nil
	}
	p.Status = entity.PaymentStatusCompleted
	if chargeID != "" {
		p.ExternalID = &chargeID
	}
	p.PaidAt = &paidAt
	if len(providerPayment) > 0 {
		p.Metadata.ProviderPayment = json.RawMessage(providerPayment)
	}
	return true, nil
}

func (r *fakePaymentRepo) MarkFailed(_ context.Context, id uuid.UUID, code, message string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != entity.PaymentStatusPending {
		return false, nil
	}
	p.Status = entity.PaymentStatusFailed
	p.ProcessingOwner = nil
	p.ProcessingStartedAt = nil
	p.Metadata.FailureCode = code
	p.Metadata.FailureMessage = message
	return true, nil
}

func (r *fakePaymentRepo) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return fmt.Errorf("payment %s not found", id)
	}
	r.s.metadataPatches[id] = patch
	if failed, ok := patch["reservation_update_failed"].(bool); ok {
		p.Metadata.ReservationUpdateFailed = failed
	}
	if msg, ok := patch["reservation_update_error"].(string); ok {
		p.Metadata.ReservationUpdateError = msg
	}
	return nil
}

// ==================== RESERVATIONS ====================

type fakeReservationRepo struct{ s *store }

func (r *fakeReservationRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res, ok := r.s.reservations[id]; ok {
		return cloneReservation(res), nil
	}
	return nil, nil
}

func (r *fakeReservationRepo) FindPayableByGroupID(_ context.Context, groupID uuid.UUID) ([]*entity.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Reservation
	for _, res := range r.s.reservations {
		if res.RecurrenceGroupID != nil && *res.RecurrenceGroupID == groupID && res.Status == entity.ReservationStatusPendingPayment {
			out = append(out, cloneReservation(res))
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) UpdatePaymentState(_ context.Context, id uuid.UUID, status entity.ReservationStatus, amountPaid decimal.Decimal) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.updateCalls[id]++
	if err := r.s.failUpdate[id]; err != nil {
		return 0, err
	}
	if r.s.noopUpdates[id] > 0 {
		r.s.noopUpdates[id]--
		return 0, nil
	}
	res, ok := r.s.reservations[id]
	if !ok {
		return 0, nil
	}
	res.Status = status
	res.AmountPaid = amountPaid
	res.Metadata.PaymentStatusHistory = append(res.Metadata.PaymentStatusHistory, string(status))
	return 1, nil
}

func (r *fakeReservationRepo) MarkPendingPayment(_ context.Context, id uuid.UUID, method entity.PaymentMethod, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s not found", id)
	}
	if res.Status != entity.ReservationStatusPartiallyPaid {
		res.Status = entity.ReservationStatusPendingPayment
	}
	res.Metadata.PaymentMethod = string(method)
	res.Metadata.PaymentInitiatedAt = &at
	return nil
}

func (r *fakeReservationRepo) Cancel(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok || res.Status != entity.ReservationStatusPendingPayment || !res.AmountPaid.IsZero() {
		return false, nil
	}
	res.Status = entity.ReservationStatusCancelled
	res.CancelledAt = &at
	res.CancellationReason = &reason
	return true, nil
}

// ==================== QUEUE SESSIONS ====================

type fakeQueueSessionRepo struct{ s *store }

func (r *fakeQueueSessionRepo) FindByReservationID(_ context.Context, reservationID uuid.UUID) (*entity.QueueSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, q := range r.s.sessions {
		if q.Metadata.ReservationID == reservationID.String() {
			c := *q
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeQueueSessionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entity.QueueSessionStatus, paymentStatus string, confirmedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q := r.s.sessions[id]
	q.Status = status
	q.Metadata.PaymentStatus = paymentStatus
	q.Metadata.PaymentConfirmedAt = &confirmedAt
	return nil
}

func (r *fakeQueueSessionRepo) UpdatePaymentStatus(_ context.Context, id uuid.UUID, paymentStatus string, confirmedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q := r.s.sessions[id]
	q.Metadata.PaymentStatus = paymentStatus
	q.Metadata.PaymentConfirmedAt = &confirmedAt
	return nil
}

// ==================== WEBHOOK EVENTS ====================

type fakeEventRepo struct{ s *store }

func (r *fakeEventRepo) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.events[eventID] {
		return false, nil
	}
	r.s.events[eventID] = true
	return true, nil
}

func (r *fakeEventRepo) Forget(_ context.Context, eventID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.events, eventID)
	return nil
}

// ==================== GATEWAY ====================

type fakeGateway struct {
	mu sync.Mutex

	sources      map[string]*gateway.Source
	createErr    error
	getErr       error
	chargeErr    error
	chargeCalls  []gateway.ChargeRequest
	sourceCalls  []gateway.SourceRequest
	chargeHook   func()
	nextSourceID int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sources: map[string]*gateway.Source{}}
}

func (g *fakeGateway) setSource(id string, status gateway.SourceStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[id] = &gateway.Source{ID: id, Status: status}
}

func (g *fakeGateway) CreateSource(_ context.Context, req gateway.SourceRequest) (*gateway.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sourceCalls = append(g.sourceCalls, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextSourceID++
	src := &gateway.Source{
		ID:          fmt.Sprintf("src_test_%d", g.nextSourceID),
		Status:      gateway.SourceStatusPending,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CheckoutURL: fmt.Sprintf("https://pay.example/checkout/%d", g.nextSourceID),
	}
	g.sources[src.ID] = src
	return src, nil
}

func (g *fakeGateway) GetSource(_ context.Context, sourceID string) (*gateway.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	src, ok := g.sources[sourceID]
	if !ok {
		return nil, &gateway.Error{StatusCode: 404, Code: "resource_not_found", Detail: "source not found"}
	}
	c := *src
	return &c, nil
}

func (g *fakeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	g.mu.Lock()
	g.chargeCalls = append(g.chargeCalls, req)
	hook := g.chargeHook
	err := g.chargeErr
	n := len(g.chargeCalls)
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &gateway.Charge{
		ID:     fmt.Sprintf("pay_test_%d", n),
		Status: "paid",
		Amount: req.Amount,
		Raw:    json.RawMessage(`{"id":"pay"}`),
	}, nil
}

func (g *fakeGateway) charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chargeCalls)
}

// ==================== BROKER ====================

type fakePublisher struct {
	mu     sync.Mutex
	events []broker.ReservationConfirmedEvent
	err    error
}

func (p *fakePublisher) PublishReservationConfirmed(_ context.Context, event broker.ReservationConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// ==================== FIXTURES ====================

var errWriteFailed = errors.New("write failed")

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testConfig() *utils.Config {
	return &utils.Config{
		App: utils.AppConfig{
			Name:        "court-booking",
			Environment: "test",
			BaseURL:     "https://courts.example",
		},
		PayMongo: utils.PayMongoConfig{WebhookSecret: "whsk_test"},
		Payment: utils.PaymentConfig{
			Currency:             "PHP",
			CheckoutTTL:          30 * time.Minute,
			ProcessingStaleAfter: 2 * time.Minute,
			ProcessingWait:       3 * time.Second,
			DownPaymentPercent:   20,
			SweepBatchSize:       50,
		},
	}
}

type harness struct {
	store     *store
	gateway   *fakeGateway
	publisher *fakePublisher
	reconcile *reconcileService
	payment   *paymentService
	webhook   *webhookService

	mu      sync.Mutex
	slept   []time.Duration
	onSleep func()
}

func newHarness() *harness {
	h := &harness{
		store:     newStore(),
		gateway:   newFakeGateway(),
		publisher: &fakePublisher{},
	}

	config := testConfig()
	log := zap.NewNop()
	repo := h.store.repository()

	queueSync := NewQueueSyncService(repo, log).(*queueSyncService)
	queueSync.now = func() time.Time { return testNow }

	h.reconcile = NewReconcileService(repo, h.gateway, queueSync, h.publisher, config, log).(*reconcileService)
	h.reconcile.now = func() time.Time { return testNow }
	h.reconcile.sleep = func(_ context.Context, d time.Duration) error {
		h.mu.Lock()
		h.slept = append(h.slept, d)
		hook := h.onSleep
		h.mu.Unlock()
		if hook != nil {
			hook()
		}
		return nil
	}

	h.payment = NewPaymentService(repo, h.gateway, config, log).(*paymentService)
	h.payment.now = func() time.Time { return testNow }

	h.webhook = NewWebhookService(repo, h.reconcile, config, log).(*webhookService)
	return h
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func strPtr(s string) *string { return &s }

func newReservation(userID uuid.UUID, total, paid string, status entity.ReservationStatus) *entity.Reservation {
	return &entity.Reservation{
		Base:        entity.Base{ID: uuid.New(), CreatedAt: testNow, UpdatedAt: testNow},
		UserID:      userID,
		CourtID:     uuid.New(),
		StartTime:   testNow.Add(24 * time.Hour),
		EndTime:     testNow.Add(26 * time.Hour),
		TotalAmount: dec(total),
		AmountPaid:  dec(paid),
		Status:      status,
	}
}

func newPendingPayment(res *entity.Reservation, sourceID, amount string, kind entity.PaymentKind) *entity.Payment {
	expires := testNow.Add(30 * time.Minute)
	return &entity.Payment{
		Base:          entity.Base{ID: uuid.New(), CreatedAt: testNow, UpdatedAt: testNow},
		Reference:     utils.GeneratePaymentReference(res.ID, testNow),
		UserID:        res.UserID,
		ReservationID: res.ID,
		Amount:        dec(amount),
		Currency:      "PHP",
		Method:        entity.PaymentMethodGCash,
		Kind:          kind,
		Status:        entity.PaymentStatusPending,
		ExternalID:    strPtr(sourceID),
		SourceID:      strPtr(sourceID),
		ExpiresAt:     &expires,
		Metadata:      entity.PaymentMetadata{Description: "Court reservation"},
	}
}
