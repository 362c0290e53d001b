package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"waitlist/internal/database"
	"waitlist/internal/domain"
	"waitlist/internal/events"
	"waitlist/internal/metrics"
	"waitlist/internal/models"
	"waitlist/internal/sms"
	"waitlist/internal/templates"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Options struct {
	GracePeriodMinutes    int
	FollowUpBeforeMinutes int
	AverageTurnMinutes    int
	CleanAfterComplete    bool
	DefaultRegion         string
	InvalidReplyLimit     int
	InvalidReplyWindow    time.Duration
}

// replyStatuses are the bookings an inbound SMS can act on.
var replyStatuses = []models.BookingStatus{models.StatusWaiting, models.StatusNotified, models.StatusConfirmed}

// CheckInRequest is a walk-in joining the waitlist.
type CheckInRequest struct {
	RestaurantID string `json:"restaurant_id"`
	CustomerName string `json:"customer_name" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"required"`
	PartySize    int    `json:"party_size" validate:"required,min=1,max=50"`
	Language     string `json:"language" validate:"omitempty,oneof=en fr"`
}

// StatusChange is the payload of status_change events.
type StatusChange struct {
	RestaurantID string               `json:"restaurantId"`
	BookingID    string               `json:"bookingId,omitempty"`
	From         models.BookingStatus `json:"from,omitempty"`
	To           models.BookingStatus `json:"to,omitempty"`
	Booking      *models.Booking      `json:"booking,omitempty"`
	Table        *models.Table        `json:"table,omitempty"`
}

// WaitlistService is the booking lifecycle state machine. Every transition is
// applied with one conditional store update; notifications and events follow a
// successful update and never undo it.
type WaitlistService struct {
	store     domain.Store
	notifier  domain.Notifier
	publisher domain.EventPublisher
	scheduler domain.Scheduler
	limiter   domain.RateLimiter
	opts      Options
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewWaitlistService wires the state machine. limiter may be nil.
func NewWaitlistService(
	store domain.Store,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	scheduler domain.Scheduler,
	limiter domain.RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *WaitlistService {
	if opts.GracePeriodMinutes <= 0 {
		opts.GracePeriodMinutes = models.DefaultGracePeriodMinutes
	}
	if opts.FollowUpBeforeMinutes <= 0 {
		opts.FollowUpBeforeMinutes = models.DefaultFollowUpBeforeMinutes
	}
	if opts.AverageTurnMinutes <= 0 {
		opts.AverageTurnMinutes = models.DefaultAverageTurnMinutes
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = "CA"
	}
	if opts.InvalidReplyLimit <= 0 {
		opts.InvalidReplyLimit = 3
	}
	if opts.InvalidReplyWindow <= 0 {
		opts.InvalidReplyWindow = 10 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &WaitlistService{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		scheduler: scheduler,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn adds a customer to the end of the restaurant's queue.
func (s *WaitlistService) CheckIn(ctx context.Context, req CheckInRequest) (*models.Booking, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, validationError("customer name is required")
	}
	if req.PartySize < 1 {
		return nil, validationError("party size must be at least 1")
	}
	phone, err := sms.NormalizePhone(req.Phone, s.opts.DefaultRegion)
	if err != nil {
		return nil, validationError("%v", err)
	}

	restaurant, err := s.restaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}

	active, err := s.store.ListBookings(ctx, restaurant.ID, models.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	for _, existing := range active {
		if existing.Phone == phone {
			return nil, conflict("check in", existing, "customer already on the waitlist")
		}
	}

	waiting, err := s.store.ListBookings(ctx, restaurant.ID, []models.BookingStatus{models.StatusWaiting})
	if err != nil {
		return nil, err
	}

	now := s.now()
	booking := &models.Booking{
		ID:                   uuid.NewString(),
		RestaurantID:         restaurant.ID,
		CustomerName:         name,
		Phone:                phone,
		PartySize:            req.PartySize,
		Language:             models.ParseLanguage(req.Language),
		Status:               models.StatusWaiting,
		EstimatedWaitMinutes: s.estimateWait(restaurant, len(waiting)+1),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("restaurant_id", restaurant.ID).
		Int("party_size", booking.PartySize).
		Msg("customer checked in")

	s.notify(ctx, booking, restaurant, templates.KeyConfirmation)
	s.publish(ctx, restaurant.ID, events.KindNewBooking, booking)
	if _, err := s.RecalculateWaitTimes(ctx, restaurant.ID); err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", restaurant.ID).Msg("failed to recalculate wait times")
	}
	return booking, nil
}

// AssignTable offers an available table to a waiting booking and starts its grace period.
func (s *WaitlistService) AssignTable(ctx context.Context, bookingID, tableID string) (*models.Booking, error) {
	const op = "assign table"

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusWaiting {
		return nil, s.reject(op, current, "booking is not waiting")
	}

	table, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.RestaurantID != current.RestaurantID {
		return nil, validationError("table %s does not belong to restaurant %s", tableID, current.RestaurantID)
	}
	if table.Status != models.TableAvailable {
		return nil, s.reject(op, current, fmt.Sprintf("table %s is %s", table.Label, table.Status))
	}
	if table.Capacity < current.PartySize {
		return nil, s.reject(op, current, fmt.Sprintf("table %s seats %d, party of %d", table.Label, table.Capacity, current.PartySize))
	}

	restaurant, err := s.restaurant(ctx, current.RestaurantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	deadline := now.Add(restaurant.GracePeriod())
	next := current.Clone()
	next.Status = models.StatusNotified
	next.TableID = &table.ID
	next.NotifiedAt = &now
	next.GraceDeadline = &deadline
	next.FollowUpSentAt = nil
	next.UpdatedAt = now

	change := &models.TableChange{
		TableID:    table.ID,
		FromStatus: models.TableAvailable,
		ToStatus:   models.TableHeld,
		BookingID:  &next.ID,
	}
	if err := s.apply(ctx, op, current, next, change); err != nil {
		return nil, err
	}

	s.scheduleTimers(next, restaurant)
	s.notify(ctx, next, restaurant, templates.KeyTableReady)
	s.publishChange(ctx, current.Status, next, s.tableAfter(table, change, now))
	if _, err := s.RecalculateWaitTimes(ctx, next.RestaurantID); err != nil {
		s.logger.Warn().Err(err).Str("restaurant_id", next.RestaurantID).Msg("failed to recalculate wait times")
	}
	return next, nil
}

// HandleReply processes an inbound SMS from a customer.
func (s *WaitlistService) HandleReply(ctx context.Context, phone, body string) (*models.Booking, error) {
	normalized, err := sms.NormalizePhone(phone, s.opts.DefaultRegion)
	if err != nil {
		normalized = phone
	}

	current, err := s.store.FindActiveBookingByPhone(ctx, normalized, replyStatuses)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Info().Str("phone", normalized).Msg("reply from phone without active booking")
		}
		return nil, err
	}
	s.recordInbound(ctx, current, body)

	restaurant, err := s.restaurant(ctx, current.RestaurantID)
	if err != nil {
		return nil, err
	}

	reply := ParseReply(body)
	s.logger.Info().
		Str("booking_id", current.ID).
		Str("status", string(current.Status)).
		Str("reply", reply.String()).
		Msg("customer reply")

	switch reply {
	case ReplyAffirmative:
		return s.confirm(ctx, current)
	case ReplyNegative:
		return s.cancel(ctx, "customer cancel", current, restaurant, models.CancelReasonCustomer, templates.KeyCancelledByCustomer)
	default:
		s.sendInvalidResponse(ctx, current, restaurant)
		return current, nil
	}
}

func (s *WaitlistService) confirm(ctx context.Context, current *models.Booking) (*models.Booking, error) {
	const op = "confirm"

	if current.Status != models.StatusNotified && current.Status != models.StatusConfirmed {
		return nil, s.reject(op, current, "no table is being held")
	}
	now := s.now()
	if current.GraceDeadline != nil && !now.Before(*current.GraceDeadline) {
		return nil, s.reject(op, current, "grace period expired")
	}
	if current.Status == models.StatusConfirmed {
		return current, nil
	}

	next := current.Clone()
	next.Status = models.StatusConfirmed
	next.UpdatedAt = now
	if err := s.apply(ctx, op, current, next, nil); err != nil {
		return nil, err
	}

	s.publishChange(ctx, current.Status, next, nil)
	return next, nil
}

// HandleFollowUpDue sends the single reminder for a booking that is still
// unanswered. It is a no-op for any other booking.
func (s *WaitlistService) HandleFollowUpDue(ctx context.Context, bookingID string) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current.Status != models.StatusNotified || current.FollowUpSentAt != nil ||
		current.GraceDeadline == nil || !now.Before(*current.GraceDeadline) {
		return current, nil
	}

	next := current.Clone()
	next.FollowUpSentAt = &now
	next.UpdatedAt = now
	err = s.store.ApplyTransition(ctx, domain.Transition{
		Booking:         next,
		ExpectedStatus:  current.Status,
		ExpectedVersion: current.Version,
	})
	if errors.Is(err, database.ErrConcurrentModification) {
		s.logger.Debug().Str("booking_id", bookingID).Msg("follow-up skipped, booking changed")
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	restaurant, err := s.restaurant(ctx, next.RestaurantID)
	if err != nil {
		return nil, err
	}
	minutesLeft := int(next.GraceDeadline.Sub(now).Round(time.Minute) / time.Minute)
	s.notifyWith(ctx, next, restaurant, templates.KeyFollowUp, map[string]string{
		templates.VarMinutesLeft: strconv.Itoa(minutesLeft),
	})

	s.logger.Info().Str("booking_id", bookingID).Int("minutes_left", minutesLeft).Msg("follow-up sent")
	return next, nil
}

// HandleGraceExpired auto-cancels a booking whose grace deadline has passed.
// It is a no-op when the booking already left the grace period.
func (s *WaitlistService) HandleGraceExpired(ctx context.Context, bookingID string) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.Status.InGracePeriod() || current.GraceDeadline == nil {
		return current, nil
	}

	if s.now().Before(*current.GraceDeadline) {
		s.scheduler.Schedule(bookingID, timerGraceExpiry, *current.GraceDeadline, s.graceTimer(bookingID))
		return current, nil
	}

	restaurant, err := s.restaurant(ctx, current.RestaurantID)
	if err != nil {
		return nil, err
	}
	next, err := s.cancel(ctx, "grace expiry", current, restaurant, models.CancelReasonExpired, templates.KeyAutoCancel)
	if errors.Is(err, ErrConflict) {
		s.logger.Debug().Str("booking_id", bookingID).Msg("grace expiry skipped, booking changed")
		return current, nil
	}
	return next, err
}

// SeatBooking marks the party seated at its held table.
func (s *WaitlistService) SeatBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	const op = "seat"

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.Status.InGracePeriod() {
		return nil, s.reject(op, current, "booking has no table offer")
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusSeated
	next.GraceDeadline = nil
	next.SeatedAt = &now
	next.UpdatedAt = now

	change := &models.TableChange{
		TableID:    current.TableIDValue(),
		FromStatus: models.TableHeld,
		HeldBy:     current.ID,
		ToStatus:   models.TableOccupied,
		BookingID:  &next.ID,
	}
	if err := s.apply(ctx, op, current, next, change); err != nil {
		return nil, err
	}

	s.scheduler.Cancel(bookingID)
	s.publishChange(ctx, current.Status, next, s.loadTable(ctx, change.TableID))
	return next, nil
}

// CompleteBooking frees the table of a seated party.
func (s *WaitlistService) CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	const op = "complete"

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusSeated {
		return nil, s.reject(op, current, "booking is not seated")
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusCompleted
	next.TableID = nil
	next.CompletedAt = &now
	next.UpdatedAt = now

	tableStatus := models.TableAvailable
	if s.opts.CleanAfterComplete {
		tableStatus = models.TableCleaning
	}
	change := &models.TableChange{
		TableID:    current.TableIDValue(),
		FromStatus: models.TableOccupied,
		HeldBy:     current.ID,
		ToStatus:   tableStatus,
	}
	if err := s.apply(ctx, op, current, next, change); err != nil {
		return nil, err
	}

	s.publishChange(ctx, current.Status, next, s.loadTable(ctx, change.TableID))
	return next, nil
}

// CancelBooking is a staff cancellation of a booking that is not yet seated.
func (s *WaitlistService) CancelBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	restaurant, err := s.restaurant(ctx, current.RestaurantID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, "cancel", current, restaurant, models.CancelReasonStaff, templates.KeyCancelled)
}

// MarkNoShow releases the table of a customer who never arrived. No SMS is sent.
func (s *WaitlistService) MarkNoShow(ctx context.Context, bookingID string) (*models.Booking, error) {
	const op = "no-show"

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.Status.InGracePeriod() {
		return nil, s.reject(op, current, "booking has no table offer")
	}

	now := s.now()
	next := current.Clone()
	next.Status = models.StatusNoShow
	next.TableID = nil
	next.GraceDeadline = nil
	next.UpdatedAt = now

	change := releaseHeld(current)
	if err := s.apply(ctx, op, current, next, change); err != nil {
		return nil, err
	}

	s.scheduler.Cancel(bookingID)
	s.publishChange(ctx, current.Status, next, s.loadTable(ctx, change.TableID))
	return next, nil
}

func (s *WaitlistService) cancel(
	ctx context.Context,
	op string,
	current *models.Booking,
	restaurant *models.Restaurant,
	reason, templateKey string,
) (*models.Booking, error) {
	if !CanTransition(current.Status, models.StatusCancelled) {
		return nil, s.reject(op, current, "booking can no longer be cancelled")
	}
	now := s.now()
	if reason == models.CancelReasonCustomer && current.GraceDeadline != nil && !now.Before(*current.GraceDeadline) {
		return nil, s.reject(op, current, "grace period expired")
	}

	next := current.Clone()
	next.Status = models.StatusCancelled
	next.TableID = nil
	next.GraceDeadline = nil
	next.CancelledAt = &now
	next.CancelReason = reason
	next.UpdatedAt = now

	var change *models.TableChange
	if current.Status.HoldsTable() {
		change = releaseHeld(current)
	}
	if err := s.apply(ctx, op, current, next, change); err != nil {
		return nil, err
	}

	s.scheduler.Cancel(current.ID)
	s.notify(ctx, next, restaurant, templateKey)

	var table *models.Table
	if change != nil {
		table = s.loadTable(ctx, change.TableID)
	}
	s.publishChange(ctx, current.Status, next, table)
	if current.Status == models.StatusWaiting {
		if _, err := s.RecalculateWaitTimes(ctx, next.RestaurantID); err != nil {
			s.logger.Warn().Err(err).Str("restaurant_id", next.RestaurantID).Msg("failed to recalculate wait times")
		}
	}
	return next, nil
}

// ReleaseTable marks a cleaned table available again.
func (s *WaitlistService) ReleaseTable(ctx context.Context, tableID string) (*models.Table, error) {
	table, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.Status != models.TableCleaning {
		return nil, &ConflictError{Op: "release table", Reason: fmt.Sprintf("table %s is %s", table.Label, table.Status)}
	}

	err = s.store.UpdateTableStatus(ctx, tableID, models.TableCleaning, models.TableAvailable)
	if errors.Is(err, database.ErrConcurrentModification) {
		metrics.IncConflict("release table")
		return nil, &ConflictError{Op: "release table", Reason: "table changed concurrently"}
	}
	if err != nil {
		return nil, err
	}

	updated := s.loadTable(ctx, tableID)
	s.publish(ctx, table.RestaurantID, events.KindStatusChange, StatusChange{
		RestaurantID: table.RestaurantID,
		Table:        updated,
	})
	return updated, nil
}

// ListActive returns the restaurant's non-terminal bookings in queue order.
func (s *WaitlistService) ListActive(ctx context.Context, restaurantID string) ([]*models.Booking, error) {
	return s.store.ListBookings(ctx, restaurantID, models.ActiveStatuses)
}

func (s *WaitlistService) ListTables(ctx context.Context, restaurantID string) ([]*models.Table, error) {
	return s.store.ListTables(ctx, restaurantID)
}

func (s *WaitlistService) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	return s.store.GetTable(ctx, tableID)
}

func (s *WaitlistService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

func (s *WaitlistService) ListMessages(ctx context.Context, bookingID string) ([]*models.Message, error) {
	return s.store.ListMessages(ctx, bookingID)
}

// apply validates and atomically stores one transition.
func (s *WaitlistService) apply(ctx context.Context, op string, current, next *models.Booking, change *models.TableChange) error {
	if !CanTransition(current.Status, next.Status) {
		return s.reject(op, current, fmt.Sprintf("cannot move from %s to %s", current.Status, next.Status))
	}
	if err := next.CheckInvariants(); err != nil {
		return err
	}

	err := s.store.ApplyTransition(ctx, domain.Transition{
		Booking:         next,
		ExpectedStatus:  current.Status,
		ExpectedVersion: current.Version,
		Table:           change,
	})
	if errors.Is(err, database.ErrConcurrentModification) {
		return s.reject(op, current, "booking or table changed concurrently")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	metrics.IncTransition(string(current.Status), string(next.Status))
	s.logger.Info().
		Str("booking_id", next.ID).
		Str("restaurant_id", next.RestaurantID).
		Str("from", string(current.Status)).
		Str("to", string(next.Status)).
		Str("table_id", changedTable(change)).
		Msg("booking transition")
	return nil
}

func (s *WaitlistService) reject(op string, b *models.Booking, reason string) error {
	metrics.IncConflict(op)
	return conflict(op, b, reason)
}

func changedTable(change *models.TableChange) string {
	if change == nil {
		return ""
	}
	return change.TableID
}

func releaseHeld(b *models.Booking) *models.TableChange {
	return &models.TableChange{
		TableID:    b.TableIDValue(),
		FromStatus: models.TableHeld,
		HeldBy:     b.ID,
		ToStatus:   models.TableAvailable,
	}
}

func (s *WaitlistService) restaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	if id == "" {
		return nil, validationError("restaurant id is required")
	}
	r, err := s.store.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.GracePeriodMinutes <= 0 {
		r.GracePeriodMinutes = s.opts.GracePeriodMinutes
	}
	if r.FollowUpBeforeMinutes <= 0 {
		r.FollowUpBeforeMinutes = s.opts.FollowUpBeforeMinutes
	}
	if r.AverageTurnMinutes <= 0 {
		r.AverageTurnMinutes = s.opts.AverageTurnMinutes
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	return r, nil
}

func (s *WaitlistService) loadTable(ctx context.Context, id string) *models.Table {
	if id == "" {
		return nil
	}
	t, err := s.store.GetTable(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("table_id", id).Msg("failed to reload table")
		return nil
	}
	return t
}

func (s *WaitlistService) tableAfter(t *models.Table, change *models.TableChange, at time.Time) *models.Table {
	out := t.Clone()
	out.Status = change.ToStatus
	out.BookingID = change.BookingID
	out.Version++
	out.UpdatedAt = at
	return out
}

func (s *WaitlistService) recordInbound(ctx context.Context, b *models.Booking, body string) {
	now := s.now()
	msg := &models.Message{
		ID:             uuid.NewString(),
		BookingID:      b.ID,
		RestaurantID:   b.RestaurantID,
		Phone:          b.Phone,
		Direction:      models.DirectionInbound,
		Body:           body,
		Language:       b.Language,
		DeliveryStatus: models.DeliveryReceived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("failed to record inbound sms")
	}
	s.publish(ctx, b.RestaurantID, events.KindNewMessage, msg)
}

func (s *WaitlistService) sendInvalidResponse(ctx context.Context, b *models.Booking, restaurant *models.Restaurant) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "invalid_reply:"+b.Phone, s.opts.InvalidReplyLimit, s.opts.InvalidReplyWindow)
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("rate limiter unavailable")
		} else if !allowed {
			s.logger.Info().Str("booking_id", b.ID).Msg("invalid reply notice suppressed")
			return
		}
	}
	s.notify(ctx, b, restaurant, templates.KeyInvalidResponse)
}

func (s *WaitlistService) notify(ctx context.Context, b *models.Booking, restaurant *models.Restaurant, key string) {
	s.notifyWith(ctx, b, restaurant, key, nil)
}

func (s *WaitlistService) notifyWith(ctx context.Context, b *models.Booking, restaurant *models.Restaurant, key string, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	vars := map[string]string{
		templates.VarName:        b.CustomerName,
		templates.VarRestaurant:  restaurant.Name,
		templates.VarPartySize:   strconv.Itoa(b.PartySize),
		templates.VarWaitTime:    strconv.Itoa(b.EstimatedWaitMinutes),
		templates.VarGracePeriod: strconv.Itoa(int(restaurant.GracePeriod() / time.Minute)),
	}
	for k, v := range extra {
		vars[k] = v
	}

	err := s.notifier.Enqueue(ctx, domain.NotificationRequest{
		BookingID:    b.ID,
		RestaurantID: b.RestaurantID,
		Phone:        b.Phone,
		TemplateKey:  key,
		Language:     b.Language,
		Vars:         vars,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Str("template", key).Msg("failed to queue sms")
	}
}

func (s *WaitlistService) publishChange(ctx context.Context, from models.BookingStatus, b *models.Booking, table *models.Table) {
	s.publish(ctx, b.RestaurantID, events.KindStatusChange, StatusChange{
		RestaurantID: b.RestaurantID,
		BookingID:    b.ID,
		From:         from,
		To:           b.Status,
		Booking:      b,
		Table:        table,
	})
}

func (s *WaitlistService) publish(ctx context.Context, restaurantID string, kind events.Kind, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, restaurantID, kind, payload); err != nil {
		s.logger.Error().Err(err).Str("restaurant_id", restaurantID).Str("type", string(kind)).Msg("failed to publish event")
	}
}
