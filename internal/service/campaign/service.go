package campaign

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/audience"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/pkg/promexport"
)

// dispatchBatchSize bounds one send-ledger insert. Between batches the
// campaign status is re-read so a cancel mid-dispatch stops producing rows.
const dispatchBatchSize = 1000

// Service implements campaign lifecycle business logic. It coordinates the
// repository, the send ledger, the audience resolver, and the audit trail.
// All public methods are safe for concurrent use if the dependencies are
// concurrency-safe.
type Service struct {
	repo     Repository
	ledger   SendLedger
	audit    AuditLog
	resolver Resolver

	now func() time.Time
}

// NewService creates a campaign service with its collaborators.
func NewService(repo Repository, ledger SendLedger, audit AuditLog, resolver Resolver) *Service {
	return &Service{repo: repo, ledger: ledger, audit: audit, resolver: resolver, now: time.Now}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, restaurantID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, restaurantID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, restaurantID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, restaurantID, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name            string              `json:"name"`
	Message         string              `json:"message"`
	Audience        domain.AudienceSpec `json:"audience"`
	PrimaryChannel  domain.Channel      `json:"primary_channel"`
	FallbackChannel *domain.Channel     `json:"fallback_channel"`
	PromoCodeID     *string             `json:"promo_code_id"`
	ScheduleType    domain.ScheduleType `json:"schedule_type"`
	RecurrenceDays  int                 `json:"recurrence_days"`
	ABSplitPercent  int                 `json:"ab_split_percent"`
	ABMessage       string              `json:"ab_message_variant"`
}

// Create validates and persists a new campaign in draft status, caching an
// initial audience estimate for display.
func (s *Service) Create(ctx context.Context, restaurantID, actor string, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if !domain.ValidChannel(input.PrimaryChannel) {
		return nil, fmt.Errorf("unknown primary channel %q", input.PrimaryChannel)
	}
	if input.FallbackChannel != nil && !domain.ValidChannel(*input.FallbackChannel) {
		return nil, fmt.Errorf("unknown fallback channel %q", *input.FallbackChannel)
	}

	scheduleType := input.ScheduleType
	if scheduleType == "" {
		scheduleType = domain.ScheduleOneTime
	}
	if scheduleType == domain.ScheduleRecurring && input.RecurrenceDays <= 0 {
		return nil, fmt.Errorf("recurring campaigns require recurrence_days")
	}
	if scheduleType == domain.ScheduleABTest {
		if input.ABSplitPercent <= 0 || input.ABSplitPercent >= 100 {
			return nil, fmt.Errorf("ab_split_percent must be between 1 and 99")
		}
		if input.ABMessage == "" {
			return nil, fmt.Errorf("A/B campaigns require ab_message_variant")
		}
	}

	estimate, err := s.resolver.Resolve(ctx, restaurantID, input.Audience)
	if err != nil {
		return nil, fmt.Errorf("estimate audience: %w", err)
	}

	c := &domain.Campaign{
		ID:                    uuid.New().String(),
		RestaurantID:          restaurantID,
		Name:                  input.Name,
		Message:               input.Message,
		Audience:              input.Audience,
		PrimaryChannel:        input.PrimaryChannel,
		FallbackChannel:       input.FallbackChannel,
		PromoCodeID:           input.PromoCodeID,
		Status:                domain.CampaignDraft,
		EstimatedAudienceSize: estimate,
		ScheduleType:          scheduleType,
		RecurrenceDays:        input.RecurrenceDays,
		ABSplitPercent:        input.ABSplitPercent,
		ABMessageVariant:      input.ABMessage,
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	s.record(ctx, c, domain.AuditCreated, actor, "")
	return c, nil
}

// Update modifies draft-mutable fields.
func (s *Service) Update(ctx context.Context, restaurantID, id, actor string, u UpdateFields) error {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrNotEditable
	}
	if err := s.repo.Update(ctx, restaurantID, id, u); err != nil {
		return err
	}
	s.record(ctx, c, domain.AuditUpdated, actor, "")
	return nil
}

// Schedule transitions draft → scheduled. A zero time means "dispatch as
// soon as the worker picks it up" and is only legal for one-time campaigns;
// otherwise the time must be in the future.
func (s *Service) Schedule(ctx context.Context, restaurantID, id, actor string, at time.Time) error {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	if !c.CanTransitionTo(domain.CampaignScheduled) {
		return ErrInvalidTransition
	}

	if at.IsZero() {
		if c.ScheduleType != domain.ScheduleOneTime {
			return ErrMissingSchedule
		}
		at = s.now()
	} else if !at.After(s.now()) {
		return ErrScheduleInPast
	}

	if err := s.repo.SetSchedule(ctx, restaurantID, id, at); err != nil {
		return err
	}
	ok, err := s.repo.UpdateStatus(ctx, restaurantID, id,
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignScheduled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}

	s.record(ctx, c, domain.AuditScheduled, actor, fmt.Sprintf("scheduled_at=%s", at.UTC().Format(time.RFC3339)))
	return nil
}

// Dispatch transitions scheduled → sending and fans the campaign out into
// the send ledger: the audience is re-resolved fresh (the cached estimate
// may be stale), one row is created per member on their consented channel,
// the campaign's promo code and A/B variant are stamped on each row.
// Returns the number of ledger rows created.
//
// Cancellation mid-dispatch is honored between batches: once the campaign
// leaves sending, no further rows are produced.
func (s *Service) Dispatch(ctx context.Context, restaurantID, id, actor string) (int, error) {
	start := s.now()
	defer func() {
		promexport.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return 0, err
	}
	if !c.CanTransitionTo(domain.CampaignSending) {
		return 0, ErrInvalidTransition
	}

	members, err := s.resolver.ResolveMembers(ctx, restaurantID, c.Audience)
	if err != nil {
		return 0, fmt.Errorf("resolve audience: %w", err)
	}

	ok, err := s.repo.UpdateStatus(ctx, restaurantID, id,
		[]domain.CampaignStatus{domain.CampaignScheduled, domain.CampaignPaused}, domain.CampaignSending)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Lost the race: someone cancelled or another worker dispatched.
		return 0, ErrInvalidTransition
	}
	if err := s.repo.MarkDispatched(ctx, id, len(members), s.now()); err != nil {
		return 0, fmt.Errorf("mark dispatched: %w", err)
	}

	enqueued, halted, err := s.fanOut(ctx, restaurantID, c, members)
	if err != nil || halted {
		return enqueued, err
	}

	s.record(ctx, c, domain.AuditDispatched, actor, fmt.Sprintf("enqueued=%d", enqueued))
	logger.Info("campaign dispatched", "campaign_id", id, "enqueued", enqueued)
	return enqueued, nil
}

// fanOut creates one pending ledger row per consenting member. Existing
// (campaign, customer) pairs are skipped by the ledger, so re-running it
// only fills gaps. The status is re-read between batches; halted reports
// that the campaign left sending mid-flight.
func (s *Service) fanOut(ctx context.Context, restaurantID string, c *domain.Campaign, members []audience.Member) (enqueued int, halted bool, err error) {
	batch := make([]domain.CampaignSend, 0, dispatchBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.ledger.CreateRows(ctx, batch)
		if err != nil {
			return fmt.Errorf("create send rows: %w", err)
		}
		enqueued += n
		promexport.SendsEnqueued.Add(float64(n))
		batch = batch[:0]
		return nil
	}

	for i, m := range members {
		ch, ok := s.pickChannel(c, &m)
		if !ok {
			continue // no consent on any configured channel
		}

		batch = append(batch, domain.CampaignSend{
			ID:          uuid.New().String(),
			CampaignID:  c.ID,
			CustomerID:  m.CustomerID,
			Channel:     ch,
			Status:      domain.SendPending,
			PromoCodeID: c.PromoCodeID,
			ABVariant:   s.abVariant(c, m.CustomerID),
		})

		if len(batch) >= dispatchBatchSize {
			if err := flush(); err != nil {
				return enqueued, false, err
			}
			// Halt on cancel/pause mid-flight.
			cur, err := s.repo.Get(ctx, restaurantID, c.ID)
			if err != nil {
				return enqueued, false, err
			}
			if cur.Status != domain.CampaignSending {
				logger.Info("dispatch halted by status change",
					"campaign_id", c.ID, "status", string(cur.Status), "enqueued", enqueued, "remaining", len(members)-i-1)
				return enqueued, true, nil
			}
		}
	}
	if err := flush(); err != nil {
		return enqueued, false, err
	}
	return enqueued, false, nil
}

// pickChannel chooses the member's delivery channel: primary when consented,
// otherwise the fallback. Members without consent on either are skipped.
func (s *Service) pickChannel(c *domain.Campaign, m *audience.Member) (domain.Channel, bool) {
	if m.HasConsent(c.PrimaryChannel) {
		return c.PrimaryChannel, true
	}
	if c.FallbackChannel != nil && m.HasConsent(*c.FallbackChannel) {
		return *c.FallbackChannel, true
	}
	return "", false
}

// abVariant deterministically buckets a customer into an A/B arm by hashing
// the customer ID, so re-dispatch after pause assigns the same variant.
func (s *Service) abVariant(c *domain.Campaign, customerID string) string {
	if c.ScheduleType != domain.ScheduleABTest {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(customerID))
	if int(h.Sum32()%100) < c.ABSplitPercent {
		return domain.ABVariantA
	}
	return domain.ABVariantB
}

// Cancel transitions any non-terminal state to cancelled. Already-redeemed
// promo codes stay redeemed; the only obligation here is that no new send
// rows get produced afterwards.
func (s *Service) Cancel(ctx context.Context, restaurantID, id, actor string) error {
	return s.transition(ctx, restaurantID, id, actor,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignSending, domain.CampaignPaused},
		domain.CampaignCancelled, domain.AuditCancelled)
}

// Pause transitions sending → paused.
func (s *Service) Pause(ctx context.Context, restaurantID, id, actor string) error {
	return s.transition(ctx, restaurantID, id, actor,
		[]domain.CampaignStatus{domain.CampaignSending},
		domain.CampaignPaused, domain.AuditPaused)
}

// Resume transitions paused → sending and re-runs fan-out, since a pause
// can land mid-dispatch and leave the ledger covering only part of the
// audience. Members who already have a row keep it; only the gaps fill in.
func (s *Service) Resume(ctx context.Context, restaurantID, id, actor string) error {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateStatus(ctx, restaurantID, id,
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignSending)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}

	members, err := s.resolver.ResolveMembers(ctx, restaurantID, c.Audience)
	if err != nil {
		return fmt.Errorf("resolve audience: %w", err)
	}
	enqueued, _, err := s.fanOut(ctx, restaurantID, c, members)
	if err != nil {
		return err
	}

	s.record(ctx, c, domain.AuditResumed, actor, fmt.Sprintf("enqueued=%d", enqueued))
	return nil
}

func (s *Service) transition(ctx context.Context, restaurantID, id, actor string, from []domain.CampaignStatus, to domain.CampaignStatus, action domain.AuditAction) error {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateStatus(ctx, restaurantID, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	s.record(ctx, c, action, actor, "")
	return nil
}

// CheckCompletion moves a sending campaign to sent once every ledger row is
// terminal. Recurring campaigns are then re-armed for their next run.
// Reports whether the campaign completed on this call.
func (s *Service) CheckCompletion(ctx context.Context, restaurantID, id string) (bool, error) {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return false, err
	}
	if c.Status != domain.CampaignSending {
		return false, nil
	}

	terminal, total, err := s.ledger.AllTerminal(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	if !terminal {
		return false, nil
	}
	// An empty ledger only counts as finished once fan-out has run: a
	// zero-match audience campaign completes with no rows to settle, but
	// a campaign whose fan-out has not started yet must keep waiting.
	if total == 0 && c.StartedAt == nil {
		return false, nil
	}

	ok, err := s.repo.UpdateStatus(ctx, restaurantID, id,
		[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignSent)
	if err != nil || !ok {
		return false, err
	}
	if err := s.repo.MarkCompleted(ctx, id, s.now()); err != nil {
		return true, fmt.Errorf("mark completed: %w", err)
	}
	s.record(ctx, c, domain.AuditCompleted, "system", fmt.Sprintf("sends=%d", total))

	if c.ScheduleType == domain.ScheduleRecurring && c.RecurrenceDays > 0 {
		next := s.now().AddDate(0, 0, c.RecurrenceDays)
		if err := s.repo.AdvanceRecurrence(ctx, id, next); err != nil {
			logger.Error("advance recurrence failed", "campaign_id", id, "error", err.Error())
		}
	}
	return true, nil
}

// RefreshEstimate re-resolves the audience and caches the new count.
func (s *Service) RefreshEstimate(ctx context.Context, restaurantID, id string) (int, error) {
	c, err := s.repo.Get(ctx, restaurantID, id)
	if err != nil {
		return 0, err
	}
	n, err := s.resolver.Resolve(ctx, restaurantID, c.Audience)
	if err != nil {
		return 0, err
	}
	if err := s.repo.SetEstimate(ctx, restaurantID, id, n); err != nil {
		return 0, err
	}
	return n, nil
}

// RecordSendOutcome applies a delivery collaborator event to one ledger
// row. Delivery statuses move the row's status; the engagement events
// "opened" and "clicked" only stamp their timestamp and leave the status
// alone (a click can arrive after delivered). At is the collaborator's
// event time; zero means now.
func (s *Service) RecordSendOutcome(ctx context.Context, sendID, event string, at time.Time, errorMessage string) error {
	if at.IsZero() {
		at = s.now()
	}

	switch event {
	case string(EngagementOpened), string(EngagementClicked):
		return s.ledger.MarkEngagement(ctx, sendID, EngagementEvent(event), at)
	}

	status := domain.SendStatus(event)
	switch status {
	case domain.SendSent, domain.SendDelivered, domain.SendFailed, domain.SendBounced:
		return s.ledger.UpdateStatus(ctx, sendID, status, at, errorMessage)
	}
	return fmt.Errorf("unknown send event %q", event)
}

// Audit returns the campaign's lifecycle audit trail, newest first.
func (s *Service) Audit(ctx context.Context, restaurantID, campaignID string, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.audit.List(ctx, restaurantID, campaignID, limit)
}

// Sends returns the campaign's ledger rows.
func (s *Service) Sends(ctx context.Context, restaurantID, campaignID string, limit, offset int) ([]domain.CampaignSend, error) {
	// Scope check: the ledger itself is keyed by campaign only.
	if _, err := s.repo.Get(ctx, restaurantID, campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.ledger.List(ctx, campaignID, limit, offset)
}

func (s *Service) record(ctx context.Context, c *domain.Campaign, action domain.AuditAction, actor, detail string) {
	entry := &domain.AuditLogEntry{
		ID:           uuid.New().String(),
		RestaurantID: c.RestaurantID,
		CampaignID:   c.ID,
		Action:       action,
		Actor:        actor,
		Detail:       detail,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		// The audit trail is best-effort; a failed append must not fail
		// the lifecycle action it describes.
		logger.Error("audit append failed", "campaign_id", c.ID, "action", string(action), "error", err.Error())
	}
}
