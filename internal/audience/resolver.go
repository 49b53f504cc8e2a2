// Package audience resolves campaign targeting rules against a restaurant's
// customer population. Resolution is pure read-side: no caching, no side
// effects, safe to call any number of times, always reflecting the live
// population.
package audience

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Member is one resolved audience member with the consent flags the
// dispatcher needs to choose a channel.
type Member struct {
	CustomerID      string
	PushConsent     bool
	EmailConsent    bool
	SMSConsent      bool
	WhatsAppConsent bool
}

// HasConsent reports whether the member consented to the given channel.
func (m *Member) HasConsent(ch domain.Channel) bool {
	switch ch {
	case domain.ChannelPush:
		return m.PushConsent
	case domain.ChannelEmail:
		return m.EmailConsent
	case domain.ChannelSMS:
		return m.SMSConsent
	case domain.ChannelWhatsApp:
		return m.WhatsAppConsent
	}
	return false
}

// Resolver evaluates audience specs against the customers table.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates an audience resolver over the given database.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the number of customers matching the spec within the
// restaurant. A restaurant with no customers short-circuits to 0 before any
// spec evaluation, so empty tenants never surface spurious errors.
func (r *Resolver) Resolve(ctx context.Context, restaurantID string, spec domain.AudienceSpec) (int, error) {
	empty, err := r.tenantIsEmpty(ctx, restaurantID)
	if err != nil {
		return 0, err
	}
	if empty {
		return 0, nil
	}

	r.warnIfUnresolvable(spec)

	qb := NewQueryBuilder(restaurantID)
	query, args, err := qb.BuildCountQuery(spec)
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audience: %w", err)
	}
	return count, nil
}

// ResolveMembers returns the matching customers with their consent flags.
func (r *Resolver) ResolveMembers(ctx context.Context, restaurantID string, spec domain.AudienceSpec) ([]Member, error) {
	empty, err := r.tenantIsEmpty(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	r.warnIfUnresolvable(spec)

	qb := NewQueryBuilder(restaurantID)
	query, args, err := qb.BuildMemberQuery(spec)
	if err != nil {
		return nil, fmt.Errorf("build member query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audience members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CustomerID, &m.PushConsent, &m.EmailConsent, &m.SMSConsent, &m.WhatsAppConsent); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Resolver) tenantIsEmpty(ctx context.Context, restaurantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE restaurant_id = $1)`, restaurantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant population: %w", err)
	}
	return !exists, nil
}

// warnIfUnresolvable logs the variants that resolve to zero by policy, so a
// silent 0 is never a mystery in production.
func (r *Resolver) warnIfUnresolvable(spec domain.AudienceSpec) {
	switch spec.Kind {
	case domain.AudienceLocationRadius:
		logger.Warn("audience: location_radius not yet supported, resolving to 0", "kind", string(spec.Kind))
	case domain.AudienceAll, domain.AudienceTagged, domain.AudienceInactiveSince,
		domain.AudienceWalletRange, domain.AudienceCustom:
		// resolvable
	default:
		logger.Warn("audience: unknown spec kind, resolving to 0", "kind", string(spec.Kind))
	}
}
