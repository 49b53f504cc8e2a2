package audience

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
)

// QueryBuilder compiles an AudienceSpec into SQL against the customers table.
// Every variant of the spec union is handled explicitly; kinds the builder
// does not recognize compile to a no-match predicate rather than an error,
// so an unknown spec resolves to zero customers instead of failing.
type QueryBuilder struct {
	restaurantID string
	args         []interface{}
	argCounter   int
}

// NewQueryBuilder creates a builder scoped to one restaurant.
func NewQueryBuilder(restaurantID string) *QueryBuilder {
	return &QueryBuilder{
		restaurantID: restaurantID,
		args:         make([]interface{}, 0),
		argCounter:   1,
	}
}

// nextArg registers a query argument and returns its placeholder.
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

// matchNone is the predicate emitted for variants that can never match:
// empty tag sets, unimplemented location targeting, unknown kinds.
const matchNone = "1=0"

// BuildCountQuery builds a COUNT query for the spec.
func (qb *QueryBuilder) BuildCountQuery(spec domain.AudienceSpec) (string, []interface{}, error) {
	return qb.build("SELECT COUNT(DISTINCT c.id) FROM customers c", spec, "")
}

// BuildMemberQuery builds a query selecting the matching customers with
// their consent flags, so callers can pick a delivery channel per member.
func (qb *QueryBuilder) BuildMemberQuery(spec domain.AudienceSpec) (string, []interface{}, error) {
	sel := `SELECT DISTINCT c.id, c.push_consent, c.email_consent, c.sms_consent, c.whatsapp_consent
	FROM customers c`
	return qb.build(sel, spec, "\nORDER BY c.id")
}

func (qb *QueryBuilder) build(selectClause string, spec domain.AudienceSpec, suffix string) (string, []interface{}, error) {
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1

	where := []string{
		fmt.Sprintf("c.restaurant_id = %s", qb.nextArg(qb.restaurantID)),
	}

	cond, err := qb.buildSpecCondition(spec)
	if err != nil {
		return "", nil, err
	}
	if cond != "" {
		where = append(where, cond)
	}

	query := selectClause + "\nWHERE " + strings.Join(where, "\n  AND ") + suffix
	return query, qb.args, nil
}

// buildSpecCondition compiles one spec variant to its WHERE fragment.
func (qb *QueryBuilder) buildSpecCondition(spec domain.AudienceSpec) (string, error) {
	switch spec.Kind {
	case domain.AudienceAll:
		return "", nil

	case domain.AudienceTagged:
		// Empty tag set matches nobody, never everybody.
		if len(spec.TagIDs) == 0 {
			return matchNone, nil
		}
		return fmt.Sprintf(`EXISTS (
			SELECT 1 FROM customer_tags ct
			WHERE ct.customer_id = c.id AND ct.tag_id = ANY(%s)
		)`, qb.nextArg(pq.Array(spec.TagIDs))), nil

	case domain.AudienceInactiveSince:
		if spec.InactiveDays < 0 {
			return "", fmt.Errorf("inactive_since: negative days %d", spec.InactiveDays)
		}
		// Customers with no recorded visit are maximally inactive.
		return fmt.Sprintf(`(c.last_visit_at IS NULL OR c.last_visit_at < NOW() - (%s * INTERVAL '1 day'))`,
			qb.nextArg(spec.InactiveDays)), nil

	case domain.AudienceWalletRange:
		// Min defaults to 0 so zero-balance customers stay includable.
		min := 0
		if spec.MinPoints != nil {
			min = *spec.MinPoints
		}
		cond := fmt.Sprintf("c.loyalty_points >= %s", qb.nextArg(min))
		if spec.MaxPoints != nil {
			cond += fmt.Sprintf(" AND c.loyalty_points <= %s", qb.nextArg(*spec.MaxPoints))
		}
		return cond, nil

	case domain.AudienceCustom:
		return qb.buildCustomConditions(spec.Conditions)

	case domain.AudienceLocationRadius:
		// Recognized but unsupported in this version: resolves to 0.
		return matchNone, nil

	default:
		// Unknown kind resolves to 0 by policy.
		return matchNone, nil
	}
}

// customFieldColumns whitelists the columns a custom condition may touch.
var customFieldColumns = map[string]string{
	"loyalty_points": "c.loyalty_points",
	"last_visit_at":  "c.last_visit_at",
	"created_at":     "c.created_at",
	"email":          "c.email",
	"phone":          "c.phone",
}

var operatorSQL = map[domain.AudienceOperator]string{
	domain.OpEquals:       "=",
	domain.OpNotEquals:    "!=",
	domain.OpGreaterThan:  ">",
	domain.OpGreaterEqual: ">=",
	domain.OpLessThan:     "<",
	domain.OpLessEqual:    "<=",
}

func (qb *QueryBuilder) buildCustomConditions(conds []domain.AudienceCondition) (string, error) {
	if len(conds) == 0 {
		return matchNone, nil
	}

	parts := make([]string, 0, len(conds))
	for _, cond := range conds {
		col, ok := customFieldColumns[cond.Field]
		if !ok {
			return "", fmt.Errorf("custom condition: unknown field %q", cond.Field)
		}

		switch cond.Operator {
		case domain.OpIsNull:
			parts = append(parts, col+" IS NULL")
		case domain.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		default:
			op, ok := operatorSQL[cond.Operator]
			if !ok {
				return "", fmt.Errorf("custom condition: unknown operator %q", cond.Operator)
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", col, op, qb.nextArg(cond.Value)))
		}
	}

	return "(" + strings.Join(parts, " AND ") + ")", nil
}
