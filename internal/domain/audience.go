package domain

// AudienceKind discriminates the closed set of audience spec variants.
type AudienceKind string

const (
	AudienceAll            AudienceKind = "all"
	AudienceTagged         AudienceKind = "tagged"
	AudienceInactiveSince  AudienceKind = "inactive_since"
	AudienceWalletRange    AudienceKind = "wallet_range"
	AudienceCustom         AudienceKind = "custom"
	AudienceLocationRadius AudienceKind = "location_radius"
)

// AudienceSpec is the targeting rule attached to a campaign. It is a tagged
// union: Kind selects the variant and only that variant's fields are read.
// Specs are immutable once attached to a campaign and are persisted as JSON.
//
// Unrecognized kinds resolve to zero matches by policy. The resolver never
// errors on a kind it does not understand, so a newer writer cannot crash an
// older reader.
type AudienceSpec struct {
	Kind AudienceKind `json:"kind"`

	// Tagged: customers with at least one assignment in TagIDs.
	TagIDs []string `json:"tag_ids,omitempty"`

	// InactiveSince: customers whose last visit is older than InactiveDays,
	// or who never visited at all (null last_visit_at counts as maximally
	// inactive).
	InactiveDays int `json:"inactive_days,omitempty"`

	// WalletRange: loyalty points within [MinPoints, MaxPoints]. A nil
	// MinPoints means 0 so zero-balance customers stay includable; a nil
	// MaxPoints means unbounded.
	MinPoints *int `json:"min_points,omitempty"`
	MaxPoints *int `json:"max_points,omitempty"`

	// Custom: caller-supplied predicate conditions, ANDed together.
	Conditions []AudienceCondition `json:"conditions,omitempty"`

	// LocationRadius: recognized but not yet resolvable (no geo columns).
	CenterLat float64 `json:"center_lat,omitempty"`
	CenterLng float64 `json:"center_lng,omitempty"`
	RadiusKM  float64 `json:"radius_km,omitempty"`
}

// AudienceOperator enumerates the comparison operators allowed in custom
// audience conditions.
type AudienceOperator string

const (
	OpEquals       AudienceOperator = "eq"
	OpNotEquals    AudienceOperator = "neq"
	OpGreaterThan  AudienceOperator = "gt"
	OpGreaterEqual AudienceOperator = "gte"
	OpLessThan     AudienceOperator = "lt"
	OpLessEqual    AudienceOperator = "lte"
	OpIsNull       AudienceOperator = "is_null"
	OpNotNull      AudienceOperator = "not_null"
)

// AudienceCondition is one field comparison inside a custom audience spec.
// Fields are restricted to a whitelist by the query builder.
type AudienceCondition struct {
	Field    string           `json:"field"`
	Operator AudienceOperator `json:"operator"`
	Value    string           `json:"value,omitempty"`
}
