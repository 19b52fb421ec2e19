package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the single current lifecycle state of a bounty.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusComplete   Status = "complete"
	StatusDeleted    Status = "deleted"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusOpen,
	StatusInProgress,
	StatusInReview,
	StatusComplete,
	StatusDeleted,
}

// Valid reports whether s is one of the fixed statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusDeleted
}

// PaidStatus moves independently of Status.
type PaidStatus string

const (
	Unpaid PaidStatus = "unpaid"
	Paid   PaidStatus = "paid"
)

// Activity names one operation that may transition a bounty or update
// auxiliary fields.
type Activity string

const (
	ActivityCreate   Activity = "create"
	ActivityPublish  Activity = "publish"
	ActivityClaim    Activity = "claim"
	ActivityApply    Activity = "apply"
	ActivityAssign   Activity = "assign"
	ActivitySubmit   Activity = "submit"
	ActivityComplete Activity = "complete"
	ActivityPay      Activity = "pay"
	ActivityDelete   Activity = "delete"
	ActivityTag      Activity = "tag"
	ActivityRefresh  Activity = "refresh"
)

// Activities lists every supported activity.
var Activities = []Activity{
	ActivityCreate,
	ActivityPublish,
	ActivityClaim,
	ActivityApply,
	ActivityAssign,
	ActivitySubmit,
	ActivityComplete,
	ActivityPay,
	ActivityDelete,
	ActivityTag,
	ActivityRefresh,
}

// Valid reports whether a is a supported activity. Documents written by
// other clients may carry names this process does not know.
func (a Activity) Valid() bool {
	for _, v := range Activities {
		if v == a {
			return true
		}
	}
	return false
}

// ParseActivity converts a raw activity name.
func ParseActivity(s string) (Activity, error) {
	a := Activity(s)
	if !a.Valid() {
		return "", NewUnrecognizedActivity(s)
	}
	return a, nil
}

// Origin identifies who performed a mutation: this engine or some other
// writer of the shared store.
type Origin uint8

const (
	OriginUnknown Origin = iota
	OriginInternal
	OriginExternal
)

func (o Origin) String() string {
	switch o {
	case OriginInternal:
		return "internal"
	case OriginExternal:
		return "external"
	default:
		return "unknown"
	}
}

// MarshalText encodes the origin by name so stored documents stay readable
// by clients that do not share this enum.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an origin name. Unknown names decode to
// OriginUnknown, which the reconciler treats like any non-internal origin.
func (o *Origin) UnmarshalText(b []byte) error {
	switch string(b) {
	case "internal":
		*o = OriginInternal
	case "external":
		*o = OriginExternal
	default:
		*o = OriginUnknown
	}
	return nil
}

// ParseOrigin converts a raw origin name.
func ParseOrigin(s string) (Origin, error) {
	var o Origin
	_ = o.UnmarshalText([]byte(s))
	if o == OriginUnknown {
		return OriginUnknown, fmt.Errorf("unknown origin %q", s)
	}
	return o, nil
}

// Audience is one outward rendering location of a bounty.
type Audience string

const (
	AudienceCreator  Audience = "creator"
	AudienceClaimant Audience = "claimant"
	AudienceBoard    Audience = "board"
)

// Audiences lists every audience in a stable order.
var Audiences = []Audience{AudienceCreator, AudienceClaimant, AudienceBoard}

// ActorRef is a lightweight reference to a user of either front-end.
type ActorRef struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

// IsZero reports whether the reference names nobody.
func (a ActorRef) IsZero() bool {
	return a.ID == ""
}

// Reward is a fixed-point amount: Amount * 10^-Scale units of Currency.
type Reward struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Scale    int32  `json:"scale"`
}

// Decimal returns the reward amount as a decimal.
func (r Reward) Decimal() decimal.Decimal {
	return decimal.New(r.Amount, -r.Scale)
}

func (r Reward) String() string {
	return r.Decimal().StringFixed(r.Scale) + " " + r.Currency
}

// StatusEntry records one status change.
type StatusEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// ActivityEntry records one activity and the origin that performed it.
// Actor is nil for automatic transitions such as evergreen closure.
type ActivityEntry struct {
	Activity Activity  `json:"activity"`
	At       time.Time `json:"at"`
	Origin   Origin    `json:"originClient"`
	ClientID string    `json:"clientId,omitempty"`
	Actor    *ActorRef `json:"actor,omitempty"`
}

// Applicant is one pitch made against a bounty that requires application.
type Applicant struct {
	Actor ActorRef `json:"actor"`
	Pitch string   `json:"pitch"`
}

// ViewPointer locates an outward rendering. It is a weak reference: the
// rendering may have been deleted without the store knowing.
type ViewPointer struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Gate restricts who may act on a bounty. It is evaluated by an external
// authorization collaborator, never by the engine.
type Gate struct {
	RoleID string `json:"roleId,omitempty"`
	UserID string `json:"userId,omitempty"`
}
