package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

// EntityKind names the upstream entity an event describes.
type EntityKind string

const (
	KindUser        EntityKind = "user"
	KindTransaction EntityKind = "transaction"
	KindBudget      EntityKind = "budget"
	KindGoal        EntityKind = "goal"
)

// EventType is the lifecycle transition carried by an event.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is the envelope shared by every upstream lifecycle event.
// Data holds the entity's current field values; its shape depends on Kind.
type Event struct {
	ID         string          `json:"eventId"`
	Kind       EntityKind      `json:"entityKind"`
	Type       EventType       `json:"eventType"`
	EntityID   string          `json:"entityId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Key identifies the entity for retry accounting.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.EntityID)
}

// DecodeEvent parses and validates an event payload.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, domain.NewValidationError("event", "malformed event: %v", err)
	}
	if ev.EntityID == "" {
		return Event{}, domain.NewValidationError("entityId", "event has no entity id")
	}
	switch ev.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return Event{}, domain.NewValidationError("eventType", "unknown event type %q", ev.Type)
	}
	return ev, nil
}

func decodeData(ev Event, dst any) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		return domain.NewValidationError("data", "malformed %s payload: %v", ev.Kind, err)
	}
	return nil
}

// UserPayload carries user fields.
type UserPayload struct {
	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Country  *string `json:"country,omitempty"`
	Currency *string `json:"currency,omitempty"`
}

// Location is where a transaction took place.
type Location struct {
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// TransactionPayload carries transaction fields. Pointer fields are optional on updates.
type TransactionPayload struct {
	UserID      string     `json:"userId,omitempty"`
	AccountID   string     `json:"accountId,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Currency    *string    `json:"currency,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Description *string    `json:"description,omitempty"`
	Type        *string    `json:"type,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Automated   *bool      `json:"automated,omitempty"`
	Merchant    string     `json:"merchant,omitempty"`
	Category    string     `json:"category,omitempty"`
	BudgetID    string     `json:"budgetId,omitempty"`
	GoalID      string     `json:"goalId,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Location    *Location  `json:"location,omitempty"`
}

// BudgetPayload carries budget fields.
type BudgetPayload struct {
	UserID    string     `json:"userId,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Amount    *float64   `json:"amount,omitempty"`
	Spent     *float64   `json:"spent,omitempty"`
	Period    *string    `json:"period,omitempty"`
	Status    *string    `json:"status,omitempty"`
	Category  string     `json:"category,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// GoalPayload carries goal fields.
type GoalPayload struct {
	UserID        string     `json:"userId,omitempty"`
	Name          *string    `json:"name,omitempty"`
	TargetAmount  *float64   `json:"targetAmount,omitempty"`
	CurrentAmount *float64   `json:"currentAmount,omitempty"`
	TargetDate    *time.Time `json:"targetDate,omitempty"`
	Status        *string    `json:"status,omitempty"`
	Category      *string    `json:"category,omitempty"`
}
