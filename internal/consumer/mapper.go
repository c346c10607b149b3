package consumer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/query"
)

// GraphStore is the subset of the graph repository the consumers write through.
type GraphStore interface {
	CreateNode(ctx context.Context, node *domain.Node) (*domain.Node, error)
	UpdateNode(ctx context.Context, ref domain.NodeRef, partial map[string]any) (*domain.Node, error)
	DeleteNode(ctx context.Context, ref domain.NodeRef) (bool, error)
	FindNodeByID(ctx context.Context, ref domain.NodeRef) (*domain.Node, error)
	CreateRelationship(ctx context.Context, rel *domain.Relationship) error
}

// Mapper translates lifecycle events into graph mutations. Every write is a merge, so
// applying the same event twice leaves the graph unchanged.
type Mapper struct {
	store GraphStore
	nowFn func() time.Time
}

// NewMapper builds a Mapper over store.
func NewMapper(store GraphStore) *Mapper {
	return &Mapper{store: store, nowFn: time.Now}
}

// WithClock overrides the time source used for derived fields.
func (m *Mapper) WithClock(fn func() time.Time) *Mapper {
	if fn != nil {
		m.nowFn = fn
	}
	return m
}

// Apply routes ev to the mapping for its entity kind.
func (m *Mapper) Apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindUser:
		return m.applyUser(ctx, ev)
	case KindTransaction:
		return m.applyTransaction(ctx, ev)
	case KindBudget:
		return m.applyBudget(ctx, ev)
	case KindGoal:
		return m.applyGoal(ctx, ev)
	default:
		return domain.NewValidationError("entityKind", "unsupported entity kind %q", ev.Kind)
	}
}

func (m *Mapper) applyUser(ctx context.Context, ev Event) error {
	ref := domain.NodeRef{ID: ev.EntityID, Type: domain.NodeTypeUser}
	if ev.Type == EventDeleted {
		return m.deleteNode(ctx, ref)
	}

	var payload UserPayload
	if err := decodeData(ev, &payload); err != nil {
		return err
	}
	props := map[string]any{}
	if payload.Email != nil {
		props["email"] = normalizeEmail(*payload.Email)
	}
	if payload.Name != nil {
		props["name"] = sanitizeString(*payload.Name)
	}
	if payload.Country != nil {
		props["country"] = sanitizeString(*payload.Country)
	}
	if payload.Currency != nil {
		props["currency"] = *payload.Currency
	}
	return m.upsert(ctx, ev, ref, props)
}

func (m *Mapper) applyTransaction(ctx context.Context, ev Event) error {
	ref := domain.NodeRef{ID: ev.EntityID, Type: domain.NodeTypeTransaction}
	if ev.Type == EventDeleted {
		return m.deleteNode(ctx, ref)
	}

	var payload TransactionPayload
	if err := decodeData(ev, &payload); err != nil {
		return err
	}
	if payload.Amount != nil && math.IsNaN(*payload.Amount) {
		return domain.NewValidationError("amount", "amount is not a number")
	}

	props := map[string]any{}
	if payload.Amount != nil {
		props["amount"] = *payload.Amount
	}
	if payload.Currency != nil {
		props["currency"] = *payload.Currency
	}
	if payload.Date != nil {
		props["date"] = query.FormatTime(*payload.Date)
	} else if ev.Type == EventCreated && !ev.OccurredAt.IsZero() {
		props["date"] = query.FormatTime(ev.OccurredAt)
	}
	if payload.Description != nil {
		props["description"] = sanitizeString(*payload.Description)
	}
	if payload.Type != nil {
		props["type"] = *payload.Type
	}
	if payload.Status != nil {
		props["status"] = *payload.Status
	}
	if payload.Automated != nil {
		props["automated"] = *payload.Automated
	}
	if err := m.upsert(ctx, ev, ref, props); err != nil {
		return err
	}

	if payload.AccountID != "" {
		account := domain.NodeRef{ID: payload.AccountID, Type: domain.NodeTypeAccount}
		if err := m.ensure(ctx, account, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelMadeTransaction, account, ref); err != nil {
			return err
		}
		if payload.UserID != "" {
			user := domain.NodeRef{ID: payload.UserID, Type: domain.NodeTypeUser}
			if err := m.ensure(ctx, user, nil); err != nil {
				return err
			}
			if err := m.link(ctx, domain.RelOwns, user, account); err != nil {
				return err
			}
		}
	} else if payload.UserID != "" {
		user := domain.NodeRef{ID: payload.UserID, Type: domain.NodeTypeUser}
		if err := m.ensure(ctx, user, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelMadeTransaction, user, ref); err != nil {
			return err
		}
	}

	var merchant, category *domain.NodeRef
	if name := sanitizeString(payload.Category); name != "" {
		category = &domain.NodeRef{ID: derivedID("category", name), Type: domain.NodeTypeCategory}
		if err := m.ensure(ctx, *category, map[string]any{"name": name}); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelBelongsToCategory, ref, *category); err != nil {
			return err
		}
	}
	if name := sanitizeString(payload.Merchant); name != "" {
		merchant = &domain.NodeRef{ID: derivedID("merchant", name), Type: domain.NodeTypeMerchant}
		merchantProps := map[string]any{"name": name}
		if category != nil {
			merchantProps["category"] = sanitizeString(payload.Category)
		}
		if err := m.ensure(ctx, *merchant, merchantProps); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelAtMerchant, ref, *merchant); err != nil {
			return err
		}
		if category != nil {
			if err := m.link(ctx, domain.RelBelongsToCategory, *merchant, *category); err != nil {
				return err
			}
		}
	}

	if payload.BudgetID != "" {
		budget := domain.NodeRef{ID: payload.BudgetID, Type: domain.NodeTypeBudget}
		if err := m.ensure(ctx, budget, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelAffectsBudget, ref, budget); err != nil {
			return err
		}
	}
	if payload.GoalID != "" {
		goal := domain.NodeRef{ID: payload.GoalID, Type: domain.NodeTypeGoal}
		if err := m.ensure(ctx, goal, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelContributesToGoal, ref, goal); err != nil {
			return err
		}
	}

	for _, tag := range payload.Tags {
		name := sanitizeString(tag)
		if name == "" {
			continue
		}
		tagRef := domain.NodeRef{ID: derivedID("tag", name), Type: domain.NodeTypeTag}
		if err := m.ensure(ctx, tagRef, map[string]any{"name": name}); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelHasTag, ref, tagRef); err != nil {
			return err
		}
	}

	if loc := payload.Location; loc != nil {
		id := derivedID("location", loc.City, loc.Country)
		if id == "" {
			return nil
		}
		locRef := domain.NodeRef{ID: id, Type: domain.NodeTypeLocation}
		locProps := map[string]any{
			"city":    sanitizeString(loc.City),
			"country": sanitizeString(loc.Country),
		}
		if loc.Latitude != nil && loc.Longitude != nil {
			locProps["latitude"] = *loc.Latitude
			locProps["longitude"] = *loc.Longitude
		}
		if err := m.ensure(ctx, locRef, locProps); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelAtLocation, ref, locRef); err != nil {
			return err
		}
		if merchant != nil {
			if err := m.link(ctx, domain.RelAtLocation, *merchant, locRef); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Mapper) applyBudget(ctx context.Context, ev Event) error {
	ref := domain.NodeRef{ID: ev.EntityID, Type: domain.NodeTypeBudget}
	if ev.Type == EventDeleted {
		return m.deleteNode(ctx, ref)
	}

	var payload BudgetPayload
	if err := decodeData(ev, &payload); err != nil {
		return err
	}
	props := map[string]any{}
	if payload.Name != nil {
		props["name"] = sanitizeString(*payload.Name)
	}
	if payload.Amount != nil {
		props["amount"] = *payload.Amount
	}
	if payload.Spent != nil {
		props["spent"] = *payload.Spent
	}
	if payload.Period != nil {
		props["period"] = *payload.Period
	}
	if payload.Status != nil {
		props["status"] = *payload.Status
	}
	if payload.StartDate != nil {
		props["startDate"] = query.FormatTime(*payload.StartDate)
	}
	if payload.EndDate != nil {
		props["endDate"] = query.FormatTime(*payload.EndDate)
	}

	if payload.Amount != nil || payload.Spent != nil {
		amount, spent, err := m.budgetFigures(ctx, ev, ref, payload)
		if err != nil {
			return err
		}
		props["utilization"] = ratioPercent(spent, amount)
		props["remaining"] = amount - spent
	}
	if err := m.upsert(ctx, ev, ref, props); err != nil {
		return err
	}

	if payload.UserID != "" {
		user := domain.NodeRef{ID: payload.UserID, Type: domain.NodeTypeUser}
		if err := m.ensure(ctx, user, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelHasBudget, user, ref); err != nil {
			return err
		}
	}
	if name := sanitizeString(payload.Category); name != "" {
		category := domain.NodeRef{ID: derivedID("category", name), Type: domain.NodeTypeCategory}
		if err := m.ensure(ctx, category, map[string]any{"name": name}); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelBelongsToCategory, ref, category); err != nil {
			return err
		}
	}
	return nil
}

// budgetFigures fills whichever of amount and spent the event omitted from the stored node.
func (m *Mapper) budgetFigures(ctx context.Context, ev Event, ref domain.NodeRef, payload BudgetPayload) (float64, float64, error) {
	var amount, spent float64
	if payload.Amount != nil {
		amount = *payload.Amount
	}
	if payload.Spent != nil {
		spent = *payload.Spent
	}
	if (payload.Amount != nil && payload.Spent != nil) || ev.Type == EventCreated {
		return amount, spent, nil
	}
	existing, err := m.store.FindNodeByID(ctx, ref)
	if err != nil {
		return 0, 0, fmt.Errorf("load budget %s: %w", ref.ID, err)
	}
	if existing != nil {
		if payload.Amount == nil {
			amount, _ = existing.FloatProperty("amount")
		}
		if payload.Spent == nil {
			spent, _ = existing.FloatProperty("spent")
		}
	}
	return amount, spent, nil
}

func (m *Mapper) applyGoal(ctx context.Context, ev Event) error {
	ref := domain.NodeRef{ID: ev.EntityID, Type: domain.NodeTypeGoal}
	if ev.Type == EventDeleted {
		return m.deleteNode(ctx, ref)
	}

	var payload GoalPayload
	if err := decodeData(ev, &payload); err != nil {
		return err
	}
	props := map[string]any{}
	if payload.Name != nil {
		props["name"] = sanitizeString(*payload.Name)
	}
	if payload.TargetAmount != nil {
		props["targetAmount"] = *payload.TargetAmount
	}
	if payload.CurrentAmount != nil {
		props["currentAmount"] = *payload.CurrentAmount
	}
	if payload.TargetDate != nil {
		props["targetDate"] = query.FormatTime(*payload.TargetDate)
	}
	if payload.Status != nil {
		props["status"] = *payload.Status
	}
	if payload.Category != nil {
		props["category"] = sanitizeString(*payload.Category)
	}

	var existing *domain.Node
	needsStored := ev.Type == EventUpdated &&
		(payload.TargetAmount == nil || payload.CurrentAmount == nil || payload.TargetDate == nil)
	if needsStored {
		var err error
		existing, err = m.store.FindNodeByID(ctx, ref)
		if err != nil {
			return fmt.Errorf("load goal %s: %w", ref.ID, err)
		}
	}

	target, hasTarget := pickFloat(payload.TargetAmount, existing, "targetAmount")
	current, hasCurrent := pickFloat(payload.CurrentAmount, existing, "currentAmount")
	if hasTarget || hasCurrent {
		props["progress"] = ratioPercent(current, target)
	}
	if deadline, ok := pickTime(payload.TargetDate, existing, "targetDate"); ok {
		props["daysRemaining"] = daysUntil(m.nowFn(), deadline)
	}

	if err := m.upsert(ctx, ev, ref, props); err != nil {
		return err
	}
	if payload.UserID != "" {
		user := domain.NodeRef{ID: payload.UserID, Type: domain.NodeTypeUser}
		if err := m.ensure(ctx, user, nil); err != nil {
			return err
		}
		if err := m.link(ctx, domain.RelHasGoal, user, ref); err != nil {
			return err
		}
	}
	return nil
}

// upsert writes the event's own node. Created events go through CreateNode so a first sighting
// stamps createdAt from the event; updates patch the existing properties.
func (m *Mapper) upsert(ctx context.Context, ev Event, ref domain.NodeRef, props map[string]any) error {
	if ev.Type == EventCreated {
		at := ev.OccurredAt
		if at.IsZero() {
			at = m.nowFn()
		}
		node, err := domain.NewNodeWithID(ref.ID, ref.Type, props, at)
		if err != nil {
			return err
		}
		if _, err := m.store.CreateNode(ctx, node); err != nil {
			return fmt.Errorf("create %s: %w", ref, err)
		}
		return nil
	}
	if _, err := m.store.UpdateNode(ctx, ref, props); err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return nil
}

// ensure merges a referenced node, creating a placeholder when the owning entity's own
// event has not been seen yet.
func (m *Mapper) ensure(ctx context.Context, ref domain.NodeRef, props map[string]any) error {
	if _, err := m.store.UpdateNode(ctx, ref, props); err != nil {
		return fmt.Errorf("ensure %s: %w", ref, err)
	}
	return nil
}

func (m *Mapper) link(ctx context.Context, t domain.RelationshipType, from, to domain.NodeRef) error {
	rel, err := domain.NewRelationship(t, from, to)
	if err != nil {
		return err
	}
	if err := m.store.CreateRelationship(ctx, rel); err != nil {
		return fmt.Errorf("link %s-[%s]->%s: %w", from, t, to, err)
	}
	return nil
}

func (m *Mapper) deleteNode(ctx context.Context, ref domain.NodeRef) error {
	if _, err := m.store.DeleteNode(ctx, ref); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func ratioPercent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// daysUntil counts whole days left until deadline, rounding up and never going negative.
func daysUntil(now, deadline time.Time) int64 {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(remaining.Hours() / 24))
}

func pickFloat(v *float64, existing *domain.Node, key string) (float64, bool) {
	if v != nil {
		return *v, true
	}
	if existing == nil {
		return 0, false
	}
	return existing.FloatProperty(key)
}

func pickTime(v *time.Time, existing *domain.Node, key string) (time.Time, bool) {
	if v != nil {
		return *v, true
	}
	if existing == nil {
		return time.Time{}, false
	}
	switch stored := existing.Properties[key].(type) {
	case time.Time:
		return stored, true
	case string:
		t, err := time.Parse(query.TimeLayout, stored)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
