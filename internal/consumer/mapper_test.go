package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/fingraph/internal/domain"
)

func decodeTestEvent(t *testing.T, payload []byte) Event {
	t.Helper()
	ev, err := DecodeEvent(payload)
	require.NoError(t, err)
	return ev
}

func TestMapper_TransactionLinksEveryReference(t *testing.T) {
	store := newMemoryStore()
	m := NewMapper(store)
	date := time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)

	ev := decodeTestEvent(t, eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{
		UserID:    "u-1",
		AccountID: "acc-1",
		Amount:    ptr(15.99),
		Date:      &date,
		Merchant:  "  Netflix   Inc ",
		Category:  "Streaming",
		BudgetID:  "b-1",
		GoalID:    "g-1",
		Tags:      []string{"Subscription", " "},
		Location:  &Location{City: "Berlin", Country: "DE"},
		Automated: ptr(true),
	}))
	require.NoError(t, m.Apply(context.Background(), ev))

	tx := domain.NodeRef{ID: "tx-1", Type: domain.NodeTypeTransaction}
	account := domain.NodeRef{ID: "acc-1", Type: domain.NodeTypeAccount}
	user := domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser}
	merchant := domain.NodeRef{ID: "merchant-netflix-inc", Type: domain.NodeTypeMerchant}
	category := domain.NodeRef{ID: "category-streaming", Type: domain.NodeTypeCategory}
	location := domain.NodeRef{ID: "location-berlin-de", Type: domain.NodeTypeLocation}

	assert.True(t, store.hasRel(domain.RelMadeTransaction, account, tx))
	assert.True(t, store.hasRel(domain.RelOwns, user, account))
	assert.True(t, store.hasRel(domain.RelAtMerchant, tx, merchant))
	assert.True(t, store.hasRel(domain.RelBelongsToCategory, tx, category))
	assert.True(t, store.hasRel(domain.RelBelongsToCategory, merchant, category))
	assert.True(t, store.hasRel(domain.RelAffectsBudget, tx, domain.NodeRef{ID: "b-1", Type: domain.NodeTypeBudget}))
	assert.True(t, store.hasRel(domain.RelContributesToGoal, tx, domain.NodeRef{ID: "g-1", Type: domain.NodeTypeGoal}))
	assert.True(t, store.hasRel(domain.RelHasTag, tx, domain.NodeRef{ID: "tag-subscription", Type: domain.NodeTypeTag}))
	assert.True(t, store.hasRel(domain.RelAtLocation, tx, location))
	assert.True(t, store.hasRel(domain.RelAtLocation, merchant, location))
	assert.Equal(t, 1, store.count(domain.NodeTypeTag))

	node := store.node(domain.NodeTypeTransaction, "tx-1")
	require.NotNil(t, node)
	assert.Equal(t, "2024-02-10T09:30:00Z", node.StringProperty("date"))
	assert.Equal(t, true, node.Properties["automated"])
	assert.Equal(t, "Netflix Inc", store.node(domain.NodeTypeMerchant, merchant.ID).StringProperty("name"))
}

func TestMapper_SameMerchantNameMergesAcrossTransactions(t *testing.T) {
	store := newMemoryStore()
	m := NewMapper(store)
	ctx := context.Background()

	for i, name := range []string{"Spotify", "spotify ", "SPOTIFY"} {
		id := []string{"a", "b", "c"}[i]
		ev := decodeTestEvent(t, eventPayload(t, KindTransaction, EventCreated, id, TransactionPayload{Amount: ptr(9.99), Merchant: name}))
		require.NoError(t, m.Apply(ctx, ev))
	}
	assert.Equal(t, 1, store.count(domain.NodeTypeMerchant))
	assert.Equal(t, 3, store.count(domain.NodeTypeTransaction))
}

func TestMapper_TransactionWithoutAccountLinksUser(t *testing.T) {
	store := newMemoryStore()
	ev := decodeTestEvent(t, eventPayload(t, KindTransaction, EventCreated, "tx-5", TransactionPayload{UserID: "u-5", Amount: ptr(3.0)}))

	require.NoError(t, NewMapper(store).Apply(context.Background(), ev))
	assert.True(t, store.hasRel(domain.RelMadeTransaction,
		domain.NodeRef{ID: "u-5", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "tx-5", Type: domain.NodeTypeTransaction}))
	assert.Equal(t, 0, store.count(domain.NodeTypeAccount))
}

func TestMapper_GoalDerivedFields(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMapper(store).WithClock(func() time.Time { return now })
	ctx := context.Background()
	target := now.Add(10*24*time.Hour + time.Hour)

	created := decodeTestEvent(t, eventPayload(t, KindGoal, EventCreated, "g-1", GoalPayload{
		UserID:        "u-1",
		Name:          ptr("Emergency fund"),
		TargetAmount:  ptr(1000.0),
		CurrentAmount: ptr(250.0),
		TargetDate:    &target,
	}))
	require.NoError(t, m.Apply(ctx, created))

	goal := store.node(domain.NodeTypeGoal, "g-1")
	require.NotNil(t, goal)
	progress, _ := goal.FloatProperty("progress")
	assert.Equal(t, 25.0, progress)
	assert.Equal(t, int64(11), goal.Properties["daysRemaining"])
	assert.True(t, store.hasRel(domain.RelHasGoal,
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "g-1", Type: domain.NodeTypeGoal}))

	updated := decodeTestEvent(t, eventPayload(t, KindGoal, EventUpdated, "g-1", GoalPayload{CurrentAmount: ptr(600.0)}))
	require.NoError(t, m.Apply(ctx, updated))

	goal = store.node(domain.NodeTypeGoal, "g-1")
	progress, _ = goal.FloatProperty("progress")
	assert.Equal(t, 60.0, progress)
	assert.Equal(t, int64(11), goal.Properties["daysRemaining"])
	assert.Equal(t, "Emergency fund", goal.StringProperty("name"))
}

func TestMapper_GoalPastDeadlineAndZeroTarget(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMapper(store).WithClock(func() time.Time { return now })
	past := now.Add(-48 * time.Hour)

	ev := decodeTestEvent(t, eventPayload(t, KindGoal, EventCreated, "g-2", GoalPayload{
		TargetAmount:  ptr(0.0),
		CurrentAmount: ptr(50.0),
		TargetDate:    &past,
	}))
	require.NoError(t, m.Apply(context.Background(), ev))

	goal := store.node(domain.NodeTypeGoal, "g-2")
	assert.Equal(t, 0.0, goal.Properties["progress"])
	assert.Equal(t, int64(0), goal.Properties["daysRemaining"])
}

func TestMapper_BudgetUtilization(t *testing.T) {
	store := newMemoryStore()
	m := NewMapper(store)
	ctx := context.Background()

	created := decodeTestEvent(t, eventPayload(t, KindBudget, EventCreated, "b-1", BudgetPayload{
		UserID:   "u-1",
		Name:     ptr("Groceries"),
		Amount:   ptr(400.0),
		Spent:    ptr(100.0),
		Category: "Groceries",
	}))
	require.NoError(t, m.Apply(ctx, created))

	budget := store.node(domain.NodeTypeBudget, "b-1")
	assert.Equal(t, 25.0, budget.Properties["utilization"])
	assert.Equal(t, 300.0, budget.Properties["remaining"])
	assert.True(t, store.hasRel(domain.RelHasBudget,
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "b-1", Type: domain.NodeTypeBudget}))
	assert.True(t, store.hasRel(domain.RelBelongsToCategory,
		domain.NodeRef{ID: "b-1", Type: domain.NodeTypeBudget},
		domain.NodeRef{ID: "category-groceries", Type: domain.NodeTypeCategory}))

	updated := decodeTestEvent(t, eventPayload(t, KindBudget, EventUpdated, "b-1", BudgetPayload{Spent: ptr(500.0)}))
	require.NoError(t, m.Apply(ctx, updated))

	budget = store.node(domain.NodeTypeBudget, "b-1")
	assert.Equal(t, 125.0, budget.Properties["utilization"])
	assert.Equal(t, -100.0, budget.Properties["remaining"])
}

func TestMapper_DeleteRemovesNodeAndEdges(t *testing.T) {
	store := newMemoryStore()
	m := NewMapper(store)
	ctx := context.Background()

	created := decodeTestEvent(t, eventPayload(t, KindTransaction, EventCreated, "tx-1", TransactionPayload{UserID: "u-1", Amount: ptr(2.0)}))
	require.NoError(t, m.Apply(ctx, created))

	deleted := decodeTestEvent(t, eventPayload(t, KindTransaction, EventDeleted, "tx-1", nil))
	require.NoError(t, m.Apply(ctx, deleted))

	assert.Nil(t, store.node(domain.NodeTypeTransaction, "tx-1"))
	assert.NotNil(t, store.node(domain.NodeTypeUser, "u-1"))
	assert.False(t, store.hasRel(domain.RelMadeTransaction,
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "tx-1", Type: domain.NodeTypeTransaction}))

	require.NoError(t, m.Apply(ctx, deleted))
}

func TestMapper_UnknownKind(t *testing.T) {
	err := NewMapper(newMemoryStore()).Apply(context.Background(), Event{Kind: "merchant", Type: EventCreated, EntityID: "m-1"})
	assert.True(t, domain.IsValidation(err))
}

func TestDerivedID(t *testing.T) {
	assert.Equal(t, "merchant-whole-foods", derivedID("merchant", "  Whole   Foods "))
	assert.Equal(t, "location-sao-paulo-br", derivedID("location", "Sao Paulo", "BR"))
	assert.Equal(t, "", derivedID("tag", "   "))

	hashed := derivedID("merchant", "カフェ")
	assert.Len(t, hashed, len("merchant-")+16)
	assert.Equal(t, hashed, derivedID("merchant", "カフェ"))
}
