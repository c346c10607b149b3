package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/fingraph/internal/consumer"
)

const day = 24 * time.Hour

// Message is one generated event and the topic it belongs on.
type Message struct {
	Topic string         `json:"topic"`
	Event consumer.Event `json:"event"`
}

// Dataset contains the generated lifecycle events in publication order.
type Dataset struct {
	Messages []Message `json:"messages"`
}

// Count returns how many events of kind the dataset holds.
func (d Dataset) Count(kind consumer.EntityKind) int {
	n := 0
	for _, m := range d.Messages {
		if m.Event.Kind == kind {
			n++
		}
	}
	return n
}

// Generator produces synthetic lifecycle events shaped like the upstream finance application's.
type Generator struct {
	cfg       Config
	rand      *rand.Rand
	fragments nameFragments
	nextTx    int
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumUsers <= 0 {
		cfg.NumUsers = def.NumUsers
	}
	if cfg.TransactionsPerUser <= 0 {
		cfg.TransactionsPerUser = def.TransactionsPerUser
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = def.HistoryDays
	}
	if cfg.SubscriptionChance < 0 {
		cfg.SubscriptionChance = 0
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	cfg.Now = cfg.Now.UTC()
	if cfg.Topics.Users == "" {
		cfg.Topics.Users = def.Topics.Users
	}
	if cfg.Topics.Transactions == "" {
		cfg.Topics.Transactions = def.Topics.Transactions
	}
	if cfg.Topics.Budgets == "" {
		cfg.Topics.Budgets = def.Topics.Budgets
	}
	if cfg.Topics.Goals == "" {
		cfg.Topics.Goals = def.Topics.Goals
	}

	return &Generator{
		cfg:       cfg,
		rand:      rand.New(rand.NewSource(cfg.Seed)),
		fragments: defaultNameFragments(),
	}
}

// Generate synthesises users with their budgets, goals and transaction history.
// Events are ordered by occurrence time. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	var messages []Message
	start := g.cfg.Now.Add(-time.Duration(g.cfg.HistoryDays) * day)

	for i := 0; i < g.cfg.NumUsers; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		userID := fmt.Sprintf("USR-%05d", i+1)
		joined := start.Add(-time.Duration(1+g.rand.Intn(48)) * time.Hour)

		user, err := g.userEvent(userID, joined)
		if err != nil {
			return Dataset{}, err
		}
		messages = append(messages, user)

		budgets, err := g.budgetEvents(userID, joined, start)
		if err != nil {
			return Dataset{}, err
		}
		messages = append(messages, budgets...)

		goal, updates, err := g.goalEvents(userID, joined)
		if err != nil {
			return Dataset{}, err
		}
		messages = append(messages, goal)
		messages = append(messages, updates...)

		txs, err := g.transactionEvents(userID, start, budgetIDs(userID))
		if err != nil {
			return Dataset{}, err
		}
		messages = append(messages, txs...)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Event.OccurredAt.Before(messages[j].Event.OccurredAt)
	})
	return Dataset{Messages: messages}, nil
}

func (g *Generator) userEvent(userID string, at time.Time) (Message, error) {
	first := pick(g, g.fragments.first)
	last := pick(g, g.fragments.last)
	name := first + " " + last
	email := fmt.Sprintf("%s.%s@%s", first, last, pick(g, g.fragments.domains))
	country := "US"
	currency := "USD"
	return g.message(g.cfg.Topics.Users, consumer.KindUser, consumer.EventCreated, userID, at, consumer.UserPayload{
		Email:    &email,
		Name:     &name,
		Country:  &country,
		Currency: &currency,
	})
}

func budgetIDs(userID string) map[string]string {
	ids := make(map[string]string, len(budgetCategories))
	for _, b := range budgetCategories {
		ids[b.category] = fmt.Sprintf("BDG-%s-%s", userID, b.slug)
	}
	return ids
}

func (g *Generator) budgetEvents(userID string, at, periodStart time.Time) ([]Message, error) {
	ids := budgetIDs(userID)
	var out []Message
	for _, b := range budgetCategories {
		name := b.category + " budget"
		amount := b.base + float64(g.rand.Intn(10))*25
		spent := 0.0
		period := "monthly"
		status := "active"
		end := periodStart.Add(time.Duration(g.cfg.HistoryDays+30) * day)
		msg, err := g.message(g.cfg.Topics.Budgets, consumer.KindBudget, consumer.EventCreated, ids[b.category], at, consumer.BudgetPayload{
			UserID:    userID,
			Name:      &name,
			Amount:    &amount,
			Spent:     &spent,
			Period:    &period,
			Status:    &status,
			Category:  b.category,
			StartDate: &periodStart,
			EndDate:   &end,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// goalEvents creates a savings goal and a monthly contribution update for each elapsed month.
func (g *Generator) goalEvents(userID string, at time.Time) (Message, []Message, error) {
	goalID := fmt.Sprintf("GOAL-%s", userID)
	name := pick(g, g.fragments.goals)
	target := float64(1000 + g.rand.Intn(20)*250)
	current := 0.0
	targetDate := g.cfg.Now.Add(time.Duration(60+g.rand.Intn(300)) * day)
	status := "active"
	category := "savings"

	created, err := g.message(g.cfg.Topics.Goals, consumer.KindGoal, consumer.EventCreated, goalID, at, consumer.GoalPayload{
		UserID:        userID,
		Name:          &name,
		TargetAmount:  &target,
		CurrentAmount: &current,
		TargetDate:    &targetDate,
		Status:        &status,
		Category:      &category,
	})
	if err != nil {
		return Message{}, nil, err
	}

	var updates []Message
	for when := at.Add(30 * day); when.Before(g.cfg.Now); when = when.Add(30 * day) {
		current = round2(current + target*(0.05+g.rand.Float64()*0.1))
		amount := current
		msg, err := g.message(g.cfg.Topics.Goals, consumer.KindGoal, consumer.EventUpdated, goalID, when, consumer.GoalPayload{
			CurrentAmount: &amount,
		})
		if err != nil {
			return Message{}, nil, err
		}
		updates = append(updates, msg)
	}
	return created, updates, nil
}

func (g *Generator) transactionEvents(userID string, start time.Time, budgets map[string]string) ([]Message, error) {
	accountID := fmt.Sprintf("ACC-%s", userID)
	city := pick(g, g.fragments.cities)
	var out []Message

	for _, sub := range subscriptions {
		if g.rand.Float64() >= g.cfg.SubscriptionChance {
			continue
		}
		// Monthly charges on a fixed day offset, for the same amount.
		first := start.Add(time.Duration(g.rand.Intn(20))*day + 9*time.Hour)
		for when := first; when.Before(g.cfg.Now); when = when.Add(30 * day) {
			msg, err := g.transaction(userID, accountID, when, sub.amount, sub.merchant, sub.category, true, budgets, city, []string{"subscription"})
			if err != nil {
				return nil, err
			}
			out = append(out, msg)
		}
	}

	span := g.cfg.Now.Sub(start)
	for i := 0; i < g.cfg.TransactionsPerUser; i++ {
		m := merchants[g.rand.Intn(len(merchants))]
		when := start.Add(time.Duration(g.rand.Int63n(int64(span))))
		amount := round2(m.low + g.rand.Float64()*(m.high-m.low))
		var tags []string
		if g.rand.Float64() < 0.1 {
			tags = []string{pick(g, g.fragments.tags)}
		}
		msg, err := g.transaction(userID, accountID, when, amount, m.name, m.category, false, budgets, city, tags)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (g *Generator) transaction(userID, accountID string, when time.Time, amount float64, merchant, category string, automated bool, budgets map[string]string, city string, tags []string) (Message, error) {
	g.nextTx++
	txID := fmt.Sprintf("TX-%07d", g.nextTx)
	currency := "USD"
	kind := "debit"
	status := "completed"
	description := merchant
	date := when
	return g.message(g.cfg.Topics.Transactions, consumer.KindTransaction, consumer.EventCreated, txID, when, consumer.TransactionPayload{
		UserID:      userID,
		AccountID:   accountID,
		Amount:      &amount,
		Currency:    &currency,
		Date:        &date,
		Description: &description,
		Type:        &kind,
		Status:      &status,
		Automated:   &automated,
		Merchant:    merchant,
		Category:    category,
		BudgetID:    budgets[category],
		Tags:        tags,
		Location:    &consumer.Location{City: city, Country: "US"},
	})
}

func (g *Generator) message(topic string, kind consumer.EntityKind, typ consumer.EventType, entityID string, at time.Time, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return Message{}, fmt.Errorf("event id: %w", err)
	}
	return Message{
		Topic: topic,
		Event: consumer.Event{
			ID:         id.String(),
			Kind:       kind,
			Type:       typ,
			EntityID:   entityID,
			OccurredAt: at,
			Data:       raw,
		},
	}, nil
}

func pick(g *Generator, options []string) string {
	return options[g.rand.Intn(len(options))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type merchantProfile struct {
	name      string
	category  string
	low, high float64
}

var merchants = []merchantProfile{
	{"Blue Bottle Coffee", "Dining", 4, 9},
	{"Corner Bistro", "Dining", 18, 65},
	{"Whole Foods", "Groceries", 25, 140},
	{"Trader Joe's", "Groceries", 15, 90},
	{"Shell", "Transport", 30, 70},
	{"Uber", "Transport", 8, 45},
	{"Amazon", "Shopping", 12, 220},
	{"Target", "Shopping", 10, 150},
	{"AMC Theatres", "Entertainment", 12, 40},
	{"CVS Pharmacy", "Health", 6, 60},
}

type subscription struct {
	merchant string
	category string
	amount   float64
}

var subscriptions = []subscription{
	{"Netflix", "Entertainment", 15.49},
	{"Spotify", "Entertainment", 10.99},
	{"Equinox", "Health", 45.00},
}

var budgetCategories = []struct {
	category string
	slug     string
	base     float64
}{
	{"Dining", "dining", 250},
	{"Groceries", "groceries", 400},
	{"Shopping", "shopping", 300},
}

type nameFragments struct {
	first   []string
	last    []string
	domains []string
	cities  []string
	goals   []string
	tags    []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:   []string{"jane", "john", "alex", "priya", "liu", "maria", "omar", "sofia", "noah", "emma", "lucas", "mia", "ava", "ethan", "zara"},
		last:    []string{"doe", "smith", "chen", "patel", "garcia", "khan", "kim", "ivanov", "nguyen", "silva", "brown", "lee"},
		domains: []string{"example.com", "mail.com", "fingraph.dev", "inbox.net"},
		cities:  []string{"San Francisco", "New York", "Seattle", "Austin", "Chicago", "Miami", "Denver", "Boston"},
		goals:   []string{"Emergency fund", "Vacation", "New laptop", "House deposit", "Wedding"},
		tags:    []string{"work", "travel", "gift", "reimbursable"},
	}
}
