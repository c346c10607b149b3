package generator

import "time"

// Topics names the queue each entity kind is published to.
type Topics struct {
	Users        string
	Transactions string
	Budgets      string
	Goals        string
}

// Config drives the synthetic event generator.
type Config struct {
	NumUsers            int
	TransactionsPerUser int
	HistoryDays         int
	// SubscriptionChance is the probability that a user carries each monthly subscription.
	SubscriptionChance float64
	Seed               int64
	// Now anchors the generated history. Zero means the current time.
	Now    time.Time
	Topics Topics
}

// DefaultConfig returns settings that give every detector something to find.
func DefaultConfig() Config {
	return Config{
		NumUsers:            50,
		TransactionsPerUser: 60,
		HistoryDays:         90,
		SubscriptionChance:  0.5,
		Seed:                42,
		Topics: Topics{
			Users:        "fingraph.users",
			Transactions: "fingraph.transactions",
			Budgets:      "fingraph.budgets",
			Goals:        "fingraph.goals",
		},
	}
}
