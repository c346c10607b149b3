package domain

import "time"

// TransactionRecord is the flattened view of a transaction used by pattern detection.
type TransactionRecord struct {
	ID           string
	Amount       float64
	Date         time.Time
	MerchantID   string
	MerchantName string
	CategoryID   string
	CategoryName string
	Automated    bool
}
