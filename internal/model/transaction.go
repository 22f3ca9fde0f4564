package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// TransactionDirection indicates whether money left or entered the account.
type TransactionDirection string

const (
	// DirectionExpense is outgoing spend.
	DirectionExpense TransactionDirection = "expense"
	// DirectionIncome is incoming money (refunds, deposits).
	DirectionIncome TransactionDirection = "income"
)

// Transaction represents a single bank or card transaction from any bank provider.
type Transaction struct {
	Date         time.Time            `json:"date"`
	ID           string               `json:"id"`
	AccountID    string               `json:"account_id"`
	Name         string               `json:"description"`             // Raw transaction description
	MerchantName string               `json:"merchant_hint,omitempty"` // Cleaned merchant name when the provider has one
	Hash         string               `json:"-"`
	Direction    TransactionDirection `json:"direction,omitempty"`
	Type         string               `json:"type,omitempty"` // e.g. DEBIT, CHECK, ONLINE
	Category     []string             `json:"category,omitempty"`
	Amount       float64              `json:"amount"` // Absolute value
}

// Merchant returns the best available merchant text for grouping.
func (t *Transaction) Merchant() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Name
}

// IsExpense reports whether the transaction is outgoing spend.
// Transactions without a direction are treated as spend, which is what
// statement sources that only report debits produce.
func (t *Transaction) IsExpense() bool {
	return t.Direction != DirectionIncome
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.MerchantName,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Account is a bank or card account reachable through an access token.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Email is one fetched message that may describe a bill.
type Email struct {
	Date    time.Time `json:"date"`
	ID      string    `json:"id"`
	Account string    `json:"account,omitempty"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
}
