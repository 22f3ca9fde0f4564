// Package ofx reads OFX/QFX statement files and serves them as a bank provider.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/aclindsa/ofxgo"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that lost their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// merchantPrefixes are card-network noise in front of the merchant name.
var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"RECURRING PAYMENT ",
	"AUTOPAY ",
}

// Statement is the content of one parsed OFX file.
type Statement struct {
	Accounts     []model.Account
	Transactions []model.Transaction
}

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{logger: slog.Default().With("component", "ofx")}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Parse reads one OFX document with its bank and credit card statements.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*Statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	stmt := &Statement{}
	seen := make(map[string]bool)
	addAccount := func(id, kind string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		stmt.Accounts = append(stmt.Accounts, model.Account{ID: id, Name: maskAccount(id), Type: kind})
	}

	for _, msg := range resp.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		accountID := string(bank.BankAcctFrom.AcctID)
		addAccount(accountID, strings.ToLower(bank.BankAcctFrom.AcctType.String()))
		if bank.BankTranList == nil {
			continue
		}
		for _, ofxTx := range bank.BankTranList.Transactions {
			stmt.Transactions = append(stmt.Transactions, p.convertTransaction(ofxTx, accountID))
		}
	}

	for _, msg := range resp.CreditCard {
		card, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		accountID := string(card.CCAcctFrom.AcctID)
		addAccount(accountID, "credit")
		if card.BankTranList == nil {
			continue
		}
		for _, ofxTx := range card.BankTranList.Transactions {
			stmt.Transactions = append(stmt.Transactions, p.convertTransaction(ofxTx, accountID))
		}
	}

	p.logger.Debug("Parsed OFX document",
		"accounts", len(stmt.Accounts),
		"transactions", len(stmt.Transactions))

	return stmt, nil
}

// convertTransaction converts an OFX transaction to our model.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) model.Transaction {
	// OFX uses negative amounts for debits.
	amount, _ := ofxTx.TrnAmt.Float64()
	direction := model.DirectionExpense
	if amount > 0 {
		direction = model.DirectionIncome
	}
	if amount < 0 {
		amount = -amount
	}

	tx := model.Transaction{
		ID:           string(ofxTx.FiTID),
		Date:         ofxTx.DtPosted.Time,
		Name:         string(ofxTx.Name),
		MerchantName: p.extractMerchantName(ofxTx),
		Amount:       amount,
		AccountID:    accountID,
		Direction:    direction,
		Type:         ofxTx.TrnType.String(),
	}

	switch tx.Type {
	case "INT", "DIV":
		tx.Category = []string{"Income", "Interest"}
	case "FEE", "SRVCHG":
		tx.Category = []string{"Bank Fees"}
	case "ATM", "CASH":
		tx.Category = []string{"Cash & ATM"}
	}

	tx.Hash = tx.GenerateHash()
	return tx
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	// PAYEE is usually cleaner than NAME.
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting dates
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE", "ACH DEBIT":
		return true
	}
	return false
}

func maskAccount(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "..." + id[len(id)-4:]
}
