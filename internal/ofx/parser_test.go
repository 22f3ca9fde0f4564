package ofx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 3,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewParser().Parse(context.Background(), strings.NewReader(tt.ofxData))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, stmt.Transactions, tt.expectedCount)
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	stmt, err := NewParser().Parse(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 3)

	tx1 := stmt.Transactions[0]
	assert.Equal(t, "2024011501", tx1.ID)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Name)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.MerchantName) // No PAYEE, so uses NAME
	assert.Equal(t, 25.50, tx1.Amount)
	assert.Equal(t, model.DirectionExpense, tx1.Direction)
	assert.Equal(t, "1234567890", tx1.AccountID)
	assert.Equal(t, "DEBIT", tx1.Type)
	assert.Equal(t, 2024, tx1.Date.Year())
	assert.Equal(t, time.January, tx1.Date.Month())
	assert.Equal(t, 15, tx1.Date.Day())
	assert.Equal(t, tx1.GenerateHash(), tx1.Hash)

	tx3 := stmt.Transactions[2]
	assert.Equal(t, "CHECK #1234", tx3.Name)
	assert.Equal(t, "CHECK", tx3.Type)
	assert.Equal(t, 500.00, tx3.Amount)

	require.Len(t, stmt.Accounts, 1)
	assert.Equal(t, model.Account{ID: "1234567890", Name: "...7890", Type: "checking"}, stmt.Accounts[0])
}

func TestParseCreditCardTransactions(t *testing.T) {
	stmt, err := NewParser().Parse(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 2)

	tx1 := stmt.Transactions[0]
	assert.Equal(t, "CC2024011001", tx1.ID)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", tx1.Name)
	assert.Equal(t, 45.99, tx1.Amount)
	assert.Equal(t, "4111111111111111", tx1.AccountID)

	tx2 := stmt.Transactions[1]
	assert.Equal(t, "NETFLIX.COM", tx2.Name)
	assert.Equal(t, 15.00, tx2.Amount)

	require.Len(t, stmt.Accounts, 1)
	assert.Equal(t, "credit", stmt.Accounts[0].Type)
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		memo     string
		payee    string
		expected string
	}{
		{name: "remove POS prefix", input: "POS PURCHASE STARBUCKS", expected: "STARBUCKS"},
		{name: "remove DEBIT CARD prefix", input: "DEBIT CARD PURCHASE WHOLE FOODS", expected: "WHOLE FOODS"},
		{name: "remove recurring prefix", input: "RECURRING PAYMENT SPOTIFY USA", expected: "SPOTIFY USA"},
		{name: "keep clean name", input: "NETFLIX.COM", expected: "NETFLIX.COM"},
		{name: "trim whitespace", input: "  AMAZON.COM  ", expected: "AMAZON.COM"},
		{name: "strip posting date", input: "03/01 COMCAST CABLE", expected: "COMCAST CABLE"},
		{name: "generic name uses memo", input: "PAYMENT", memo: "PGANDE WEB ONLINE", expected: "PGANDE WEB ONLINE"},
		{name: "payee wins", input: "ACH DEBIT 1234", payee: "Pacific Gas & Electric", expected: "Pacific Gas & Electric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
				Memo: ofxgo.String(tt.memo),
			}
			if tt.payee != "" {
				tx.Payee = &ofxgo.Payee{Name: ofxgo.String(tt.payee)}
			}
			assert.Equal(t, tt.expected, parser.extractMerchantName(tx))
		})
	}
}

func writeStatement(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestProvider_ListTransactions(t *testing.T) {
	dir := t.TempDir()
	writeStatement(t, dir, "checking.ofx", sampleBankOFX)
	writeStatement(t, dir, "card.QFX", sampleCreditCardOFX)
	writeStatement(t, dir, "card-copy.qfx", sampleCreditCardOFX)
	writeStatement(t, dir, "notes.txt", "not a statement")

	p := NewProvider()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	txs, err := p.ListTransactions(context.Background(), TokenPrefix+dir, start, end)
	require.NoError(t, err)
	require.Len(t, txs, 5, "duplicate statements collapse by account and FITID")
	for i := 1; i < len(txs); i++ {
		assert.False(t, txs[i].Date.Before(txs[i-1].Date))
	}

	narrow, err := p.ListTransactions(context.Background(), TokenPrefix+dir, start, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, narrow, 1)
	assert.Equal(t, "CC2024011001", narrow[0].ID)

	accounts, err := p.ListAccounts(context.Background(), TokenPrefix+filepath.Join(dir, "checking.ofx"))
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "1234567890", accounts[0].ID)
}

func TestProvider_Errors(t *testing.T) {
	p := NewProvider()
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		errIs   error
		errText string
	}{
		{name: "not an ofx token", token: "access-sandbox-123", errIs: common.ErrInvalidToken},
		{name: "empty path", token: TokenPrefix, errIs: common.ErrInvalidToken},
		{name: "missing file", token: TokenPrefix + filepath.Join(t.TempDir(), "missing.ofx"), errText: "failed to access"},
		{name: "empty directory", token: TokenPrefix + t.TempDir(), errText: "no OFX/QFX files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ListTransactions(context.Background(), tt.token, now.AddDate(0, -1, 0), now)
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestIsToken(t *testing.T) {
	assert.True(t, IsToken("ofx:/tmp/statements"))
	assert.False(t, IsToken("access-production-abc"))
}
