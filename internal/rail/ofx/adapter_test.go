package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/model"
)

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
<DTSERVER>20250315120000[0:GMT]
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
<DTSTART>20250301120000[0:GMT]
<DTEND>20250331120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250301120000[0:GMT]
<TRNAMT>-3200.00
<FITID>2025030101
<NAME>ACME PROPERTY MGMT RENT
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20250310120000[0:GMT]
<TRNAMT>-35.00
<FITID>2025031001
<NAME>MONTHLY SERVICE FEE
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250314120000[0:GMT]
<TRNAMT>5012.00
<FITID>2025031401
<NAME>STRIPE PAYOUT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>10000.00
<DTASOF>20250331120000[0:GMT]
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
<DTSERVER>20250315120000[0:GMT]
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
<DTSTART>20250301120000[0:GMT]
<DTEND>20250331120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250305120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2025030501
<NAME>POS PURCHASE DATADOG SUBSCRIPTION
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20250331120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFileBankStatement(t *testing.T) {
	adapter := NewAdapter()

	events, err := adapter.ParseFile(context.Background(), "co-1", strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, events, 3)

	rent := events[0]
	assert.Equal(t, "ofx:1234567890:2025030101", rent.ID)
	assert.Equal(t, "co-1", rent.CompanyID)
	assert.Equal(t, model.RailBankFeed, rent.Source)
	assert.Equal(t, model.KindPayment, rent.Kind)
	assert.Equal(t, "2025030101", rent.ExternalID)
	assert.Equal(t, "1234567890", rent.AccountRef)
	assert.Equal(t, "ACME PROPERTY MGMT RENT", rent.Counterparty)
	assert.Equal(t, int64(-320000), rent.AmountCents)
	assert.Equal(t, "USD", rent.Currency)
	assert.Equal(t, 2025, rent.OccurredAt.Year())
	assert.Equal(t, time.March, rent.OccurredAt.Month())
	assert.Equal(t, 1, rent.OccurredAt.Day())
	assert.NotEmpty(t, rent.RawPayload)

	fee := events[1]
	assert.Equal(t, model.KindFee, fee.Kind)
	assert.Equal(t, int64(-3500), fee.AmountCents)

	payout := events[2]
	assert.Equal(t, model.KindSettlement, payout.Kind, "inbound credit is a settlement")
	assert.Equal(t, int64(501200), payout.AmountCents)
	assert.Equal(t, "STRIPE PAYOUT", payout.Counterparty)
}

func TestParseFileCreditCardStatement(t *testing.T) {
	adapter := NewAdapter()

	events, err := adapter.ParseFile(context.Background(), "co-1", strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "4111111111111111", ev.AccountRef)
	assert.Equal(t, "DATADOG SUBSCRIPTION", ev.Counterparty, "noise prefix stripped")
	assert.Equal(t, int64(-4599), ev.AmountCents)
}

func TestParseFileRejectsGarbage(t *testing.T) {
	adapter := NewAdapter()

	tests := []struct {
		name string
		data string
	}{
		{"not OFX", "not valid OFX"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.ParseFile(context.Background(), "co-1", strings.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestKindForTrnType(t *testing.T) {
	assert.Equal(t, model.KindFee, kindForTrnType("SRVCHG"))
	assert.Equal(t, model.KindSettlement, kindForTrnType("DIRECTDEP"))
	assert.Equal(t, model.KindPayment, kindForTrnType("CHECK"))
	assert.Equal(t, model.KindUnknown, kindForTrnType("OTHER"))
}

func TestCleanCounterparty(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"remove POS prefix", "POS PURCHASE STARBUCKS", "STARBUCKS"},
		{"remove ACH prefix", "ACH DEBIT GUSTO PAYROLL", "GUSTO PAYROLL"},
		{"keep clean name", "NETFLIX.COM", "NETFLIX.COM"},
		{"trim whitespace", "  AMAZON.COM  ", "AMAZON.COM"},
		{"strip leading date stamp", "03/14 STRIPE PAYOUT", "STRIPE PAYOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{Name: ofxgo.String(tt.input)}
			assert.Equal(t, tt.expected, cleanCounterparty(tx))
		})
	}
}

func TestCleanCounterpartyPrefersPayeeAndMemo(t *testing.T) {
	tx := ofxgo.Transaction{
		Name:  ofxgo.String("DEBIT"),
		Memo:  ofxgo.String("FIRST BANK TERM LOAN PMT"),
		Payee: nil,
	}
	assert.Equal(t, "FIRST BANK TERM LOAN PMT", cleanCounterparty(tx), "generic NAME falls back to MEMO")

	tx.Payee = &ofxgo.Payee{Name: ofxgo.String("First Bank")}
	assert.Equal(t, "First Bank", cleanCounterparty(tx))
}
