// Package ofx adapts OFX/QFX statement files into raw events on the
// bank-feed rail. Real-world exports are frequently sloppy SGML, so parsing
// is preceded by a cleanup pass.
package ofx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/finfold/reckon/internal/model"
)

// AdapterName identifies this adapter in provenance records.
const AdapterName = "ofx-file"

// Adapter parses OFX/QFX statement files.
type Adapter struct{}

// NewAdapter creates an OFX file adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes the formatting problems banks routinely ship: leading
// blank lines before the header, mixed-case SEVERITY values, and SGML tags
// missing their closing bracket.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseFile parses an OFX/QFX file into raw events for the given company.
// Bank and credit card statements are both handled; a statement that cannot
// be processed is logged and skipped rather than failing the file.
func (a *Adapter) ParseFile(ctx context.Context, companyID string, reader io.Reader) ([]model.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var events []model.RawEvent
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			accountID := string(stmt.BankAcctFrom.AcctID)
			currency := statementCurrency(stmt.CurDef)
			for _, tx := range stmt.BankTranList.Transactions {
				events = append(events, a.convert(tx, companyID, accountID, currency))
			}
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			accountID := string(stmt.CCAcctFrom.AcctID)
			currency := statementCurrency(stmt.CurDef)
			for _, tx := range stmt.BankTranList.Transactions {
				events = append(events, a.convert(tx, companyID, accountID, currency))
			}
		}
	}

	slog.Info("Parsed OFX file",
		"events", len(events),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return events, nil
}

// convert maps one OFX transaction to a raw event. The raw event id is
// derived from the account and FITID so re-ingesting the same file yields
// the same ids and deduplicates cleanly.
func (a *Adapter) convert(tx ofxgo.Transaction, companyID, accountID, currency string) model.RawEvent {
	fitid := string(tx.FiTID)
	trnType := fmt.Sprintf("%v", tx.TrnType)

	payload, _ := json.Marshal(map[string]string{
		"fitid":     fitid,
		"trn_type":  trnType,
		"name":      string(tx.Name),
		"memo":      string(tx.Memo),
		"check_num": string(tx.CheckNum),
		"amount":    tx.TrnAmt.String(),
	})

	return model.RawEvent{
		ID:           fmt.Sprintf("ofx:%s:%s", accountID, fitid),
		CompanyID:    companyID,
		Source:       model.RailBankFeed,
		Kind:         kindForTrnType(trnType),
		ExternalID:   fitid,
		AccountRef:   accountID,
		Counterparty: cleanCounterparty(tx),
		OccurredAt:   tx.DtPosted.Time,
		Currency:     currency,
		RawPayload:   payload,
		AmountCents:  amountCents(tx.TrnAmt),
	}
}

// kindForTrnType maps OFX transaction types onto event kinds. Inbound types
// are treated as settlements so cross-rail reports of the same transfer
// collapse; everything unrecognized is left to the UNKNOWN fallback rather
// than guessed.
func kindForTrnType(trnType string) model.EventKind {
	switch trnType {
	case "FEE", "SRVCHG":
		return model.KindFee
	case "CREDIT", "DEP", "DIRECTDEP", "INT", "XFER":
		return model.KindSettlement
	case "DEBIT", "CHECK", "PAYMENT", "POS", "ATM", "DIRECTDEBIT", "REPEATPMT":
		return model.KindPayment
	default:
		return model.KindUnknown
	}
}

// amountCents converts an OFX decimal amount to signed minor units.
func amountCents(amt ofxgo.Amount) int64 {
	cents := new(big.Rat).Mul(&amt.Rat, big.NewRat(100, 1))
	f, _ := cents.Float64()
	return int64(math.Round(f))
}

func statementCurrency(cur ofxgo.CurrSymbol) string {
	if s := cur.String(); s != "" && s != "XXX" {
		return s
	}
	return "USD"
}

// Prefixes banks prepend to the actual counterparty name.
var noisePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// cleanCounterparty extracts the most useful counterparty string available.
// PAYEE wins when present; otherwise NAME, falling back to MEMO when NAME is
// a generic placeholder.
func cleanCounterparty(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Strip leading "MM/DD " date stamps.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
