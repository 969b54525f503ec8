package enums

import "fmt"

// LedgerEntryType classifies a ledger_entries row.
type LedgerEntryType string

const (
	LedgerEntryCharge              LedgerEntryType = "charge"
	LedgerEntryFee                 LedgerEntryType = "fee"
	LedgerEntryTransfer            LedgerEntryType = "transfer"
	LedgerEntrySubscriptionInvoice LedgerEntryType = "subscription_invoice"
	LedgerEntryRefund              LedgerEntryType = "refund"
	LedgerEntryDispute             LedgerEntryType = "dispute"
	LedgerEntryPayout              LedgerEntryType = "payout"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryCharge,
	LedgerEntryFee,
	LedgerEntryTransfer,
	LedgerEntrySubscriptionInvoice,
	LedgerEntryRefund,
	LedgerEntryDispute,
	LedgerEntryPayout,
}

func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

type LedgerDirection string

const (
	LedgerDebit  LedgerDirection = "debit"
	LedgerCredit LedgerDirection = "credit"
)

func (d LedgerDirection) IsValid() bool {
	return d == LedgerDebit || d == LedgerCredit
}

// LedgerParty is whose balance a ledger entry moves.
type LedgerParty string

const (
	PartyCustomer LedgerParty = "customer"
	PartyPlatform LedgerParty = "platform"
	PartyProvider LedgerParty = "provider"
	PartyStripe   LedgerParty = "stripe"
)

func (p LedgerParty) IsValid() bool {
	switch p {
	case PartyCustomer, PartyPlatform, PartyProvider, PartyStripe:
		return true
	}
	return false
}
