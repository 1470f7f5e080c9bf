package posting

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies a chart-of-accounts entry
type AccountType string

const (
	AccountTypeAsset        AccountType = "ASSET"
	AccountTypeLiability    AccountType = "LIABILITY"
	AccountTypeEquity       AccountType = "EQUITY"
	AccountTypeRevenue      AccountType = "REVENUE"
	AccountTypeExpense      AccountType = "EXPENSE"
	AccountTypeUnclassified AccountType = "UNCLASSIFIED"
)

// NormalSide returns the side on which the account type carries a positive balance
func (t AccountType) NormalSide() schema.LineSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return schema.SideDebit
	}
	return schema.SideCredit
}

// ClassifyAccount resolves the account type from an explicit attribute or the leading code digit
func ClassifyAccount(code, explicit string) AccountType {
	switch t := AccountType(strings.ToUpper(strings.TrimSpace(explicit))); t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return t
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return AccountTypeUnclassified
	}
	switch code[0] {
	case '1':
		return AccountTypeAsset
	case '2':
		return AccountTypeLiability
	case '3':
		return AccountTypeEquity
	case '4':
		return AccountTypeRevenue
	case '5', '6', '7', '8', '9':
		return AccountTypeExpense
	}
	return AccountTypeUnclassified
}

// Account is a GL_ACCOUNT entity as seen by reports
type Account struct {
	ID   uuid.UUID   `json:"id"`
	Code string      `json:"code"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
}

// AccountBalance is the aggregated movement of one account
type AccountBalance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"` // Signed on the account's normal side
}

func (b *AccountBalance) add(l schema.LedgerLine) {
	switch l.Side {
	case schema.SideDebit:
		b.Debit = b.Debit.Add(l.Amount)
	case schema.SideCredit:
		b.Credit = b.Credit.Add(l.Amount)
	}
}

func (b *AccountBalance) settle() {
	if b.Type.NormalSide() == schema.SideDebit {
		b.Balance = b.Debit.Sub(b.Credit)
	} else {
		b.Balance = b.Credit.Sub(b.Debit)
	}
}

// aggregate groups ledger lines by account, ordered by code then id
func aggregate(accounts map[uuid.UUID]Account, lines []schema.LedgerLine, include func(schema.LedgerLine) bool) []AccountBalance {
	byID := make(map[uuid.UUID]*AccountBalance)
	for _, l := range lines {
		if include != nil && !include(l) {
			continue
		}
		b, ok := byID[l.AccountID]
		if !ok {
			acc, known := accounts[l.AccountID]
			if !known {
				acc = Account{ID: l.AccountID, Type: AccountTypeUnclassified}
			}
			b = &AccountBalance{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero}
			byID[l.AccountID] = b
		}
		b.add(l)
	}
	out := make([]AccountBalance, 0, len(byID))
	for _, b := range byID {
		b.settle()
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].AccountID.String() < out[j].AccountID.String()
	})
	return out
}

// TrialBalanceRow is one account of a trial balance
type TrialBalanceRow struct {
	AccountBalance
	NetDebit  decimal.Decimal `json:"net_debit"`
	NetCredit decimal.Decimal `json:"net_credit"`
}

// TrialBalance lists every account with posted movement up to AsOf
type TrialBalance struct {
	OrganizationID uuid.UUID         `json:"organization_id"`
	AsOf           time.Time         `json:"as_of"`
	Rows           []TrialBalanceRow `json:"rows"`
	TotalDebit     decimal.Decimal   `json:"total_debit"`
	TotalCredit    decimal.Decimal   `json:"total_credit"`
	Balanced       bool              `json:"balanced"`
}

// BuildTrialBalance aggregates ledger lines up to asOf
func BuildTrialBalance(orgID uuid.UUID, asOf time.Time, accounts map[uuid.UUID]Account, lines []schema.LedgerLine) TrialBalance {
	tb := TrialBalance{OrganizationID: orgID, AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, b := range aggregate(accounts, lines, func(l schema.LedgerLine) bool { return !l.PostingDate.After(asOf) }) {
		row := TrialBalanceRow{AccountBalance: b, NetDebit: decimal.Zero, NetCredit: decimal.Zero}
		net := b.Debit.Sub(b.Credit)
		if net.IsNegative() {
			row.NetCredit = net.Neg()
		} else {
			row.NetDebit = net
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.NetDebit)
		tb.TotalCredit = tb.TotalCredit.Add(row.NetCredit)
		tb.Rows = append(tb.Rows, row)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}

// ProfitAndLoss reports revenue and expenses within a period
type ProfitAndLoss struct {
	OrganizationID uuid.UUID        `json:"organization_id"`
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	Revenue        []AccountBalance `json:"revenue"`
	Expenses       []AccountBalance `json:"expenses"`
	TotalRevenue   decimal.Decimal  `json:"total_revenue"`
	TotalExpenses  decimal.Decimal  `json:"total_expenses"`
	NetIncome      decimal.Decimal  `json:"net_income"`
}

// BuildProfitAndLoss aggregates revenue and expense lines posted in [from, to]
func BuildProfitAndLoss(orgID uuid.UUID, from, to time.Time, accounts map[uuid.UUID]Account, lines []schema.LedgerLine) ProfitAndLoss {
	pl := ProfitAndLoss{OrganizationID: orgID, From: from, To: to, TotalRevenue: decimal.Zero, TotalExpenses: decimal.Zero}
	inPeriod := func(l schema.LedgerLine) bool { return !l.PostingDate.Before(from) && !l.PostingDate.After(to) }
	for _, b := range aggregate(accounts, lines, inPeriod) {
		switch b.Type {
		case AccountTypeRevenue:
			pl.Revenue = append(pl.Revenue, b)
			pl.TotalRevenue = pl.TotalRevenue.Add(b.Balance)
		case AccountTypeExpense:
			pl.Expenses = append(pl.Expenses, b)
			pl.TotalExpenses = pl.TotalExpenses.Add(b.Balance)
		}
	}
	pl.NetIncome = pl.TotalRevenue.Sub(pl.TotalExpenses)
	return pl
}

// BalanceSheet reports the financial position at AsOf
type BalanceSheet struct {
	OrganizationID      uuid.UUID        `json:"organization_id"`
	AsOf                time.Time        `json:"as_of"`
	FiscalYearStart     time.Time        `json:"fiscal_year_start"`
	Assets              []AccountBalance `json:"assets"`
	Liabilities         []AccountBalance `json:"liabilities"`
	Equity              []AccountBalance `json:"equity"`
	RetainedEarnings    decimal.Decimal  `json:"retained_earnings"`     // Earnings before the fiscal year start
	CurrentYearEarnings decimal.Decimal  `json:"current_year_earnings"` // Earnings since the fiscal year start
	TotalAssets         decimal.Decimal  `json:"total_assets"`
	TotalLiabilities    decimal.Decimal  `json:"total_liabilities"`
	TotalEquity         decimal.Decimal  `json:"total_equity"`
	Balanced            bool             `json:"balanced"`
}

// BuildBalanceSheet aggregates all ledger lines up to asOf
func BuildBalanceSheet(orgID uuid.UUID, asOf, fiscalYearStart time.Time, accounts map[uuid.UUID]Account, lines []schema.LedgerLine) BalanceSheet {
	bs := BalanceSheet{
		OrganizationID:      orgID,
		AsOf:                asOf,
		FiscalYearStart:     fiscalYearStart,
		RetainedEarnings:    decimal.Zero,
		CurrentYearEarnings: decimal.Zero,
		TotalAssets:         decimal.Zero,
		TotalLiabilities:    decimal.Zero,
		TotalEquity:         decimal.Zero,
	}
	upTo := func(l schema.LedgerLine) bool { return !l.PostingDate.After(asOf) }
	for _, b := range aggregate(accounts, lines, upTo) {
		switch b.Type {
		case AccountTypeAsset:
			bs.Assets = append(bs.Assets, b)
			bs.TotalAssets = bs.TotalAssets.Add(b.Balance)
		case AccountTypeLiability:
			bs.Liabilities = append(bs.Liabilities, b)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(b.Balance)
		case AccountTypeEquity:
			bs.Equity = append(bs.Equity, b)
			bs.TotalEquity = bs.TotalEquity.Add(b.Balance)
		}
	}

	for _, l := range lines {
		if l.PostingDate.After(asOf) {
			continue
		}
		acc, ok := accounts[l.AccountID]
		if !ok || (acc.Type != AccountTypeRevenue && acc.Type != AccountTypeExpense) {
			continue
		}
		amount := l.Amount
		if l.Side == schema.SideDebit {
			amount = amount.Neg()
		}
		if l.PostingDate.Before(fiscalYearStart) {
			bs.RetainedEarnings = bs.RetainedEarnings.Add(amount)
		} else {
			bs.CurrentYearEarnings = bs.CurrentYearEarnings.Add(amount)
		}
	}

	bs.TotalEquity = bs.TotalEquity.Add(bs.RetainedEarnings).Add(bs.CurrentYearEarnings)
	bs.Balanced = bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity))
	return bs
}
