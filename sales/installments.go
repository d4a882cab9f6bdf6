/*
installments.go - Payment plans and their derived status

PURPOSE:
  Turns the payment terms a caller chose (method, amount, installment
  count, due date) into the plan stored on the sale, and derives the
  sale's payment summary from that plan.

PLAN RULES:
  Credit card, N > 1 installments:
    N pending payments, split in whole cents. Every installment gets
    floor(amount/N); the last amount%N installments get one more cent, so
    the plan sums to amount exactly and no installment is negative.
    Installment i (1-based) is due anchor + i months. N is capped at
    MaxInstallments and every installment must be worth at least a cent.

  Same-day methods (cash, Pix, debit card), or N <= 1:
    One payment, already paid at "now".

  Bank slip, store credit:
    One pending payment due on the caller-supplied date.

NUMBERING:
  installmentNumber runs 1..N across the whole sale, so it identifies one
  payment even when a sale mixes several terms.

DERIVED STATUS:
  RecomputeSummary is a pure function of the payments. It is recomputed
  on every mutation and never trusted from storage.

SEE ALSO:
  - calendar.go: AddMonths, IsOverdue
  - lifecycle.go: ToggleInstallmentStatus
*/
package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTerm is what the caller asks for; BuildPlan expands it.
type PaymentTerm struct {
	Method           PaymentMethod   `json:"method"`
	Amount           decimal.Decimal `json:"amount"`
	InstallmentCount int             `json:"installmentCount"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
}

// MaxInstallments is the longest credit card plan a sale may carry.
const MaxInstallments = 48

func (t PaymentTerm) installments() int {
	if t.Method == MethodCreditCard && t.InstallmentCount > 1 {
		return t.InstallmentCount
	}
	return 1
}

func validateTerms(terms []PaymentTerm) error {
	for i, t := range terms {
		switch {
		case !t.Method.Valid():
			return fmt.Errorf("%w: payment %d has unknown method %q", ErrInvalidPayment, i, t.Method)
		case !t.Amount.IsPositive():
			return fmt.Errorf("%w: payment %d amount must be positive", ErrInvalidPayment, i)
		case t.InstallmentCount < 0:
			return fmt.Errorf("%w: payment %d installment count cannot be negative", ErrInvalidPayment, i)
		case t.InstallmentCount > MaxInstallments:
			return fmt.Errorf("%w: payment %d has %d installments, at most %d allowed",
				ErrInvalidPayment, i, t.InstallmentCount, MaxInstallments)
		case cents(t.Amount) < int64(t.installments()):
			return fmt.Errorf("%w: payment %d amount %s is less than one cent per installment",
				ErrInvalidPayment, i, roundMoney(t.Amount).StringFixed(2))
		case t.Method.Deferred() && t.DueDate == nil:
			return fmt.Errorf("%w: payment %d (%s) needs a due date", ErrInvalidPayment, i, t.Method)
		}
	}
	return nil
}

// SumTerms adds up the amounts the caller intends to pay.
func SumTerms(terms []PaymentTerm) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range terms {
		sum = sum.Add(roundMoney(t.Amount))
	}
	return sum
}

// SumPayments adds up the amounts of a plan.
func SumPayments(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// =============================================================================
// PLAN BUILDING
// =============================================================================

// BuildPlan expands one term into payments, numbering them from 1.
func BuildPlan(term PaymentTerm, anchor, now time.Time) []Payment {
	amount := roundMoney(term.Amount)
	n := term.installments()

	if n > 1 {
		total := cents(amount)
		share, extra := total/int64(n), total%int64(n)
		plan := make([]Payment, n)
		for i := 0; i < n; i++ {
			c := share
			if i >= n-int(extra) {
				c++
			}
			a := decimal.New(c, -2)
			due := AddMonths(anchor, i+1)
			plan[i] = Payment{
				Method:            term.Method,
				Amount:            a,
				InstallmentCount:  n,
				InstallmentNumber: i + 1,
				DueDate:           &due,
				Status:            PaymentPending,
			}
		}
		return plan
	}

	p := Payment{
		Method:            term.Method,
		Amount:            amount,
		InstallmentCount:  1,
		InstallmentNumber: 1,
	}
	if term.Method.Deferred() {
		due := *term.DueDate
		p.DueDate = &due
		p.Status = PaymentPending
	} else {
		paid := now
		p.Status = PaymentPaid
		p.PaidAt = &paid
	}
	return []Payment{p}
}

func cents(d decimal.Decimal) int64 {
	return roundMoney(d).Shift(2).IntPart()
}

// BuildSchedule expands every term and numbers the result 1..N.
func BuildSchedule(terms []PaymentTerm, anchor, now time.Time) []Payment {
	var plan []Payment
	for _, t := range terms {
		plan = append(plan, BuildPlan(t, anchor, now)...)
	}
	for i := range plan {
		plan[i].InstallmentNumber = i + 1
	}
	return plan
}

// PlanTerms recovers the terms a plan was built from: consecutive credit
// card entries sharing an installment count collapse back into one term.
func PlanTerms(payments []Payment) []PaymentTerm {
	var terms []PaymentTerm
	for i := 0; i < len(payments); {
		p := payments[i]
		if p.Method == MethodCreditCard && p.InstallmentCount > 1 && i+p.InstallmentCount <= len(payments) {
			amount := decimal.Zero
			for _, q := range payments[i : i+p.InstallmentCount] {
				amount = amount.Add(q.Amount)
			}
			terms = append(terms, PaymentTerm{Method: p.Method, Amount: amount, InstallmentCount: p.InstallmentCount})
			i += p.InstallmentCount
			continue
		}
		t := PaymentTerm{Method: p.Method, Amount: p.Amount, InstallmentCount: p.InstallmentCount}
		if p.Method.Deferred() {
			t.DueDate = p.DueDate
		}
		terms = append(terms, t)
		i++
	}
	return terms
}

// SameTerms reports whether two term lists would produce the same plan.
func SameTerms(a, b []PaymentTerm) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Method != y.Method || x.installments() != y.installments() ||
			!roundMoney(x.Amount).Equal(roundMoney(y.Amount)) {
			return false
		}
		if x.Method.Deferred() && !sameDay(x.DueDate, y.DueDate) {
			return false
		}
	}
	return true
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return StartOfDay(*a, time.UTC).Equal(StartOfDay(*b, time.UTC))
}

// =============================================================================
// DERIVED STATUS
// =============================================================================

// RecomputeSummary derives the summary string and whether every payment is
// settled. "k/n Pago" for multi-payment plans, "Pago" or "Pendente" for a
// single payment. An empty plan (a fully discounted or all-gift sale) has
// nothing left to pay and reports "Pago".
func RecomputeSummary(payments []Payment) (string, bool) {
	paid := 0
	for _, p := range payments {
		if p.Status == PaymentPaid {
			paid++
		}
	}
	allPaid := paid == len(payments)

	switch {
	case len(payments) > 1:
		return fmt.Sprintf("%d/%d %s", paid, len(payments), PaymentPaid), allPaid
	case allPaid:
		return string(PaymentPaid), true
	default:
		return string(PaymentPending), false
	}
}

// ToggleInstallment returns a copy of payments with one installment set to
// status. paidAt is set when it becomes paid and cleared when it becomes
// pending; re-marking a paid installment keeps its original paidAt.
func ToggleInstallment(payments []Payment, installmentNumber int, status PaymentStatus, now time.Time) ([]Payment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayment, status)
	}

	out := make([]Payment, len(payments))
	copy(out, payments)
	for i := range out {
		if out[i].InstallmentNumber != installmentNumber {
			continue
		}
		switch {
		case status == PaymentPending:
			out[i].PaidAt = nil
		case out[i].Status != PaymentPaid || out[i].PaidAt == nil:
			paid := now
			out[i].PaidAt = &paid
		}
		out[i].Status = status
		return out, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInstallmentNotFound, installmentNumber)
}
