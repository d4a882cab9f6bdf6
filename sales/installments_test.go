package sales_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/sales"
)

func TestBuildPlan_SplitsAndAbsorbsRemainder(t *testing.T) {
	// GIVEN: 100.00 on a credit card in 3 installments
	// THEN: 33.33, 33.33, 33.34, due one, two and three months out

	anchor := time.Date(2025, time.January, 31, 14, 0, 0, 0, time.UTC)
	plan := sales.BuildPlan(card("100.00", 3), anchor, anchor)

	require.Len(t, plan, 3)
	assert.Equal(t, "33.33", plan[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", plan[1].Amount.StringFixed(2))
	assert.Equal(t, "33.34", plan[2].Amount.StringFixed(2))

	sum := decimal.Zero
	for i, p := range plan {
		sum = sum.Add(p.Amount)
		assert.Equal(t, i+1, p.InstallmentNumber)
		assert.Equal(t, 3, p.InstallmentCount)
		assert.Equal(t, sales.PaymentPending, p.Status)
		assert.Nil(t, p.PaidAt)
	}
	assert.True(t, sum.Equal(money("100.00")))

	assert.Equal(t, time.Date(2025, time.February, 28, 14, 0, 0, 0, time.UTC), *plan[0].DueDate)
	assert.Equal(t, time.Date(2025, time.March, 31, 14, 0, 0, 0, time.UTC), *plan[1].DueDate)
	assert.Equal(t, time.Date(2025, time.April, 30, 14, 0, 0, 0, time.UTC), *plan[2].DueDate)
}

func TestBuildPlan_SmallAmountsNeverGoNegative(t *testing.T) {
	tests := []struct {
		amount string
		n      int
		want   []string
	}{
		{"0.07", 7, []string{"0.01", "0.01", "0.01", "0.01", "0.01", "0.01", "0.01"}},
		{"0.10", 7, []string{"0.01", "0.01", "0.01", "0.01", "0.02", "0.02", "0.02"}},
		{"10.00", 48, nil},
		{"249.90", 3, []string{"83.30", "83.30", "83.30"}},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			plan := sales.BuildPlan(card(tt.amount, tt.n), base, base)

			require.Len(t, plan, tt.n)
			for i, p := range plan {
				assert.True(t, p.Amount.IsPositive(), "installment %d is %s", i+1, p.Amount)
				if tt.want != nil {
					assert.Equal(t, tt.want[i], p.Amount.StringFixed(2))
				}
			}
			assert.True(t, sales.SumPayments(plan).Equal(money(tt.amount)))
		})
	}
}

func TestBuildPlan_SingleCardIsPaidNow(t *testing.T) {
	now := base
	for _, n := range []int{0, 1} {
		plan := sales.BuildPlan(card("50", n), now, now)
		require.Len(t, plan, 1)
		assert.Equal(t, sales.PaymentPaid, plan[0].Status)
		require.NotNil(t, plan[0].PaidAt)
		assert.Equal(t, now, *plan[0].PaidAt)
		assert.Nil(t, plan[0].DueDate)
	}
}

func TestBuildPlan_SameDayMethods(t *testing.T) {
	for _, m := range []sales.PaymentMethod{sales.MethodCash, sales.MethodPix, sales.MethodDebitCard} {
		t.Run(string(m), func(t *testing.T) {
			// Installment counts are ignored for methods that settle at once.
			plan := sales.BuildPlan(sales.PaymentTerm{Method: m, Amount: money("12.5"), InstallmentCount: 4}, base, base)
			require.Len(t, plan, 1)
			assert.Equal(t, sales.PaymentPaid, plan[0].Status)
			assert.Equal(t, "12.50", plan[0].Amount.StringFixed(2))
		})
	}
}

func TestBuildPlan_DeferredMethodsUseDueDate(t *testing.T) {
	due := base.AddDate(0, 0, 30)
	for _, m := range []sales.PaymentMethod{sales.MethodBankSlip, sales.MethodStoreCredit} {
		plan := sales.BuildPlan(sales.PaymentTerm{Method: m, Amount: money("80"), DueDate: &due}, base, base)
		require.Len(t, plan, 1)
		assert.Equal(t, sales.PaymentPending, plan[0].Status)
		assert.Nil(t, plan[0].PaidAt)
		require.NotNil(t, plan[0].DueDate)
		assert.Equal(t, due, *plan[0].DueDate)
	}
}

func TestBuildSchedule_NumbersAcrossTerms(t *testing.T) {
	due := base.AddDate(0, 0, 10)
	plan := sales.BuildSchedule([]sales.PaymentTerm{
		cash("20"),
		card("90", 3),
		{Method: sales.MethodBankSlip, Amount: money("10"), DueDate: &due},
	}, base, base)

	require.Len(t, plan, 5)
	for i, p := range plan {
		assert.Equal(t, i+1, p.InstallmentNumber)
	}
	assert.True(t, sales.SumPayments(plan).Equal(money("120")))
}

func TestPlanTerms_RoundTrip(t *testing.T) {
	due := base.AddDate(0, 1, 0)
	terms := []sales.PaymentTerm{
		card("100.00", 3),
		cash("15.00"),
		{Method: sales.MethodStoreCredit, Amount: money("5.00"), DueDate: &due},
	}

	recovered := sales.PlanTerms(sales.BuildSchedule(terms, base, base))

	assert.True(t, sales.SameTerms(recovered, terms))
}

func TestSameTerms(t *testing.T) {
	due := base.AddDate(0, 0, 7)
	later := due.Add(2 * time.Hour)
	other := due.AddDate(0, 0, 1)
	slip := func(d *time.Time) sales.PaymentTerm {
		return sales.PaymentTerm{Method: sales.MethodBankSlip, Amount: money("10"), DueDate: d}
	}

	tests := []struct {
		name string
		a, b []sales.PaymentTerm
		want bool
	}{
		{"identical", []sales.PaymentTerm{card("60", 2)}, []sales.PaymentTerm{card("60.00", 2)}, true},
		{"different count", []sales.PaymentTerm{card("60", 2)}, []sales.PaymentTerm{card("60", 3)}, false},
		{"different amount", []sales.PaymentTerm{cash("60")}, []sales.PaymentTerm{cash("61")}, false},
		{"different method", []sales.PaymentTerm{cash("60")}, []sales.PaymentTerm{{Method: sales.MethodPix, Amount: money("60")}}, false},
		{"single card 0 vs 1", []sales.PaymentTerm{card("60", 0)}, []sales.PaymentTerm{card("60", 1)}, true},
		{"due same day", []sales.PaymentTerm{slip(&due)}, []sales.PaymentTerm{slip(&later)}, true},
		{"due other day", []sales.PaymentTerm{slip(&due)}, []sales.PaymentTerm{slip(&other)}, false},
		{"length", []sales.PaymentTerm{cash("60")}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sales.SameTerms(tt.a, tt.b))
		})
	}
}

func TestRecomputeSummary(t *testing.T) {
	paid := sales.Payment{Status: sales.PaymentPaid}
	pending := sales.Payment{Status: sales.PaymentPending}

	tests := []struct {
		name     string
		payments []sales.Payment
		want     string
		allPaid  bool
	}{
		{"empty plan", nil, "Pago", true},
		{"single paid", []sales.Payment{paid}, "Pago", true},
		{"single pending", []sales.Payment{pending}, "Pendente", false},
		{"two of four", []sales.Payment{paid, pending, paid, pending}, "2/4 Pago", false},
		{"none of three", []sales.Payment{pending, pending, pending}, "0/3 Pago", false},
		{"all of two", []sales.Payment{paid, paid}, "2/2 Pago", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allPaid := sales.RecomputeSummary(tt.payments)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.allPaid, allPaid)
		})
	}
}

func TestToggleInstallment(t *testing.T) {
	plan := sales.BuildPlan(card("90", 3), base, base)
	first := base.Add(time.Hour)
	second := base.Add(2 * time.Hour)

	// GIVEN: Installment 2 marked paid
	got, err := sales.ToggleInstallment(plan, 2, sales.PaymentPaid, first)
	require.NoError(t, err)
	assert.Equal(t, sales.PaymentPaid, got[1].Status)
	assert.Equal(t, first, *got[1].PaidAt)
	assert.Equal(t, sales.PaymentPending, plan[1].Status, "input must not be modified")

	// WHEN: Marked paid again later
	// THEN: The original payment time is kept
	got, err = sales.ToggleInstallment(got, 2, sales.PaymentPaid, second)
	require.NoError(t, err)
	assert.Equal(t, first, *got[1].PaidAt)

	// WHEN: Reopened
	// THEN: paidAt is cleared
	got, err = sales.ToggleInstallment(got, 2, sales.PaymentPending, second)
	require.NoError(t, err)
	assert.Equal(t, sales.PaymentPending, got[1].Status)
	assert.Nil(t, got[1].PaidAt)
}

func TestToggleInstallment_Errors(t *testing.T) {
	plan := sales.BuildPlan(card("90", 3), base, base)

	_, err := sales.ToggleInstallment(plan, 4, sales.PaymentPaid, base)
	assert.ErrorIs(t, err, sales.ErrInstallmentNotFound)

	_, err = sales.ToggleInstallment(plan, 0, sales.PaymentPaid, base)
	assert.ErrorIs(t, err, sales.ErrInstallmentNotFound)

	_, err = sales.ToggleInstallment(plan, 1, "Cancelado", base)
	assert.ErrorIs(t, err, sales.ErrInvalidPayment)
}
