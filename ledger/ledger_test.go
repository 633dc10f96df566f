package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// d parses a decimal literal, failing loudly on typos
func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertDecimal compares decimals by value, so "40" equals "40.00"
func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "wanted %s, got %s %v", want, got, msgAndArgs)
}

// apply accumulates adjustments into an in-memory record set keyed like the store
func apply(records map[Adjustment]decimal.Decimal, adjustments ...Adjustment) {
	for _, a := range adjustments {
		key := Adjustment{Pair: a.Pair, Group: a.Group}
		records[key] = records[key].Add(a.Amount)
	}
}

// recordsOf turns the accumulated set into DebtRecords
func recordsOf(records map[Adjustment]decimal.Decimal) []DebtRecord {
	out := make([]DebtRecord, 0, len(records))
	for k, v := range records {
		out = append(out, DebtRecord{Pair: k.Pair, Group: k.Group, Amount: v, Currency: "GBP"})
	}
	return out
}

// balanceOf reads a pair from the accumulated set from a's perspective
func balanceOf(records map[Adjustment]decimal.Decimal, a, b int, g Group) decimal.Decimal {
	pair, _ := PairOf(a, b)
	r := DebtRecord{Pair: pair, Group: g, Amount: records[Adjustment{Pair: pair, Group: g}]}
	_, balance := r.For(a)
	return balance
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		a, b       int
		amount     string
		wantPair   Pair
		wantAmount string
	}{
		{"low first keeps sign", 1, 2, "40", Pair{1, 2}, "40"},
		{"high first flips sign", 2, 1, "40", Pair{1, 2}, "-40"},
		{"negative low first", 3, 7, "-12.5", Pair{3, 7}, "-12.5"},
		{"negative high first", 7, 3, "-12.5", Pair{3, 7}, "12.5"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			adj, err := Normalize(test.a, test.b, d(test.amount), Group(4))
			require.NoError(t, err)
			assert.Equal(t, test.wantPair, adj.Pair)
			assert.Equal(t, Group(4), adj.Group)
			assertDecimal(t, test.wantAmount, adj.Amount)
		})
	}
}

func TestNormalizeRejectsSelfDebt(t *testing.T) {
	_, err := Normalize(5, 5, d("10"), NoGroup)
	assert.ErrorIs(t, err, ErrSelfDebt)

	_, err = PairOf(5, 5)
	assert.ErrorIs(t, err, ErrSelfDebt)
}

func TestPairSymmetry(t *testing.T) {
	// "A is owed x by B" must read +x for A and -x for B, whichever id is lower
	for _, users := range [][2]int{{1, 2}, {2, 1}, {10, 3}} {
		a, b := users[0], users[1]
		records := make(map[Adjustment]decimal.Decimal)
		adj, err := Normalize(a, b, d("40"), Group(9))
		require.NoError(t, err)
		apply(records, adj)

		assertDecimal(t, "40", balanceOf(records, a, b, Group(9)), users)
		assertDecimal(t, "-40", balanceOf(records, b, a, Group(9)), users)
		assertDecimal(t, "0", balanceOf(records, a, b, NoGroup), "other contexts untouched")
	}
}

func TestAccumulationIsCommutative(t *testing.T) {
	x, _ := Normalize(1, 2, d("40"), NoGroup)
	y, _ := Normalize(2, 1, d("20"), NoGroup) // B owed 20 by A

	forward := make(map[Adjustment]decimal.Decimal)
	apply(forward, x, y)
	backward := make(map[Adjustment]decimal.Decimal)
	apply(backward, y, x)

	assert.Len(t, forward, 1, "opposite directions share one record")
	assertDecimal(t, "20", balanceOf(forward, 1, 2, NoGroup))
	assertDecimal(t, "20", balanceOf(backward, 1, 2, NoGroup))
}

func TestReverseIsInverse(t *testing.T) {
	amounts := []string{"0.01", "40", "-33.3333", "1000000.9999"}
	for _, amount := range amounts {
		records := make(map[Adjustment]decimal.Decimal)
		base, _ := Normalize(4, 8, d("17.25"), Group(2))
		apply(records, base)

		p, _ := Normalize(8, 4, d(amount), Group(2))
		apply(records, p, p.Reverse())
		assertDecimal(t, "-17.25", balanceOf(records, 8, 4, Group(2)), amount)
	}
}

func TestExpenseAdjustmentsSkipPayer(t *testing.T) {
	splits := []Split{{1, d("40")}, {2, d("40")}, {3, d("40")}}
	adjustments := ExpenseAdjustments(1, splits, Group(7))
	require.Len(t, adjustments, 2)
	for _, a := range adjustments {
		assert.Equal(t, 1, a.Low)
		assertDecimal(t, "40", a.Amount)
	}

	// Payer with the highest id stores negative amounts: low users owe high
	adjustments = ExpenseAdjustments(3, splits, Group(7))
	require.Len(t, adjustments, 2)
	for _, a := range adjustments {
		assert.Equal(t, 3, a.High)
		assertDecimal(t, "-40", a.Amount)
	}
}

func TestSettlementClearsDebt(t *testing.T) {
	// B owes A 40 in both id orders, then B pays A 40
	for _, users := range [][2]int{{1, 2}, {2, 1}} {
		a, b := users[0], users[1]
		records := make(map[Adjustment]decimal.Decimal)
		apply(records, ExpenseAdjustments(a, []Split{{a, d("40")}, {b, d("40")}}, NoGroup)...)
		assertDecimal(t, "40", balanceOf(records, a, b, NoGroup))

		adj, err := SettlementAdjustment(b, a, d("40"), NoGroup)
		require.NoError(t, err)
		apply(records, adj)
		assertDecimal(t, "0", balanceOf(records, a, b, NoGroup), users)
	}
}

func TestSettlementSelf(t *testing.T) {
	_, err := SettlementAdjustment(3, 3, d("1"), NoGroup)
	assert.ErrorIs(t, err, ErrSelfDebt)
}

func TestEqualSplits(t *testing.T) {
	tests := []struct {
		total  string
		users  []int
		places int32
		want   []string
	}{
		{"120", []int{1, 2, 3}, 2, []string{"40", "40", "40"}},
		{"100", []int{1, 2, 3}, 2, []string{"33.34", "33.33", "33.33"}},
		{"0.05", []int{1, 2, 3}, 2, []string{"0.02", "0.02", "0.01"}},
		{"1000", []int{4, 5, 6}, 0, []string{"334", "333", "333"}},
		{"10.005", []int{1, 2}, 2, []string{"5.005", "5"}},
	}

	for _, test := range tests {
		splits, err := EqualSplits(d(test.total), test.users, test.places)
		require.NoError(t, err)
		require.Len(t, splits, len(test.want))
		for i, want := range test.want {
			assert.Equal(t, test.users[i], splits[i].UserID)
			assertDecimal(t, want, splits[i].Share, test.total)
		}
		assertDecimal(t, test.total, SplitsTotal(splits), "shares sum to the total")
	}
}

func TestEqualSplitsErrors(t *testing.T) {
	_, err := EqualSplits(d("10"), nil, 2)
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = EqualSplits(d("10"), []int{1, 2, 1}, 2)
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
}

func TestCheckSplits(t *testing.T) {
	assert.ErrorIs(t, CheckSplits(nil), ErrNoParticipants)
	assert.ErrorIs(t, CheckSplits([]Split{{1, d("1")}, {1, d("2")}}), ErrDuplicateParticipant)
	assert.ErrorIs(t, CheckSplits([]Split{{1, d("-1")}}), ErrNegativeShare)
	assert.NoError(t, CheckSplits([]Split{{1, d("0")}, {2, d("5")}}))
}

func TestSummarizeFlat(t *testing.T) {
	// User 1 pays 120 split equally between 1, 2 and 3 in the "Flat" group
	flat := Group(1)
	splits, err := EqualSplits(d("120"), []int{1, 2, 3}, 2)
	require.NoError(t, err)

	records := make(map[Adjustment]decimal.Decimal)
	adjustments := ExpenseAdjustments(1, splits, flat)
	apply(records, adjustments...)

	assertDecimal(t, "40", records[Adjustment{Pair: Pair{1, 2}, Group: flat}])
	assertDecimal(t, "40", records[Adjustment{Pair: Pair{1, 3}, Group: flat}])

	summary := Summarize(1, recordsOf(records))
	assertDecimal(t, "0", summary.TotalOwed)
	assertDecimal(t, "80", summary.TotalOwing)
	assertDecimal(t, "80", summary.NetBalance)

	summary = Summarize(2, recordsOf(records))
	assertDecimal(t, "40", summary.TotalOwed)
	assertDecimal(t, "0", summary.TotalOwing)
	assertDecimal(t, "-40", summary.NetBalance)

	// Deleting the expense applies the exact reversals
	for _, a := range adjustments {
		apply(records, a.Reverse())
	}
	for _, v := range records {
		assertDecimal(t, "0", v)
	}
	summary = Summarize(1, recordsOf(records))
	assertDecimal(t, "0", summary.NetBalance)
}

func TestDebtsFor(t *testing.T) {
	records := []DebtRecord{
		{Pair: Pair{1, 2}, Group: NoGroup, Amount: d("40"), Currency: "GBP"},
		{Pair: Pair{1, 3}, Group: Group(5), Amount: d("-12"), Currency: "EUR"},
		{Pair: Pair{1, 2}, Group: Group(5), Amount: d("0"), Currency: "EUR"},
		{Pair: Pair{2, 3}, Group: NoGroup, Amount: d("99"), Currency: "GBP"},
	}

	debts := DebtsFor(1, records)
	require.Len(t, debts, 3)
	assert.Equal(t, 2, debts[0].Counterpart)
	assert.Equal(t, NoGroup, debts[0].Group)
	assert.Equal(t, DirectionOwed, debts[0].Direction)
	assert.Equal(t, "GBP", debts[0].Currency)
	assertDecimal(t, "40", debts[0].Amount)
	assert.Equal(t, Group(5), debts[1].Group)
	assert.Equal(t, DirectionSettled, debts[1].Direction)
	assert.Equal(t, 3, debts[2].Counterpart)
	assert.Equal(t, DirectionOwe, debts[2].Direction)
	assertDecimal(t, "12", debts[2].Amount)

	debts = DebtsFor(3, records)
	require.Len(t, debts, 2)
	assert.Equal(t, DirectionOwed, debts[0].Direction)
	assert.Equal(t, DirectionOwe, debts[1].Direction)
}

func TestByCounterpartAndGroup(t *testing.T) {
	records := []DebtRecord{
		{Pair: Pair{1, 2}, Group: NoGroup, Amount: d("40"), Currency: "GBP"},
		{Pair: Pair{1, 2}, Group: Group(5), Amount: d("-10"), Currency: "GBP"},
		{Pair: Pair{1, 3}, Group: Group(5), Amount: d("-12"), Currency: "GBP"},
		{Pair: Pair{2, 3}, Group: Group(5), Amount: d("7"), Currency: "GBP"},
	}

	friends := ByCounterpart(1, records)
	require.Len(t, friends, 2)
	assert.Equal(t, 2, friends[0].UserID)
	assertDecimal(t, "30", friends[0].Balance)
	assert.Equal(t, 3, friends[1].UserID)
	assertDecimal(t, "-12", friends[1].Balance)

	groups := ByGroup(1, records)
	require.Len(t, groups, 2)
	assert.Equal(t, NoGroup, groups[0].Group)
	assertDecimal(t, "40", groups[0].Balance)
	assert.Equal(t, Group(5), groups[1].Group)
	assertDecimal(t, "-22", groups[1].Balance)
}

func TestWithZeroBalances(t *testing.T) {
	friends := []FriendBalance{
		{UserID: 2, Currency: "EUR", Balance: d("5")},
		{UserID: 4, Currency: "GBP", Balance: d("-3")},
	}

	merged := WithZeroBalances(friends, []int{4, 3, 2, 3}, "GBP")
	require.Len(t, merged, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{merged[0].UserID, merged[1].UserID, merged[2].UserID})
	assert.Equal(t, "EUR", merged[0].Currency, "existing entries are kept as they are")
	assert.Equal(t, "GBP", merged[1].Currency)
	assert.True(t, merged[1].Balance.IsZero())
	assertDecimal(t, "-3", merged[2].Balance)
	assert.Len(t, friends, 2, "input is not modified")
}

func TestExpensePatch(t *testing.T) {
	assert.True(t, ExpensePatch{}.Empty())

	description := "Dinner"
	e := ExpensePatch{Description: &description}.Apply(Expense{Description: "Food", Category: "General"})
	assert.Equal(t, "Dinner", e.Description)
	assert.Equal(t, "General", e.Category)
}
