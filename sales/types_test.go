package sales_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/sales"
)

func TestDecimalJSONFormatIsLeftToTheBinary(t *testing.T) {
	// GIVEN: A sale recorded through the package
	f := newFixture(t)
	f.product(t, "P", 5, "19.90")
	f.cashSale(t, item("P", 1, "19.90"))

	// THEN: The process-wide decimal setting is untouched
	assert.False(t, decimal.MarshalJSONWithoutQuotes)
}

func TestSale_DecodesQuotedAndBareMoney(t *testing.T) {
	for _, doc := range []string{
		`{"id":"s1","total":"59.70","subtotal":"59.70"}`,
		`{"id":"s1","total":59.70,"subtotal":59.70}`,
	} {
		var s sales.Sale
		require.NoError(t, json.Unmarshal([]byte(doc), &s), doc)
		assert.Equal(t, "59.70", s.Total.StringFixed(2))
		assert.Equal(t, "59.70", s.Subtotal.StringFixed(2))
	}
}
