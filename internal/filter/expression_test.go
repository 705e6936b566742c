package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

func exprParams() []models.MatchParam {
	return []models.MatchParam{
		{Name: "from", Value: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Kind: "address"},
		{Name: "to", Value: "0xf423d9c1ffeb6386639d024f3b241dab2331b635", Kind: "address"},
		{Name: "value", Value: "8181710000", Kind: "uint256"},
		{Name: "active", Value: "true", Kind: "bool"},
		{Name: "memo", Value: "payment for invoice 42", Kind: "string"},
		{Name: "ids", Value: "[1,2,3]", Kind: "uint256[]"},
		{Name: "meta", Value: `{"tier":"gold","limit":"5000"}`, Kind: "Map"},
	}
}

func TestExpressionAndOr(t *testing.T) {
	params := exprParams()

	// A=true, B=false under AND.
	assert.False(t, EvaluateExpression("value > 8000000000 AND active == false", params))
	// A=false, B=true under OR.
	assert.True(t, EvaluateExpression("value > 9000000000 OR active == true", params))
	// OR binds looser than AND.
	assert.True(t, EvaluateExpression("value > 9000000000 AND active == true OR memo contains invoice", params))
	assert.False(t, EvaluateExpression("value > 9000000000 AND (active == true OR memo contains invoice)", params))
}

func TestExpressionNumericComparisons(t *testing.T) {
	params := exprParams()

	assert.True(t, EvaluateExpression("value == 8181710000", params))
	assert.True(t, EvaluateExpression("value >= 8181710000", params))
	assert.True(t, EvaluateExpression("value <= 8181710000", params))
	assert.False(t, EvaluateExpression("value != 8181710000", params))
	assert.True(t, EvaluateExpression("value < 10000000000", params))
	assert.False(t, EvaluateExpression("value > 10000000000", params))
}

func TestExpressionBigNumbers(t *testing.T) {
	params := []models.MatchParam{
		{Name: "value", Value: "115792089237316195423570985008687907853269984665640564039457584007913129639935", Kind: "uint256"},
	}
	assert.True(t, EvaluateExpression("value > 1000000000000000000000000000000", params))
}

func TestExpressionAddressNormalization(t *testing.T) {
	params := exprParams()

	assert.True(t, EvaluateExpression("from == 0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", params))
	assert.True(t, EvaluateExpression("from == a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", params))
	assert.False(t, EvaluateExpression("from != 0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", params))
}

func TestExpressionStringOperators(t *testing.T) {
	params := exprParams()

	assert.True(t, EvaluateExpression("memo contains 'invoice'", params))
	assert.True(t, EvaluateExpression("memo starts_with 'payment'", params))
	assert.True(t, EvaluateExpression("memo ends_with '42'", params))
	assert.True(t, EvaluateExpression(`memo == "payment for invoice 42"`, params))
	assert.False(t, EvaluateExpression("memo contains 'refund'", params))
}

func TestExpressionQuotedKeywordIsNotSplit(t *testing.T) {
	params := []models.MatchParam{
		{Name: "memo", Value: "cash AND carry", Kind: "string"},
	}
	assert.True(t, EvaluateExpression("memo == 'cash AND carry'", params))
}

func TestExpressionVecContains(t *testing.T) {
	params := exprParams()

	assert.True(t, EvaluateExpression("ids contains 2", params))
	assert.False(t, EvaluateExpression("ids contains 7", params))
}

func TestExpressionMapDottedAccess(t *testing.T) {
	params := exprParams()

	assert.True(t, EvaluateExpression("meta.tier == gold", params))
	assert.True(t, EvaluateExpression("meta.limit == 5000", params))
	assert.False(t, EvaluateExpression("meta.missing == 1", params))
}

func TestExpressionPositionalLookup(t *testing.T) {
	params := []models.MatchParam{
		{Name: "0", Value: "CAAA", Kind: "Address"},
		{Name: "1", Value: "CBBB", Kind: "Address"},
		{Name: "2", Value: "2240", Kind: "I128"},
	}
	assert.True(t, EvaluateExpression("2 >= 2240", params))
	assert.False(t, EvaluateExpression("2 > 2240", params))
}

func TestExpressionSoftFailures(t *testing.T) {
	params := exprParams()

	// Unknown parameter.
	assert.False(t, EvaluateExpression("unknown == 1", params))
	// Unparseable numeric literal.
	assert.False(t, EvaluateExpression("value > banana", params))
	// Malformed comparison.
	assert.False(t, EvaluateExpression("value", params))
	// A lookup miss poisons only its own comparison.
	assert.True(t, EvaluateExpression("unknown == 1 OR value > 1", params))
}

func TestExpressionEmptyIsTrue(t *testing.T) {
	assert.True(t, EvaluateExpression("", nil))
	assert.True(t, EvaluateExpression("   ", nil))
}

func TestValidateExpression(t *testing.T) {
	assert.NoError(t, ValidateExpression(""))
	assert.NoError(t, ValidateExpression("value > 100 AND from == 0xabc"))
	assert.NoError(t, ValidateExpression("(a == 1 OR b == 2) AND c contains 'x'"))
	assert.Error(t, ValidateExpression("value"))
	assert.Error(t, ValidateExpression("a == 1 AND bare"))
}
