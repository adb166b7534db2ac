package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

func TestSubstitute(t *testing.T) {
	values := TokenValues{"goal": "25", "discount_code": "SAVE10"}

	assert.Equal(t, "Spend 25 more", Substitute("Spend {{goal}} more", values))
	// Whitespace and case inside the delimiters are tolerated.
	assert.Equal(t, "Use SAVE10", Substitute("Use {{ Discount_Code }}", values))
	// Unknown tokens render as empty rather than breaking the template.
	assert.Equal(t, "Get  off", Substitute("Get {{discount_value}} off", values))
	assert.Equal(t, "", Substitute("", values))
	assert.Equal(t, "plain text", Substitute("plain text", values))
}

func TestRuleTokens(t *testing.T) {
	r := &Rule{
		Kind:          KindDiscount,
		DiscountValue: "15",
		DiscountCode:  "VIP",
		MinQuantity:   2,
		GetQuantity:   1,
	}

	values := r.Tokens(shared.Money(2550))

	assert.Equal(t, "25.50", values["goal"])
	assert.Equal(t, "15", values["discount_value"])
	assert.Equal(t, "15%", values["discount_value_with_suffix"])
	assert.Equal(t, "VIP", values["discount_code"])
	assert.Equal(t, "2", values["x"])
	assert.Equal(t, "1", values["y"])
}

func TestRuleTokens_OmitsAbsentFields(t *testing.T) {
	r := &Rule{Kind: KindShipping}
	values := r.Tokens(shared.Money(5000))

	assert.Equal(t, "50", values["goal"])
	_, hasValue := values["discount_value"]
	_, hasCode := values["discount_code"]
	assert.False(t, hasValue)
	assert.False(t, hasCode)
}

func TestWithSuffix(t *testing.T) {
	// Bare numbers read as percentages.
	assert.Equal(t, "10%", withSuffix("10"))
	assert.Equal(t, "12.5%", withSuffix("12.5"))
	// Values already carrying a suffix pass through.
	assert.Equal(t, "15%", withSuffix("15%"))
	assert.Equal(t, "10 USD", withSuffix("10 USD"))
}
