package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueWireForms(t *testing.T) {
	assert.Equal(t, "on", StringValue("on").String())
	assert.Equal(t, "42", NumberValue(42).String())
	assert.Equal(t, "2.5", NumberValue(2.5).String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "#error(bad input)", ErrorValue("bad input").String())
}

func TestValueCoercion(t *testing.T) {
	n, err := StringValue(" 17 ").AsNumber()
	assert.NoError(t, err)
	assert.Equal(t, 17.0, n)

	_, err = StringValue("warm").AsNumber()
	assert.Error(t, err)

	b, err := StringValue("TRUE").AsBool()
	assert.NoError(t, err)
	assert.True(t, b)

	b, err = NumberValue(0).AsBool()
	assert.NoError(t, err)
	assert.False(t, b)

	_, err = ErrorValue("x").AsNumber()
	assert.Error(t, err)
}

func TestValueEmptiness(t *testing.T) {
	assert.True(t, StringValue("").IsEmpty())
	assert.True(t, ErrorValue("boom").IsEmpty())
	assert.False(t, StringValue("0").IsEmpty())
	assert.False(t, NumberValue(0).IsEmpty())
}

func TestValueEqualComparesWireForm(t *testing.T) {
	assert.True(t, StringValue("7").Equal(NumberValue(7)))
	assert.False(t, StringValue("7").Equal(NumberValue(8)))
}
