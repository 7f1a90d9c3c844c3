package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortedKeysNoWhitespace(t *testing.T) {
	obj := NewObject(
		O("nd_type", String("DataChangeConfirmed")),
		O("cache_key", String("op1")),
		O("new_value", Int(7)),
		O("old_value", Int(2)),
	)
	b, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"cache_key":"op1","nd_type":"DataChangeConfirmed","new_value":7,"old_value":2}`, string(b))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	b, err := Marshal(String("a<b && c>d"))
	require.NoError(t, err)
	assert.Equal(t, `"a<b && c>d"`, string(b))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	b, err := Marshal(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(b))
}

func TestMarshal_LineSeparatorsLiteral(t *testing.T) {
	b, err := Marshal(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(b))
}

func TestMarshal_Floats(t *testing.T) {
	b, err := Marshal(NewArray(Float(103.14), Float(0.5), Null{}))
	require.NoError(t, err)
	assert.Equal(t, `[103.14,0.5,null]`, string(b))

	_, err = Marshal(Float(math.NaN()))
	assert.Error(t, err)
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D.. which sort before U+FFFD in UTF-16.
	obj := NewObject(O("\uFFFD", Int(1)), O("\U0001F600", Int(2)))
	keys := obj.SortedKeys()
	assert.Equal(t, []string{"\U0001F600", "\uFFFD"}, keys)
}

func TestObject_JSONRoundTripThroughEncodingJSON(t *testing.T) {
	type wrapper struct {
		Data Object `json:"data"`
	}
	in := wrapper{Data: NewObject(O("b", Int(2)), O("a", NewArray(String("x"))))}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"a":["x"],"b":2}}`, string(b))

	var out wrapper
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, Equal(in.Data, out.Data))
}
