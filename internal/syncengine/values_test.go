package syncengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsBool(t *testing.T) {
	for _, v := range []interface{}{true, 1.0, json.Number("1"), "yes", "TRUE", " 1 "} {
		assert.True(t, asBool(v), "%#v", v)
	}
	for _, v := range []interface{}{false, 0.0, json.Number("0"), "no", "", nil, map[string]interface{}{}} {
		assert.False(t, asBool(v), "%#v", v)
	}
}

func TestCoerce(t *testing.T) {
	v, err := coerce(json.Number("12.5"), Num)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = coerce("7", Int)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = coerce("", Num)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = coerce(json.Number("809"), Text)
	require.NoError(t, err)
	assert.Equal(t, "809", v)

	v, err = coerce([]interface{}{"sales", "refunds"}, Text)
	require.NoError(t, err)
	assert.Equal(t, `["sales","refunds"]`, v)

	v, err = coerce("yes", Bool)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = coerce("twelve", Num)
	assert.Error(t, err)
	_, err = coerce(1.5, Int)
	assert.Error(t, err)
}

func TestCoerceIntKeepsLargeValues(t *testing.T) {
	for in, want := range map[interface{}]int64{
		json.Number("9007199254740993"):     9007199254740993,
		json.Number("-9223372036854775808"): -9223372036854775808,
		"9223372036854775807":               9223372036854775807,
		json.Number("12.0"):                 12,
		"12.0":                              12,
		json.Number("1e3"):                  1000,
	} {
		v, err := coerce(in, Int)
		require.NoError(t, err, in)
		assert.Equal(t, want, v, in)
	}

	v, err := coerce("", Int)
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, in := range []interface{}{json.Number("12.5"), json.Number("1e30"), "9.5"} {
		_, err := coerce(in, Int)
		assert.Error(t, err, in)
	}
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "c-1", recordID(" c-1 "))
	assert.Equal(t, "42", recordID(json.Number("42")))
	assert.Equal(t, "42", recordID(42.0))
	assert.Equal(t, "", recordID(nil))
	assert.Equal(t, "", recordID(true))
}
