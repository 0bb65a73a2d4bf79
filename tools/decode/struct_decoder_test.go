package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusPayload struct {
	MessageIDList []string `json:"message_id_list"`
	Status        string   `json:"status"`
}

type userPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func TestMapDecodesJSONObject(t *testing.T) {
	m, err := JSONObject([]byte(`{"message_id_list":["a","b"],"status":"seen","extra":1}`))
	require.NoError(t, err)

	p, err := Map[statusPayload](m)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.MessageIDList)
	assert.Equal(t, "seen", p.Status)
}

func TestMapKeepsLargeIntegers(t *testing.T) {
	m, err := JSONObject([]byte(`{"id":9007199254740993,"username":"u"}`))
	require.NoError(t, err)

	p, err := Map[userPayload](m)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), p.ID)
}

func TestMapRejectsWrongTypes(t *testing.T) {
	m, err := JSONObject([]byte(`{"message_id_list":"a","status":3}`))
	require.NoError(t, err)
	_, err = Map[statusPayload](m)
	assert.Error(t, err)

	m, err = JSONObject([]byte(`{"message_id_list":[{"x":1}]}`))
	require.NoError(t, err)
	_, err = Map[statusPayload](m)
	assert.Error(t, err)
}

func TestJSONObjectRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `null`, `{`} {
		_, err := JSONObject([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestField(t *testing.T) {
	m, err := JSONObject([]byte(`{"data":{"status":"delivered"},"flat":"x"}`))
	require.NoError(t, err)

	p, ok, err := Field[statusPayload](m, "data")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "delivered", p.Status)

	_, ok, err = Field[statusPayload](m, "missing")
	assert.False(t, ok)
	assert.NoError(t, err)

	_, ok, err = Field[statusPayload](m, "flat")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestNumbersAreNotStrings(t *testing.T) {
	m, err := JSONObject([]byte(`{"message_id_list":["a",1],"status":"seen"}`))
	require.NoError(t, err)
	_, err = Map[statusPayload](m)
	assert.Error(t, err)

	m, err = JSONObject([]byte(`{"status":3}`))
	require.NoError(t, err)
	_, err = Map[statusPayload](m)
	assert.Error(t, err)
}

func TestReadString(t *testing.T) {
	m, err := JSONObject([]byte(`{"event":"new_message","n":1}`))
	require.NoError(t, err)

	v, err := ReadString(m, "event")
	require.NoError(t, err)
	assert.Equal(t, "new_message", v)

	_, err = ReadString(m, "n")
	assert.Error(t, err)
	_, err = ReadString(m, "zz")
	assert.Error(t, err)
}
