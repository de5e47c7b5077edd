package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityIDMarshalsAsDecimalString(t *testing.T) {
	// Above 2^53, a JSON number would lose precision.
	id := EntityID(9007199254740993)

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"9007199254740993"`, string(data))

	var back EntityID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)
}

func TestEntityIDAcceptsBareNumbers(t *testing.T) {
	var id EntityID
	require.NoError(t, json.Unmarshal([]byte(`42`), &id))
	assert.Equal(t, EntityID(42), id)
}

func TestGramsRoundTrip(t *testing.T) {
	w := Grams(250000)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Equal(t, `"250000"`, string(data))

	var back Grams
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, w, back)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var id EntityID
	assert.Error(t, json.Unmarshal([]byte(`"not-a-number"`), &id))
	assert.Error(t, json.Unmarshal([]byte(`{"nested":1}`), &id))

	var g Grams
	assert.Error(t, json.Unmarshal([]byte(`-5`), &g))
}
