package indexer

import (
	"encoding/json"
	"testing"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
	"github.com/potlock-network/potlock-indexer/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchTableCoversEveryKind(t *testing.T) {
	idx := New(nil, nil, NopTaskQueue{})
	assert.ElementsMatch(t, decoder.Kinds, idx.HandledKinds())
}

func TestDonationActivityType(t *testing.T) {
	pot := "pot.near"
	assert.Equal(t, models.ActivityDonateDirect, donationActivityType(nil, false))
	assert.Equal(t, models.ActivityDonatePotMatchingPool, donationActivityType(&pot, true))
	assert.Equal(t, models.ActivityDonatePotPublic, donationActivityType(&pot, false))
}

func TestGroupRule(t *testing.T) {
	typ, val := groupRule(json.RawMessage(`"Highest"`))
	require.NotNil(t, typ)
	assert.Equal(t, "Highest", *typ)
	assert.Nil(t, val)

	typ, val = groupRule(json.RawMessage(`{"Sum": 100}`))
	require.NotNil(t, typ)
	require.NotNil(t, val)
	assert.Equal(t, "Sum", *typ)
	assert.Equal(t, uint64(100), *val)

	typ, val = groupRule(nil)
	assert.Nil(t, typ)
	assert.Nil(t, val)
}
