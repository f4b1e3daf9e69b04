package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneDetachesAttributes(t *testing.T) {
	original := &Event{Type: "market.mint", Attributes: map[string]string{"amount": "10"}}
	clone := original.Clone()
	clone.Attributes["amount"] = "11"
	require.Equal(t, "10", original.Attributes["amount"])

	require.NotNil(t, (&Event{Type: "x"}).Clone().Attributes)
	var missing *Event
	require.Nil(t, missing.Clone())
}
