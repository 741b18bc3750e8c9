package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumDeltas_GroupsByCustomerInFirstSeenOrder(t *testing.T) {
	out := SumDeltas([]WalletDelta{
		{CustomerID: 2, DecReserved: 100},
		{CustomerID: 1, DecReserved: 50, IncBalance: 50},
		{CustomerID: 2, DecReserved: 30, IncBalance: 30},
	})

	assert.Equal(t, []WalletDelta{
		{CustomerID: 2, DecReserved: 130, IncBalance: 30},
		{CustomerID: 1, DecReserved: 50, IncBalance: 50},
	}, out)
	assert.Empty(t, SumDeltas(nil))
}
