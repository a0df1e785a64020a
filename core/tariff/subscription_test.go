package tariff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegulationAccumulator(t *testing.T) {
	a := NewRegulationAccumulator(-3, 2)
	assert.True(t, a.IsZero(), "wrong-signed values must be dropped")

	a = NewRegulationAccumulator(5, -4)
	assert.False(t, a.AddUp(-1))
	assert.False(t, a.AddDown(1))
	a.Add(RegulationAccumulator{Up: 1, Down: -1})
	assert.Equal(t, RegulationAccumulator{Up: 6, Down: -5}, a)

	a = NewRegulationAccumulator(0.00005, -0.00005)
	assert.True(t, a.IsZero())
}

func TestSubscribeAndWithdraw(t *testing.T) {
	spec := flatSpec(1)
	spec.MinDuration = 24 * time.Hour
	s := NewSubscription("village", New(spec))

	s.Subscribe(10, monday)
	s.Subscribe(5, monday.Add(12*time.Hour))
	assert.Equal(t, 15, s.Committed())

	w := s.DeferredUnsubscribe(4, monday.Add(30*time.Hour))
	assert.Equal(t, Withdrawal{Count: 4}, w)

	w = s.DeferredUnsubscribe(8, monday.Add(30*time.Hour))
	assert.Equal(t, Withdrawal{Count: 8, Penalized: 2}, w)

	w = s.DeferredUnsubscribe(10, monday.Add(30*time.Hour))
	assert.Equal(t, Withdrawal{Count: 3, Penalized: 3}, w)
	assert.Equal(t, 0, s.Committed())
}

func TestBalancingControlConsumesCapacity(t *testing.T) {
	s := NewSubscription("village", New(flatSpec(1)))
	s.SetRegulationCapacity(RegulationAccumulator{Up: 10, Down: -6})
	assert.True(t, s.RemainingRegulationCapacity().IsZero(), "no committed customers")

	s.Subscribe(1, monday)
	s.PostBalancingControl(-4)
	s.PostBalancingControl(2)
	assert.Equal(t, RegulationAccumulator{Up: 6, Down: -4}, s.RemainingRegulationCapacity())
	assert.Equal(t, -2.0, s.Regulation())
	assert.Equal(t, -2.0, s.ResetRegulation())
	assert.Zero(t, s.Regulation())

	s.PostBalancingControl(-6.00001)
	assert.Zero(t, s.RemainingRegulationCapacity().Up)

	s.DeferredUnsubscribe(1, monday)
	s.Subscribe(1, monday)
	assert.True(t, s.RemainingRegulationCapacity().IsZero(), "emptying the subscription clears capacity")
}

func TestRepoUniqueSubscription(t *testing.T) {
	r := NewRepo()
	tf := New(flatSpec(1))
	require.NoError(t, r.Add(tf))
	assert.Error(t, r.Add(New(flatSpec(1))))

	assert.False(t, r.HasSubscriptions("village"))
	a := r.FindOrCreateSubscription("village", tf)
	b := r.FindOrCreateSubscription("village", tf)
	assert.Same(t, a, b)
	a.Subscribe(3, monday)
	assert.True(t, r.HasSubscriptions("village"))
	assert.Len(t, r.SubscriptionsFor(1), 1)
	assert.Len(t, r.CommittedSubscriptions(1), 1)

	r.FindOrCreateSubscription("town", tf)
	assert.Len(t, r.SubscriptionsFor(1), 2)
	assert.Len(t, r.CommittedSubscriptions(1), 1)

	r.Remove(1)
	_, ok := r.Get(1)
	assert.False(t, ok)
	assert.Empty(t, r.SubscriptionsFor(1))
}
