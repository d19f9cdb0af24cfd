package crdt

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	s.Register(ComponentSpec{ID: 1, Policy: PositionAny, Kind: KindLWW})
	s.Register(ComponentSpec{ID: 2, Policy: PositionAny, Kind: KindLWW})
	s.Register(ComponentSpec{ID: 3, Policy: PositionAny, Kind: KindGrowOnly})
	return s
}

func TestTryUpdate_HigherTimestampWins(t *testing.T) {
	s := newTestStore()
	assert.True(t, s.TryUpdate(1, 100, 5, []byte("a")))
	assert.True(t, s.TryUpdate(1, 100, 6, []byte("b")))

	cell, ok := s.Get(1, 100)
	require.True(t, ok)
	assert.Equal(t, uint32(6), cell.Timestamp)
	assert.Equal(t, []byte("b"), cell.Data)
}

func TestTryUpdate_LowerTimestampRejected(t *testing.T) {
	s := newTestStore()
	require.True(t, s.TryUpdate(1, 100, 10, []byte("a")))
	assert.False(t, s.TryUpdate(1, 100, 5, []byte("z")))

	cell, _ := s.Get(1, 100)
	assert.Equal(t, []byte("a"), cell.Data)
}

func TestTryUpdate_EqualTimestampLexicographicTieBreak(t *testing.T) {
	s := newTestStore()
	require.True(t, s.TryUpdate(1, 100, 10, []byte("aaa")))
	assert.True(t, s.TryUpdate(1, 100, 10, []byte("bbb"))) // lexicographically greater wins
	assert.False(t, s.TryUpdate(1, 100, 10, []byte("aaa")))

	cell, _ := s.Get(1, 100)
	assert.Equal(t, []byte("bbb"), cell.Data)
}

func TestTryUpdate_TombstoneOrdersBelowPresentData(t *testing.T) {
	s := newTestStore()
	require.True(t, s.TryUpdate(1, 100, 10, nil)) // tombstone first
	assert.True(t, s.TryUpdate(1, 100, 10, []byte("x")))

	cell, _ := s.Get(1, 100)
	assert.Equal(t, []byte("x"), cell.Data)
}

// LWW commutativity for distinct keys (§8).
func TestLWWCommutativityForDistinctKeys(t *testing.T) {
	apply := func(order [][2]int) map[EntityID]Cell {
		s := newTestStore()
		updates := []struct {
			comp ComponentID
			ent  EntityID
			ts   uint32
			data []byte
		}{
			{1, 1, 5, []byte("one")},
			{2, 2, 3, []byte("two")},
		}
		for _, idx := range order {
			u := updates[idx[0]]
			_ = idx[1]
			s.TryUpdate(u.comp, u.ent, u.ts, u.data)
		}
		result := make(map[EntityID]Cell)
		c1, _ := s.Get(1, 1)
		c2, _ := s.Get(2, 2)
		result[1] = c1
		result[2] = c2
		return result
	}

	forward := apply([][2]int{{0, 0}, {1, 0}})
	reverse := apply([][2]int{{1, 0}, {0, 0}})
	assert.Equal(t, forward, reverse)
}

func TestClean_RemovesDeadEntities(t *testing.T) {
	s := newTestStore()
	s.TryUpdate(1, 42, 1, []byte("x"))
	s.Append(3, 42, []byte("log"))

	s.Clean(map[EntityID]struct{}{42: {}})

	_, ok := s.Get(1, 42)
	assert.False(t, ok)
}

func TestTakeUpdates_ClearsDirtySet(t *testing.T) {
	s := newTestStore()
	s.TryUpdate(1, 1, 1, []byte("x"))

	updates := s.TakeUpdates()
	require.Len(t, updates, 1)

	// Second call with no new writes returns nothing.
	assert.Empty(t, s.TakeUpdates())
}

func TestPolicyGuard_RejectsRootOnlyViolation(t *testing.T) {
	s := NewStore()
	s.Register(ComponentSpec{ID: 9, Policy: PositionRootOnly, Kind: KindLWW})

	assert.False(t, s.TryUpdate(9, EntityID(5), 1, []byte("x")))
	assert.True(t, s.TryUpdate(9, EntityRoot, 1, []byte("x")))
}

// TestEncodeFrame_RoundTripsThroughProcessBuffer encodes a batch of
// updates to the wire format and decodes it back through ProcessBuffer,
// asserting the store ends up holding semantically identical updates
// (§6 round-trip, §8 commutativity).
func TestEncodeFrame_RoundTripsThroughProcessBuffer(t *testing.T) {
	source := newTestStore()
	source.TryUpdate(1, 100, 5, []byte("a"))
	source.TryUpdate(2, 200, 9, []byte("b"))
	source.Append(3, 300, []byte("log-line"))

	want := source.TakeUpdates()
	buf := EncodeFrame(want)

	dest := newTestStore()
	dest.ProcessBuffer(nil, buf, false)
	got := dest.TakeUpdates()

	sortUpdates(want)
	sortUpdates(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-tripped updates differ (-want +got):\n%s", diff)
	}
}

func sortUpdates(updates []Update) {
	sort.Slice(updates, func(i, j int) bool {
		if updates[i].Component != updates[j].Component {
			return updates[i].Component < updates[j].Component
		}
		return updates[i].Entity < updates[j].Entity
	})
}

func TestEntityID_IndexGenerationRoundTrip(t *testing.T) {
	id := NewEntityID(512, 3)
	assert.Equal(t, uint16(512), id.Index())
	assert.Equal(t, uint16(3), id.Generation())
}
