package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/dtchat/chattime"
)

// stubRouter answers every route with a fixed arrival offset.
type stubRouter struct {
	arrival float64
	found   bool

	lastSource NodeID
	lastDest   NodeID
	lastSize   float64
}

func (r *stubRouter) EarliestArrival(source, dest NodeID, sizeBytes, sendOffset float64) (float64, bool) {
	r.lastSource = source
	r.lastDest = dest
	r.lastSize = sizeBytes
	return r.arrival, r.found
}

// fixedClock pins the oracle's notion of "now".
type fixedClock struct {
	at chattime.Time
}

func (c fixedClock) Now() chattime.Time { return c.at }

func testOracle(router Router) *Oracle {
	nodes := map[string]NodeID{"3": 0, "12": 1}
	start, _ := chattime.FromUnixMilli(1700000000000)
	return NewOracleAt(nodes, router, fixedClock{at: start})
}

func TestPredict(t *testing.T) {
	t.Run("resolves ipn addresses and offsets the plan start", func(t *testing.T) {
		router := &stubRouter{arrival: 42.5, found: true}
		oracle := testOracle(router)

		arrival, err := oracle.Predict("ipn:3.1", "ipn:12.1", 128)
		require.NoError(t, err)

		assert.Equal(t, NodeID(0), router.lastSource)
		assert.Equal(t, NodeID(1), router.lastDest)
		assert.Equal(t, float64(128), router.lastSize)
		assert.Equal(t, int64(1700000042500), arrival.UnixMilli())
	})

	t.Run("unknown source", func(t *testing.T) {
		oracle := testOracle(&stubRouter{found: true})
		_, err := oracle.Predict("ipn:99.1", "ipn:12.1", 1)
		assert.ErrorIs(t, err, ErrUnknownEndpoint)
	})

	t.Run("unknown destination", func(t *testing.T) {
		oracle := testOracle(&stubRouter{found: true})
		_, err := oracle.Predict("ipn:3.1", "ipn:99.1", 1)
		assert.ErrorIs(t, err, ErrUnknownEndpoint)
	})

	t.Run("no route", func(t *testing.T) {
		oracle := testOracle(&stubRouter{found: false})
		_, err := oracle.Predict("ipn:3.1", "ipn:12.1", 1)
		assert.ErrorIs(t, err, ErrNoRoute)
	})

	t.Run("plain node names pass through", func(t *testing.T) {
		router := &stubRouter{arrival: 1, found: true}
		oracle := testOracle(router)
		_, err := oracle.Predict("3", "12", 1)
		assert.NoError(t, err)
	})
}

func TestExtractNodeName(t *testing.T) {
	cases := map[string]string{
		"ipn:3.1":  "3",
		"ipn:12.0": "12",
		"ipn:7":    "7",
		"node-a":   "node-a",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractNodeName(in), "address %q", in)
	}
}

func TestState(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := Disabled()
		_, ok := s.Oracle()
		assert.False(t, ok)
		assert.Equal(t, "prediction disabled", s.String())
	})

	t.Run("enabled", func(t *testing.T) {
		oracle := testOracle(&stubRouter{})
		s := Enabled(oracle)
		got, ok := s.Oracle()
		require.True(t, ok)
		assert.Same(t, oracle, got)
		assert.Equal(t, "prediction enabled", s.String())
	})

	t.Run("errored", func(t *testing.T) {
		s := Errored("contact plan unreadable")
		_, ok := s.Oracle()
		assert.False(t, ok)
		assert.Contains(t, s.String(), "contact plan unreadable")
	})
}
