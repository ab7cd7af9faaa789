// Package predict adapts an external contact-graph routing engine into a
// delivery-time oracle for Bundle-Protocol endpoints.
//
// Prediction is advisory: callers treat every failure here as "no estimate"
// and never let it affect message transmission.
package predict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dtchat/chattime"
)

var (
	// ErrNoRoute indicates the routing engine found no contact path.
	ErrNoRoute = errors.New("predict: no route found")
	// ErrUnknownEndpoint indicates an address outside the routing topology.
	ErrUnknownEndpoint = errors.New("predict: endpoint not in contact plan")
)

// NodeID identifies a node inside the routing engine's topology.
type NodeID int

// Router is the call contract of the external contact-graph routing engine.
// Times are fractional seconds relative to the contact plan's start.
type Router interface {
	// EarliestArrival computes when a bundle of the given size dispatched
	// at sendOffset would arrive, or reports false when no route exists.
	EarliestArrival(source, dest NodeID, sizeBytes float64, sendOffset float64) (float64, bool)
}

// Oracle converts Bundle-Protocol addresses and payload sizes into
// predicted arrival instants by delegating to a Router.
type Oracle struct {
	nodes     map[string]NodeID
	router    Router
	planStart chattime.Time
	clock     chattime.Provider
}

// NewOracle builds an oracle over a node-name index and a router. The
// contact plan's clock is anchored at the current instant.
func NewOracle(nodes map[string]NodeID, router Router) *Oracle {
	return NewOracleAt(nodes, router, chattime.SystemProvider{})
}

// NewOracleAt is NewOracle with an injectable clock for tests.
func NewOracleAt(nodes map[string]NodeID, router Router, clock chattime.Provider) *Oracle {
	return &Oracle{
		nodes:     nodes,
		router:    router,
		planStart: clock.Now(),
		clock:     clock,
	}
}

// extractNodeName strips the DTN addressing scheme from a Bundle-Protocol
// address: "ipn:3.1" yields "3". Other address forms pass through verbatim.
func extractNodeName(bpAddress string) string {
	after, ok := strings.CutPrefix(bpAddress, "ipn:")
	if !ok {
		return bpAddress
	}
	if dot := strings.IndexByte(after, '.'); dot >= 0 {
		return after[:dot]
	}
	return after
}

// NodeID resolves a routing-engine node from its plan name.
func (o *Oracle) NodeID(name string) (NodeID, bool) {
	id, ok := o.nodes[name]
	return id, ok
}

// Predict returns the predicted arrival instant for a payload of the given
// size sent now from srcAddress to dstAddress, both Bundle-Protocol
// addresses. It fails with ErrUnknownEndpoint when either side is not in
// the topology and ErrNoRoute when no contact path exists.
func (o *Oracle) Predict(srcAddress, dstAddress string, sizeBytes float64) (chattime.Time, error) {
	srcName := extractNodeName(srcAddress)
	dstName := extractNodeName(dstAddress)

	src, ok := o.NodeID(srcName)
	if !ok {
		return chattime.Time{}, fmt.Errorf("%w: source %q", ErrUnknownEndpoint, srcName)
	}
	dst, ok := o.NodeID(dstName)
	if !ok {
		return chattime.Time{}, fmt.Errorf("%w: destination %q", ErrUnknownEndpoint, dstName)
	}

	sendOffset := o.clock.Now().Unix() - o.planStart.Unix()
	arrivalOffset, ok := o.router.EarliestArrival(src, dst, sizeBytes, sendOffset)
	if !ok {
		return chattime.Time{}, fmt.Errorf("%w: %s -> %s", ErrNoRoute, srcName, dstName)
	}

	arrival := chattime.FromSeconds(o.planStart.Unix() + arrivalOffset)
	logrus.WithFields(logrus.Fields{
		"source":      srcName,
		"destination": dstName,
		"size":        sizeBytes,
		"arrival":     arrival.UnixMilli(),
	}).Debug("delivery time predicted")
	return arrival, nil
}

// State is the process-wide prediction mode, fixed at startup.
type State struct {
	oracle *Oracle
	reason string
	mode   stateMode
}

type stateMode uint8

const (
	modeDisabled stateMode = iota
	modeEnabled
	modeError
)

// Disabled means no prediction was configured.
func Disabled() State { return State{mode: modeDisabled} }

// Enabled wraps a working oracle.
func Enabled(o *Oracle) State { return State{mode: modeEnabled, oracle: o} }

// Errored records a failed oracle initialisation.
func Errored(reason string) State { return State{mode: modeError, reason: reason} }

// Oracle returns the oracle when prediction is enabled.
func (s State) Oracle() (*Oracle, bool) {
	return s.oracle, s.mode == modeEnabled
}

// String describes the state for informational events.
func (s State) String() string {
	switch s.mode {
	case modeEnabled:
		return "prediction enabled"
	case modeError:
		return "prediction unavailable: " + s.reason
	default:
		return "prediction disabled"
	}
}
