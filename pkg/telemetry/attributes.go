package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys used across the control plane.
const (
	// topology
	AttrTopologyNodes = "topology.nodes"
	AttrTopologyLinks = "topology.links"

	// path search / allocation
	AttrPathCandidates = "path.candidates_considered"
	AttrPathLength     = "path.length"
	AttrTunnelID       = "tunnel.id"
	AttrTunnelRate     = "tunnel.rate_mbps"
	AttrTCPPort        = "tunnel.tcp_port"

	// reconciler
	AttrReconcileDesired   = "reconcile.desired_count"
	AttrReconcileInstalled = "reconcile.installed_count"
	AttrReconcileDrift     = "reconcile.drift"

	// data-plane agent
	AttrAgentOp = "agent.op"
)

// TopologyAttributes returns the topology-size attributes for a path-search span.
func TopologyAttributes(nodes, links int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTopologyNodes, nodes),
		attribute.Int(AttrTopologyLinks, links),
	}
}

// AllocationAttributes returns the attributes describing one allocated tunnel.
func AllocationAttributes(tunnelID int64, rate, tcpPort, pathLength int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrTunnelID, tunnelID),
		attribute.Int(AttrTunnelRate, rate),
		attribute.Int(AttrTCPPort, tcpPort),
		attribute.Int(AttrPathLength, pathLength),
	}
}

// ReconcileAttributes returns the attributes describing one reconciler tick.
func ReconcileAttributes(desired, installed, drift int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrReconcileDesired, desired),
		attribute.Int(AttrReconcileInstalled, installed),
		attribute.Int(AttrReconcileDrift, drift),
	}
}

// AgentCallAttributes returns the attribute set for a data-plane agent RPC span.
func AgentCallAttributes(op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentOp, op),
	}
}
