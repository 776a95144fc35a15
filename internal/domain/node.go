// Package domain holds the wire-light value types shared by every component
// of the control plane: nodes, links, tunnels, and flow programs. Nothing
// here owns a mutex or touches disk — that belongs to topology and ledger.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKind distinguishes a host from a switch. Identity is the name's prefix.
type NodeKind int

const (
	// NodeKindUnknown marks a name that matched neither prefix.
	NodeKindUnknown NodeKind = iota
	// NodeKindHost is a leaf node, prefix "h".
	NodeKindHost
	// NodeKindSwitch is an interior datapath, prefix "s".
	NodeKindSwitch
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindHost:
		return "host"
	case NodeKindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Node is an arena entry: all graph "references" elsewhere are Name strings,
// never pointers, so the arena owns the only copy.
type Node struct {
	Name string
	Kind NodeKind
	// Num is the numeric suffix of Name: the IP/MAC host octet for a host,
	// the datapath ID for a switch.
	Num int
}

// ParseNode derives a Node from its symbolic name. Any prefix other than "h"
// or "s" is rejected, per the topology CSV's node-kind rule.
func ParseNode(name string) (Node, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return Node{}, fmt.Errorf("node name %q too short", name)
	}

	var kind NodeKind
	switch name[0] {
	case 'h':
		kind = NodeKindHost
	case 's':
		kind = NodeKindSwitch
	default:
		return Node{}, fmt.Errorf("node name %q has unrecognised prefix (want h or s)", name)
	}

	num, err := strconv.Atoi(name[1:])
	if err != nil {
		return Node{}, fmt.Errorf("node name %q has non-numeric suffix: %w", name, err)
	}

	return Node{Name: name, Kind: kind, Num: num}, nil
}

// IP returns the host's assigned address, 10.0.0.N. Only meaningful for hosts.
func (n Node) IP() string {
	return fmt.Sprintf("10.0.0.%d", n.Num)
}

// MAC returns the host's assigned address, 00:00:00:00:00:0N. Only meaningful for hosts.
func (n Node) MAC() string {
	return fmt.Sprintf("00:00:00:00:00:%02x", n.Num)
}

// DPID returns the switch's datapath ID, equal to its numeric suffix.
func (n Node) DPID() int {
	return n.Num
}

// IsHost reports whether the node is a host.
func (n Node) IsHost() bool {
	return n.Kind == NodeKindHost
}

// IsSwitch reports whether the node is a switch.
func (n Node) IsSwitch() bool {
	return n.Kind == NodeKindSwitch
}
