package domain

import "fmt"

// LinkKey identifies a link by its unordered endpoint pair. U is always the
// lexicographically smaller name so two callers querying the same pair in
// either order land on the same map key — the "edge table keyed by
// unordered pair" from the arena design.
type LinkKey struct {
	U string
	V string
}

// NewLinkKey canonicalises (a, b) into a LinkKey regardless of argument order.
func NewLinkKey(a, b string) LinkKey {
	if a <= b {
		return LinkKey{U: a, V: b}
	}
	return LinkKey{U: b, V: a}
}

// String renders the key as "u-v", matching the CSV node ordering convention.
func (k LinkKey) String() string {
	return fmt.Sprintf("%s-%s", k.U, k.V)
}

// Has reports whether the node is one of the link's two endpoints.
func (k LinkKey) Has(node string) bool {
	return k.U == node || k.V == node
}

// Other returns the endpoint on the far side of node from this link.
// Behaviour is undefined if node is not an endpoint of k.
func (k LinkKey) Other(node string) string {
	if k.U == node {
		return k.V
	}
	return k.U
}

// Link is an arena entry for one unordered pair with its residual capacity in Mbps.
type Link struct {
	Key      LinkKey
	Residual int
}
