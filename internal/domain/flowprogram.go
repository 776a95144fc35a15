package domain

// Direction tags which shape of a FlowProgram this is. Forward and reverse
// flows differ in which port the match's TCP field lands on, which port the
// action outputs to, and the reverse rule's swapped source/destination MAC
// and IP — modelled as a tagged variant rather than conditional fields on
// one record.
type Direction int

const (
	// DirectionForward matches tcp_dst == tcp_port and outputs on OutPort.
	DirectionForward Direction = iota
	// DirectionReverse matches tcp_src == tcp_port and outputs on InPort.
	DirectionReverse
)

func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}

// Match is the set of header fields a flow rule matches against. EthType and
// IPProto are fixed (IPv4, TCP) for every tunnel rule this system installs;
// they are named fields rather than a string-keyed map per the "dynamic
// string-keyed config" design note.
type Match struct {
	EthType string
	IPProto string
	SrcMAC  string
	DstMAC  string
	SrcIP   string
	DstIP   string
	TCPPort int
}

// FlowProgram is one per-switch match/action rule implementing one direction
// of one tunnel. A bidirectional tunnel produces two FlowPrograms per
// interior switch: one DirectionForward, one DirectionReverse.
type FlowProgram struct {
	TunnelID  int64
	Switch    string
	Direction Direction
	Priority  int
	Match     Match
	OutPort   int
}

// DefaultDropProgram is the priority-0, empty-match rule installed once per
// switch at feature-handshake time.
func DefaultDropProgram(sw string) FlowProgram {
	return FlowProgram{Switch: sw, Priority: 0}
}

// NewFlowPrograms builds the full set of per-switch flow programs for a
// tunnel: one rule (forward, and reverse if bidirectional) for every
// interior switch on its path.
func NewFlowPrograms(t *Tunnel) []FlowProgram {
	interior := t.InteriorSwitches()
	programs := make([]FlowProgram, 0, len(interior)*2)

	for _, sw := range interior {
		outPort := t.OutPorts[sw]
		inPort := t.InPorts[sw]

		programs = append(programs, FlowProgram{
			TunnelID:  t.TunnelID,
			Switch:    sw,
			Direction: DirectionForward,
			Priority:  100,
			Match: Match{
				EthType: "IPv4",
				IPProto: "TCP",
				SrcMAC:  t.SrcMAC,
				DstMAC:  t.DstMAC,
				SrcIP:   t.SrcIP,
				DstIP:   t.DstIP,
				TCPPort: t.TCPPort,
			},
			OutPort: outPort,
		})

		if t.Bidirectional {
			programs = append(programs, FlowProgram{
				TunnelID:  t.TunnelID,
				Switch:    sw,
				Direction: DirectionReverse,
				Priority:  100,
				Match: Match{
					EthType: "IPv4",
					IPProto: "TCP",
					SrcMAC:  t.DstMAC,
					DstMAC:  t.SrcMAC,
					SrcIP:   t.DstIP,
					DstIP:   t.SrcIP,
					TCPPort: t.TCPPort,
				},
				OutPort: inPort,
			})
		}
	}

	return programs
}

// InstallState is the per-switch-per-program state machine driven by the
// Reconciler: Absent -> Pending -> Installed -> PendingDelete -> Absent.
type InstallState int

const (
	StateAbsent InstallState = iota
	StatePending
	StateInstalled
	StatePendingDelete
)

func (s InstallState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInstalled:
		return "installed"
	case StatePendingDelete:
		return "pending_delete"
	default:
		return "absent"
	}
}
