package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"slicectl/internal/domain"
	"slicectl/internal/topology"
)

func TestGenerator_Generate(t *testing.T) {
	nodes := map[string]domain.Node{
		"h1": {Name: "h1", Kind: domain.NodeKindHost, Num: 1},
		"h2": {Name: "h2", Kind: domain.NodeKindHost, Num: 2},
		"s1": {Name: "s1", Kind: domain.NodeKindSwitch, Num: 1},
	}
	links := map[domain.LinkKey]domain.Link{
		domain.NewLinkKey("h1", "s1"): {Key: domain.NewLinkKey("h1", "s1"), Residual: 50},
		domain.NewLinkKey("s1", "h2"): {Key: domain.NewLinkKey("s1", "h2"), Residual: 100},
	}
	topo := topology.New(nodes, links, nil)

	tunnels := []*domain.Tunnel{
		{TunnelID: 1, Path: []string{"h1", "s1", "h2"}, Rate: 50, TCPPort: 5002, Bidirectional: true, SrcIP: "10.0.0.1", DstIP: "10.0.0.2"},
	}

	data, err := New().Generate(tunnels, topo)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Contains(t, sheets, "Tunnels")
	require.Contains(t, sheets, "Topology Utilization")

	val, err := f.GetCellValue("Tunnels", "A2")
	require.NoError(t, err)
	require.Equal(t, "1", val)
}
