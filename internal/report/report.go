// Package report builds the xlsx export served at GET /v1/report.xlsx: one
// sheet of currently allocated tunnels, one sheet of per-link topology
// utilization. Adapted from the teacher's report-svc Excel generator.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"slicectl/internal/domain"
	"slicectl/internal/topology"
)

func cellAddr(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// Generator renders the control plane's ledger and topology state as an
// xlsx workbook.
type Generator struct{}

// New constructs a Generator.
func New() *Generator {
	return &Generator{}
}

// Generate builds the workbook from a ledger snapshot and the current
// topology store.
func (g *Generator) Generate(tunnels []*domain.Tunnel, topo *topology.Store) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	g.writeTunnelSheet(f, headerStyle, tunnels)
	g.writeUtilizationSheet(f, headerStyle, topo.Snapshot(), topo)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeTunnelSheet(f *excelize.File, headerStyle int, tunnels []*domain.Tunnel) {
	const sheet = "Tunnels"
	f.NewSheet(sheet)

	cols := []string{"Tunnel ID", "Path", "Rate (Mbps)", "TCP Port", "Bidirectional", "Src IP", "Dst IP"}
	for i, name := range cols {
		col := string(rune('A' + i))
		f.SetCellValue(sheet, cellAddr(col, 1), name)
	}
	f.SetCellStyle(sheet, "A1", cellAddr(string(rune('A'+len(cols)-1)), 1), headerStyle)

	sorted := make([]*domain.Tunnel, len(tunnels))
	copy(sorted, tunnels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TunnelID < sorted[j].TunnelID })

	row := 2
	for _, t := range sorted {
		f.SetCellValue(sheet, cellAddr("A", row), t.TunnelID)
		f.SetCellValue(sheet, cellAddr("B", row), pathString(t.Path))
		f.SetCellValue(sheet, cellAddr("C", row), t.Rate)
		f.SetCellValue(sheet, cellAddr("D", row), t.TCPPort)
		f.SetCellValue(sheet, cellAddr("E", row), t.Bidirectional)
		f.SetCellValue(sheet, cellAddr("F", row), t.SrcIP)
		f.SetCellValue(sheet, cellAddr("G", row), t.DstIP)
		row++
	}
	f.SetColWidth(sheet, "A", "G", 16)
}

func (g *Generator) writeUtilizationSheet(f *excelize.File, headerStyle int, snap *topology.Snapshot, topo *topology.Store) {
	const sheet = "Topology Utilization"
	f.NewSheet(sheet)

	cols := []string{"Link U", "Link V", "Residual (Mbps)", "Initial (Mbps)", "Used (Mbps)"}
	for i, name := range cols {
		col := string(rune('A' + i))
		f.SetCellValue(sheet, cellAddr(col, 1), name)
	}
	f.SetCellStyle(sheet, "A1", cellAddr(string(rune('A'+len(cols)-1)), 1), headerStyle)

	keys := make([]domain.LinkKey, 0, len(snap.Links))
	for k := range snap.Links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].U != keys[j].U {
			return keys[i].U < keys[j].U
		}
		return keys[i].V < keys[j].V
	})

	row := 2
	for _, key := range keys {
		link := snap.Links[key]
		initial, _ := topo.InitialResidual(key)
		f.SetCellValue(sheet, cellAddr("A", row), key.U)
		f.SetCellValue(sheet, cellAddr("B", row), key.V)
		f.SetCellValue(sheet, cellAddr("C", row), link.Residual)
		f.SetCellValue(sheet, cellAddr("D", row), initial)
		f.SetCellValue(sheet, cellAddr("E", row), initial-link.Residual)
		row++
	}
	f.SetColWidth(sheet, "A", "E", 18)
}

func pathString(path []string) string {
	out := ""
	for i, n := range path {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}
