package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"slicectl/internal/domain"
	"slicectl/pkg/apperror"
)

// LoadFile loads every record from a tunnel ledger file. Each line is
// "n1,n2,...,nk,bandwidth,tunnel_id,tcp_port": the last three fields are
// integers, everything before them is the ordered path. A malformed record
// is a fatal, start-time error — the data-integrity policy forbids silent
// truncation of a ledger that could not be fully understood.
func LoadFile(path string) ([]*domain.Tunnel, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeLedgerCorrupt, "failed to open ledger file")
	}
	defer f.Close()

	var tunnels []*domain.Tunnel
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		t, err := parseRecord(line)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeLedgerCorrupt,
				fmt.Sprintf("malformed ledger record at line %d", lineNo))
		}
		tunnels = append(tunnels, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeLedgerCorrupt, "failed to read ledger file")
	}

	return tunnels, nil
}

func parseRecord(line string) (*domain.Tunnel, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return nil, fmt.Errorf("expected at least 6 comma-separated fields (path >=3, bandwidth, tunnel_id, tcp_port), got %d", len(fields))
	}

	n := len(fields)
	rate, err := strconv.Atoi(strings.TrimSpace(fields[n-3]))
	if err != nil {
		return nil, fmt.Errorf("bandwidth field %q: %w", fields[n-3], err)
	}
	tunnelID, err := strconv.ParseInt(strings.TrimSpace(fields[n-2]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("tunnel_id field %q: %w", fields[n-2], err)
	}
	tcpPort, err := strconv.Atoi(strings.TrimSpace(fields[n-1]))
	if err != nil {
		return nil, fmt.Errorf("tcp_port field %q: %w", fields[n-1], err)
	}

	path := make([]string, 0, n-3)
	for _, f := range fields[:n-3] {
		path = append(path, strings.TrimSpace(f))
	}
	if len(path) < 3 {
		return nil, fmt.Errorf("path must have at least 3 nodes, got %d", len(path))
	}

	t := &domain.Tunnel{
		TunnelID:      tunnelID,
		Path:          path,
		Rate:          rate,
		TCPPort:       tcpPort,
		Bidirectional: true,
	}
	if err := populateDerived(t); err != nil {
		return nil, err
	}
	return t, nil
}

// populateDerived fills in the fields computable purely from Path, without
// any agent call: src/dst IP and MAC, and the traversed link list.
func populateDerived(t *domain.Tunnel) error {
	src, err := domain.ParseNode(t.Src())
	if err != nil {
		return fmt.Errorf("source node: %w", err)
	}
	dst, err := domain.ParseNode(t.Dst())
	if err != nil {
		return fmt.Errorf("destination node: %w", err)
	}
	if !src.IsHost() || !dst.IsHost() {
		return fmt.Errorf("path must start and end at a host, got %s..%s", src.Name, dst.Name)
	}

	t.SrcIP = src.IP()
	t.DstIP = dst.IP()
	t.SrcMAC = src.MAC()
	t.DstMAC = dst.MAC()
	t.Links = domain.LinksForPath(t.Path)
	return nil
}

// FilePersister is the Persister implementation backing the ledger file. It
// rewrites the whole file on every call, never appends, so that a removal
// cannot leave a stale line behind.
type FilePersister struct {
	Path string
}

// WriteAll rewrites the ledger file from the given ordered tunnel list.
func (p *FilePersister) WriteAll(tunnels []*domain.Tunnel) error {
	tmp := p.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, t := range tunnels {
		fields := append(append([]string{}, t.Path...),
			strconv.Itoa(t.Rate),
			strconv.FormatInt(t.TunnelID, 10),
			strconv.Itoa(t.TCPPort),
		)
		if _, err := fmt.Fprintln(w, strings.Join(fields, ",")); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, p.Path)
}
