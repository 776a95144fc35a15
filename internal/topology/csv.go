package topology

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"slicectl/internal/domain"
	"slicectl/pkg/logger"
)

// LoadCSV parses a topology CSV file: lines of "node1,node2,bandwidth_mbps".
// Whitespace around fields is stripped; blank lines and lines without
// exactly three fields are skipped silently; a non-integer bandwidth field
// skips the line with a logged warning. Node prefixes must be "h" or "s".
func LoadCSV(path string) (map[string]domain.Node, map[domain.LinkKey]domain.Link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open topology csv %s: %w", path, err)
	}
	defer f.Close()

	nodes := make(map[string]domain.Node)
	links := make(map[domain.LinkKey]domain.Link)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}

		n1 := strings.TrimSpace(fields[0])
		n2 := strings.TrimSpace(fields[1])
		bwField := strings.TrimSpace(fields[2])

		bw, err := strconv.Atoi(bwField)
		if err != nil {
			logger.Log.Warn("skipping topology csv line: non-integer bandwidth",
				"line", lineNo, "value", bwField)
			continue
		}

		node1, err := domain.ParseNode(n1)
		if err != nil {
			logger.Log.Warn("skipping topology csv line: bad node name", "line", lineNo, "error", err)
			continue
		}
		node2, err := domain.ParseNode(n2)
		if err != nil {
			logger.Log.Warn("skipping topology csv line: bad node name", "line", lineNo, "error", err)
			continue
		}

		nodes[node1.Name] = node1
		nodes[node2.Name] = node2

		key := domain.NewLinkKey(node1.Name, node2.Name)
		if existing, ok := links[key]; ok {
			logger.Log.Warn("duplicate link in topology csv, keeping first", "link", key.String(), "kept_bw", existing.Residual)
			continue
		}
		links[key] = domain.Link{Key: key, Residual: bw}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read topology csv %s: %w", path, err)
	}

	return nodes, links, nil
}

// WriteCSV rewrites a topology CSV file from the given nodes/links, in a
// deterministic order (stable across runs given the same map contents) so
// repeated writes of an unchanged topology produce byte-identical output.
func WriteCSV(path string, nodes map[string]domain.Node, links map[domain.LinkKey]domain.Link) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	keys := make([]domain.LinkKey, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sortLinkKeys(keys)

	w := bufio.NewWriter(f)
	for _, k := range keys {
		link := links[k]
		if _, err := fmt.Fprintf(w, "%s,%s,%d\n", k.U, k.V, link.Residual); err != nil {
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

	return os.Rename(tmp, path)
}

func sortLinkKeys(keys []domain.LinkKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && linkKeyLess(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func linkKeyLess(a, b domain.LinkKey) bool {
	if a.U != b.U {
		return a.U < b.U
	}
	return a.V < b.V
}

// CSVPersister is the Persister implementation backing running_network.csv.
type CSVPersister struct {
	RunningPath string
}

// WriteRunning rewrites running_network.csv with the live residual capacities.
func (p *CSVPersister) WriteRunning(nodes map[string]domain.Node, links map[domain.LinkKey]domain.Link) error {
	return WriteCSV(p.RunningPath, nodes, links)
}

// LoadStore loads initial_topology.csv and running_network.csv (falling back
// to the initial file if running does not yet exist, e.g. first boot) and
// constructs a ready-to-use Store whose initial-capacity snapshot always
// reflects initial_topology.csv regardless of which file seeded the live
// residuals.
func LoadStore(initialPath, runningPath string) (*Store, error) {
	initNodes, initLinks, err := LoadCSV(initialPath)
	if err != nil {
		return nil, err
	}

	runNodes, runLinks := initNodes, initLinks
	if _, statErr := os.Stat(runningPath); statErr == nil {
		runNodes, runLinks, err = LoadCSV(runningPath)
		if err != nil {
			return nil, err
		}
	} else {
		if err := WriteCSV(runningPath, initNodes, initLinks); err != nil {
			return nil, err
		}
	}

	store := New(runNodes, runLinks, &CSVPersister{RunningPath: runningPath})
	// The constructor seeds its "initial" snapshot from the live link set;
	// overwrite it with the true immutable initial capacities for invariant
	// 1 to hold across restarts where running and initial have diverged.
	store.mu.Lock()
	store.initial = make(map[domain.LinkKey]int, len(initLinks))
	for k, l := range initLinks {
		store.initial[k] = l.Residual
	}
	store.mu.Unlock()

	return store, nil
}
