// Package main generates a warehouse layout: the map, fleet roster,
// and shelf inventory JSON files the server loads at startup.
// Deterministic for a given seed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type mapFile struct {
	Nodes []mapNode `json:"nodes"`
	Edges []mapEdge `json:"edges"`
}

type mapNode struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type mapEdge struct {
	From int     `json:"from"`
	To   int     `json:"to"`
	Cost float64 `json:"cost"`
}

type robotEntry struct {
	Name     string `json:"name"`
	HomeNode int    `json:"home_node"`
}

type shelfEntry struct {
	Label string   `json:"label"`
	Items []string `json:"items"`
}

type shelvesFile struct {
	Shelves      map[string]shelfEntry `json:"shelves"`
	Workstations map[string]struct{}   `json:"workstations"`
}

func main() {
	width := flag.Int("width", 9, "grid width")
	height := flag.Int("height", 6, "grid height")
	robots := flag.Int("robots", 2, "fleet size")
	shelves := flag.Int("shelves", 4, "number of shelves")
	items := flag.Int("items", 3, "items per shelf")
	stations := flag.String("stations", "50,51", "workstation node ids, comma separated")
	seed := flag.Int64("seed", 42, "random seed")
	out := flag.String("out", "config", "output directory")
	flag.Parse()

	if err := generate(*width, *height, *robots, *shelves, *items, *stations, *seed, *out); err != nil {
		fmt.Fprintln(os.Stderr, "genlayout:", err)
		os.Exit(1)
	}
}

func generate(width, height, robots, shelves, itemsPer int, stationList string, seed int64, out string) error {
	total := width * height
	stationNodes, err := parseStations(stationList, total)
	if err != nil {
		return err
	}
	if robots+shelves+len(stationNodes) > total {
		return fmt.Errorf("%d robots + %d shelves + %d stations do not fit on %d nodes",
			robots, shelves, len(stationNodes), total)
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))

	// Grid map: row-major ids from 1, unit edge costs. Edges are
	// directed in the map file, so both directions are written.
	m := mapFile{}
	for id := 1; id <= total; id++ {
		m.Nodes = append(m.Nodes, mapNode{ID: id, X: float64((id - 1) % width), Y: float64((id - 1) / width)})
	}
	for id := 1; id <= total; id++ {
		if (id-1)%width < width-1 {
			m.Edges = append(m.Edges,
				mapEdge{From: id, To: id + 1, Cost: 1},
				mapEdge{From: id + 1, To: id, Cost: 1})
		}
		if (id-1)/width < height-1 {
			m.Edges = append(m.Edges,
				mapEdge{From: id, To: id + width, Cost: 1},
				mapEdge{From: id + width, To: id, Cost: 1})
		}
	}

	// Robots park along the first row, shelves go on random free nodes.
	taken := make(map[int]bool)
	for _, s := range stationNodes {
		taken[s] = true
	}
	roster := make(map[string]robotEntry, robots)
	for i := 1; i <= robots; i++ {
		roster[strconv.Itoa(i)] = robotEntry{Name: fmt.Sprintf("agv-%d", i), HomeNode: i}
		taken[i] = true
	}

	shelfNodes := make([]int, 0, shelves)
	for len(shelfNodes) < shelves {
		n := rng.Intn(total) + 1
		if taken[n] {
			continue
		}
		taken[n] = true
		shelfNodes = append(shelfNodes, n)
	}
	sort.Ints(shelfNodes)

	inventory := shelvesFile{
		Shelves:      make(map[string]shelfEntry, shelves),
		Workstations: make(map[string]struct{}, len(stationNodes)),
	}
	item := 0
	for _, n := range shelfNodes {
		entry := shelfEntry{Label: fmt.Sprintf("S%d", n)}
		for k := 0; k < itemsPer; k++ {
			entry.Items = append(entry.Items, itemName(item))
			item++
		}
		inventory.Shelves[strconv.Itoa(n)] = entry
	}
	for _, s := range stationNodes {
		inventory.Workstations[strconv.Itoa(s)] = struct{}{}
	}

	if err := writeJSON(filepath.Join(out, "map.json"), m); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(out, "robots.json"), map[string]any{"robots": roster}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(out, "shelves.json"), inventory); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %dx%d grid, %d robots, %d shelves, stations %v\n",
		out, width, height, robots, shelves, stationNodes)
	return nil
}

func parseStations(list string, total int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("station %q is not a node id", part)
		}
		if n < 1 || n > total {
			return nil, fmt.Errorf("station %d outside the grid (1..%d)", n, total)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no workstations given")
	}
	sort.Ints(out)
	return out, nil
}

// itemName yields A, B, ..., Z, AA, AB, ... like spreadsheet columns.
func itemName(i int) string {
	name := ""
	for {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
		if i < 0 {
			return name
		}
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
