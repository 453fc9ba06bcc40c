package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
)

// MapFile is the on-disk shape of the warehouse graph.
type MapFile struct {
	Nodes []struct {
		ID int     `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	} `json:"nodes"`
	Edges []struct {
		From int     `json:"from"`
		To   int     `json:"to"`
		Cost float64 `json:"cost"`
	} `json:"edges"`
}

// LoadMap builds the graph from the map file. Fails when an edge
// references a missing node.
func LoadMap(path string) (*core.Graph, error) {
	var file MapFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}
	g := core.NewGraph()
	for _, n := range file.Nodes {
		g.AddNode(core.NodeID(n.ID), n.X, n.Y)
	}
	for _, e := range file.Edges {
		if err := g.AddEdge(core.NodeID(e.From), core.NodeID(e.To), e.Cost); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return g, nil
}

// RobotSpec is one robot from the robots file.
type RobotSpec struct {
	ID   core.RobotID
	Name string
	Home core.NodeID
}

type robotsFile struct {
	Robots map[string]struct {
		Name     string `json:"name"`
		HomeNode int    `json:"home_node"`
	} `json:"robots"`
}

// LoadRobots reads the fleet roster, ordered by robot id.
func LoadRobots(path string) ([]RobotSpec, error) {
	var file robotsFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}
	specs := make([]RobotSpec, 0, len(file.Robots))
	for key, r := range file.Robots {
		rid, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%s: robot id %q is not a number", path, key)
		}
		specs = append(specs, RobotSpec{ID: core.RobotID(rid), Name: r.Name, Home: core.NodeID(r.HomeNode)})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, nil
}

// ShelfSpec is one shelf from the shelves file. The node it parks on
// doubles as its id.
type ShelfSpec struct {
	Node  core.NodeID
	Label string
	Items []string
}

type shelvesFile struct {
	Shelves map[string]struct {
		Label string   `json:"label"`
		Items []string `json:"items"`
	} `json:"shelves"`
	Workstations map[string]json.RawMessage `json:"workstations"`
}

// LoadShelves reads the shelf inventory and the pick-station nodes,
// both ordered by node id.
func LoadShelves(path string) ([]ShelfSpec, []core.NodeID, error) {
	var file shelvesFile
	if err := readJSON(path, &file); err != nil {
		return nil, nil, err
	}
	shelves := make([]ShelfSpec, 0, len(file.Shelves))
	for key, s := range file.Shelves {
		node, err := strconv.Atoi(key)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: shelf node %q is not a number", path, key)
		}
		shelves = append(shelves, ShelfSpec{Node: core.NodeID(node), Label: s.Label, Items: s.Items})
	}
	sort.Slice(shelves, func(i, j int) bool { return shelves[i].Node < shelves[j].Node })

	stations := make([]core.NodeID, 0, len(file.Workstations))
	for key := range file.Workstations {
		node, err := strconv.Atoi(key)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: workstation node %q is not a number", path, key)
		}
		stations = append(stations, core.NodeID(node))
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i] < stations[j] })
	return shelves, stations, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
