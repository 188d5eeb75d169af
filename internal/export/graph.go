package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/logger"
)

type ViewKind string

const (
	ViewMessages        ViewKind = "messages"
	ViewPhysicalSenders ViewKind = "physical"
	ViewNeighbors       ViewKind = "neighbors"
	ViewTraceroutes     ViewKind = "traceroutes"
)

// Node ids outside these bounds are the broadcast and reserved addresses;
// they never appear in a graph.
const (
	minValidNodeID = 2
	maxValidNodeID = 0xFFFFFFFE
)

// Graph snapshot element schema, consumed by the browser visualization.

type NodeData struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Connections int    `json:"connections"`
	Role        string `json:"role"`
}

type EdgeData struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	RSSI   float64 `json:"rssi"`
	Count  int     `json:"count"`
}

type Element struct {
	Data interface{} `json:"data"`
}

// Engine reads a time window from the store and derives artifacts. It runs
// one bounded pass per invocation and holds no state between calls.
type Engine struct {
	store      db.Store
	rssiPolicy string
	log        logger.Logger

	now func() time.Time
}

func NewEngine(store db.Store, cfg *configuration.Configuration, log logger.Logger) *Engine {
	return &Engine{
		store:      store,
		rssiPolicy: cfg.ExportConfiguration.RSSIPolicy,
		log:        log,
		now:        time.Now,
	}
}

// observation is one directed event contributing to an edge.
type observation struct {
	source    int64
	target    int64
	signal    float64
	timestamp int64
}

// BuildGraph derives the node/edge snapshot for one view over
// [now-window, now]. An empty window yields a valid empty element slice.
func (e *Engine) BuildGraph(ctx context.Context, view ViewKind, window time.Duration) ([]Element, error) {
	end := e.now().Unix()
	start := e.now().Add(-window).Unix()

	obs, err := e.collect(ctx, view, start, end)
	if err != nil {
		return nil, err
	}

	nodes, err := e.store.GetNodes(ctx)
	if err != nil {
		return nil, err
	}

	return buildElements(obs, nodes, e.rssiPolicy), nil
}

func (e *Engine) collect(ctx context.Context, view ViewKind, start, end int64) ([]observation, error) {
	switch view {
	case ViewMessages, ViewPhysicalSenders:
		msgs, err := e.store.QueryMessages(ctx, start, end)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, 0, len(msgs))
		for _, m := range msgs {
			source := m.Sender
			if view == ViewPhysicalSenders {
				source = m.PhysicalSender
			}
			obs = append(obs, observation{source: source, target: m.Receiver, signal: m.RSSI, timestamp: m.Timestamp})
		}
		return obs, nil

	case ViewNeighbors:
		reports, err := e.store.QueryNeighborReports(ctx, start, end)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, 0, len(reports))
		for _, r := range reports {
			obs = append(obs, observation{source: r.NodeID, target: r.NeighborID, signal: r.SNR, timestamp: r.Timestamp})
		}
		return obs, nil

	case ViewTraceroutes:
		hops, err := e.store.QueryTracerouteHops(ctx, start, end)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, 0, len(hops))
		for _, h := range hops {
			obs = append(obs, observation{source: h.FromNode, target: h.ToNode, timestamp: h.Timestamp})
		}
		return obs, nil

	default:
		return nil, fmt.Errorf("unknown view kind %q", view)
	}
}

type edgeKey struct {
	source int64
	target int64
}

type edgeAgg struct {
	count     int
	latest    float64
	latestTS  int64
	signalSum float64
}

func buildElements(obs []observation, nodes map[int64]db.Node, rssiPolicy string) []Element {
	edges := make(map[edgeKey]*edgeAgg)
	for _, o := range obs {
		if !validNodeID(o.source) || !validNodeID(o.target) {
			continue
		}
		if o.source == o.target {
			continue
		}

		key := edgeKey{source: o.source, target: o.target}
		agg, ok := edges[key]
		if !ok {
			agg = &edgeAgg{}
			edges[key] = agg
		}

		agg.count++
		agg.signalSum += o.signal
		if agg.count == 1 || o.timestamp >= agg.latestTS {
			agg.latest = o.signal
			agg.latestTS = o.timestamp
		}
	}

	// Connections per node: number of distinct edges touching it, in
	// either direction.
	connections := make(map[int64]int)
	for key := range edges {
		connections[key.source]++
		connections[key.target]++
	}

	nodeIDs := make([]int64, 0, len(connections))
	for id := range connections {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	keys := make([]edgeKey, 0, len(edges))
	for key := range edges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].target < keys[j].target
	})

	elements := make([]Element, 0, len(nodeIDs)+len(keys))
	for _, id := range nodeIDs {
		elements = append(elements, Element{Data: NodeData{
			ID:          hexID(id),
			Label:       nodeLabel(id, nodes),
			Connections: connections[id],
			Role:        nodeRole(id, nodes),
		}})
	}
	for _, key := range keys {
		agg := edges[key]

		signal := agg.latest
		if rssiPolicy == configuration.RSSIPolicyMean {
			signal = agg.signalSum / float64(agg.count)
		}

		elements = append(elements, Element{Data: EdgeData{
			ID:     fmt.Sprintf("%v_%v", hexID(key.source), hexID(key.target)),
			Source: hexID(key.source),
			Target: hexID(key.target),
			RSSI:   signal,
			Count:  agg.count,
		}})
	}

	return elements
}

func validNodeID(id int64) bool {
	return id >= minValidNodeID && id <= maxValidNodeID
}

func hexID(id int64) string {
	return fmt.Sprintf("!%x", uint32(id))
}

func nodeLabel(id int64, nodes map[int64]db.Node) string {
	if n, ok := nodes[id]; ok && n.ShortName != "" {
		return n.ShortName
	}
	return hexID(id)
}

func nodeRole(id int64, nodes map[int64]db.Node) string {
	if n, ok := nodes[id]; ok && n.Role != "" {
		return n.Role
	}
	return "unknown"
}
