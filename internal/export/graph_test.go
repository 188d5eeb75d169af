package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/logger"
)

var testNow = time.Date(2025, 6, 10, 12, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, rssiPolicy string) (*Engine, db.Store) {
	t.Helper()

	store, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &configuration.Configuration{}
	cfg.ExportConfiguration.RSSIPolicy = rssiPolicy

	e := NewEngine(store, cfg, logger.GetLogger("[test]", logger.LogLevelError))
	e.now = func() time.Time { return testNow }

	return e, store
}

func insertMessage(t *testing.T, store db.Store, id, sender, receiver int64, ts time.Time, rssi float64) {
	t.Helper()
	require.NoError(t, store.InsertMessage(context.Background(), db.Message{
		ID: id, Sender: sender, Receiver: receiver, PhysicalSender: sender,
		Timestamp: ts.Unix(), RSSI: rssi, Type: "text",
	}))
}

func nodesAndEdges(elements []Element) (map[string]NodeData, map[string]EdgeData) {
	nodes := make(map[string]NodeData)
	edges := make(map[string]EdgeData)
	for _, el := range elements {
		switch data := el.Data.(type) {
		case NodeData:
			nodes[data.ID] = data
		case EdgeData:
			edges[data.ID] = data
		}
	}
	return nodes, edges
}

func TestThreeMessagesOnePair(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)

	for i, offset := range []time.Duration{-30 * time.Minute, -20 * time.Minute, -10 * time.Minute} {
		insertMessage(t, store, int64(i+1), 1111, 2222, testNow.Add(offset), -90)
	}

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	nodes, edges := nodesAndEdges(elements)
	require.Len(t, nodes, 2)
	require.Len(t, edges, 1)

	edge := edges["!457_!8ae"]
	assert.Equal(t, "!457", edge.Source)
	assert.Equal(t, "!8ae", edge.Target)
	assert.Equal(t, 3, edge.Count)

	assert.Equal(t, 1, nodes["!457"].Connections)
	assert.Equal(t, 1, nodes["!8ae"].Connections)
}

func TestTracerouteEdges(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)

	require.NoError(t, store.InsertTraceroute(context.Background(), db.Traceroute{
		PacketID: 1, Origin: 1111, Route: []int64{1111, 2222, 3333},
		Timestamp: testNow.Add(-5 * time.Minute).Unix(),
	}))

	elements, err := e.BuildGraph(context.Background(), ViewTraceroutes, time.Hour)
	require.NoError(t, err)

	nodes, edges := nodesAndEdges(elements)
	assert.Len(t, nodes, 3)
	require.Len(t, edges, 2)
	assert.Equal(t, 1, edges["!457_!8ae"].Count)
	assert.Equal(t, 1, edges["!8ae_!d05"].Count)
	assert.Equal(t, 2, nodes["!8ae"].Connections)
}

func TestConnectionsCountDistinctEdges(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)
	ts := testNow.Add(-5 * time.Minute)

	insertMessage(t, store, 1, 1111, 2222, ts, -90)
	insertMessage(t, store, 2, 2222, 1111, ts, -91)
	insertMessage(t, store, 3, 1111, 3333, ts, -92)
	// Repeat of an existing pair, must not add a new edge.
	insertMessage(t, store, 4, 1111, 2222, ts, -93)

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	nodes, edges := nodesAndEdges(elements)
	assert.Len(t, edges, 3)
	assert.Equal(t, 3, nodes["!457"].Connections)
	assert.Equal(t, 2, nodes["!8ae"].Connections)
	assert.Equal(t, 1, nodes["!d05"].Connections)
}

func TestRSSILatestPolicy(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)

	insertMessage(t, store, 1, 1111, 2222, testNow.Add(-30*time.Minute), -100)
	insertMessage(t, store, 2, 1111, 2222, testNow.Add(-10*time.Minute), -80)
	insertMessage(t, store, 3, 1111, 2222, testNow.Add(-20*time.Minute), -90)

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	_, edges := nodesAndEdges(elements)
	assert.Equal(t, -80.0, edges["!457_!8ae"].RSSI)
}

func TestRSSIMeanPolicy(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyMean)

	insertMessage(t, store, 1, 1111, 2222, testNow.Add(-30*time.Minute), -100)
	insertMessage(t, store, 2, 1111, 2222, testNow.Add(-10*time.Minute), -80)

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	_, edges := nodesAndEdges(elements)
	assert.Equal(t, -90.0, edges["!457_!8ae"].RSSI)
}

func TestWindowExcludesOldEvents(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)

	insertMessage(t, store, 1, 1111, 2222, testNow.Add(-2*time.Hour), -90)
	insertMessage(t, store, 2, 1111, 2222, testNow.Add(-10*time.Minute), -90)

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	_, edges := nodesAndEdges(elements)
	assert.Equal(t, 1, edges["!457_!8ae"].Count)
}

func TestSelfLoopsAndInvalidIDsExcluded(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)
	ts := testNow.Add(-5 * time.Minute)

	insertMessage(t, store, 1, 1111, 1111, ts, -90)       // self loop
	insertMessage(t, store, 2, 1111, 4294967295, ts, -90) // broadcast receiver
	insertMessage(t, store, 3, 1, 2222, ts, -90)          // reserved sender
	insertMessage(t, store, 4, 1111, 2222, ts, -90)       // valid

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	nodes, edges := nodesAndEdges(elements)
	assert.Len(t, nodes, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, 1, edges["!457_!8ae"].Count)
}

func TestPhysicalSendersView(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)

	// Relayed message: logical sender 1111, physically transmitted by 9999.
	require.NoError(t, store.InsertMessage(context.Background(), db.Message{
		ID: 1, Sender: 1111, Receiver: 2222, PhysicalSender: 9999,
		Timestamp: testNow.Add(-5 * time.Minute).Unix(), RSSI: -90, Type: "text",
	}))

	elements, err := e.BuildGraph(context.Background(), ViewPhysicalSenders, time.Hour)
	require.NoError(t, err)

	_, edges := nodesAndEdges(elements)
	require.Len(t, edges, 1)
	assert.Contains(t, edges, "!270f_!8ae")
}

func TestNeighborsView(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)
	ctx := context.Background()

	require.NoError(t, store.InsertNeighborReport(ctx, db.NeighborReport{
		NodeID: 1111, NeighborID: 2222, SNR: 5.5, Timestamp: testNow.Add(-5 * time.Minute).Unix(),
	}))

	elements, err := e.BuildGraph(ctx, ViewNeighbors, time.Hour)
	require.NoError(t, err)

	_, edges := nodesAndEdges(elements)
	require.Len(t, edges, 1)
	// Asymmetric by design: only the reported direction exists.
	assert.Contains(t, edges, "!457_!8ae")
	assert.Equal(t, 5.5, edges["!457_!8ae"].RSSI)
}

func TestNodeLabelsAndRoles(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, db.Node{ID: 1111, ShortName: "HTR1", Role: "router", LastSeen: testNow.Unix()}))
	insertMessage(t, store, 1, 1111, 2222, testNow.Add(-5*time.Minute), -90)

	elements, err := e.BuildGraph(ctx, ViewMessages, time.Hour)
	require.NoError(t, err)

	nodes, _ := nodesAndEdges(elements)
	assert.Equal(t, "HTR1", nodes["!457"].Label)
	assert.Equal(t, "router", nodes["!457"].Role)
	// Never-seen node falls back to hex id and unknown role.
	assert.Equal(t, "!8ae", nodes["!8ae"].Label)
	assert.Equal(t, "unknown", nodes["!8ae"].Role)
}

func TestBuildGraphIsDeterministic(t *testing.T) {
	e, store := newTestEngine(t, configuration.RSSIPolicyLatest)
	ts := testNow.Add(-5 * time.Minute)

	insertMessage(t, store, 1, 3333, 2222, ts, -90)
	insertMessage(t, store, 2, 1111, 3333, ts, -85)
	insertMessage(t, store, 3, 2222, 1111, ts, -80)

	first, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)
	second, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmptyWindowProducesEmptyElements(t *testing.T) {
	e, _ := newTestEngine(t, configuration.RSSIPolicyLatest)

	elements, err := e.BuildGraph(context.Background(), ViewMessages, time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, elements)
	assert.Empty(t, elements)
}

func TestUnknownViewKind(t *testing.T) {
	e, _ := newTestEngine(t, configuration.RSSIPolicyLatest)

	_, err := e.BuildGraph(context.Background(), ViewKind("bogus"), time.Hour)
	assert.Error(t, err)
}
