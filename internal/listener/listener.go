package listener

import (
	"context"

	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/decoder"
	"github.com/meshmap/mesh2graph/internal/logger"
	"github.com/meshmap/mesh2graph/internal/metrics"
	"github.com/meshmap/mesh2graph/internal/types"
)

// Listener turns raw broker payloads into store rows. Every failure is
// contained: a bad payload or a dead store write is counted and the stream
// moves on.
type Listener struct {
	store   db.Store
	decoder *decoder.Decoder
	metrics *metrics.Metrics
	log     logger.Logger
}

func New(store db.Store, dec *decoder.Decoder, m *metrics.Metrics, log logger.Logger) *Listener {
	return &Listener{
		store:   store,
		decoder: dec,
		metrics: m,
		log:     log,
	}
}

// HandleRaw is the broker message callback.
func (l *Listener) HandleRaw(ctx context.Context, topic string, payload []byte) {
	l.metrics.MessagesReceived.Inc()

	events, err := l.decoder.Decode(topic, payload)
	if err != nil {
		l.metrics.DecodeErrors.Inc()
		l.log.Debug("skipping payload on %v: %v", topic, err)
		return
	}

	for _, ev := range events {
		if err := l.storeEvent(ctx, ev); err != nil {
			l.metrics.DroppedEvents.Inc()
			l.log.Error("event dropped: %v", err)
		}
	}
}

func (l *Listener) storeEvent(ctx context.Context, ev types.Event) error {
	switch e := ev.(type) {
	case types.MessageEvent:
		if err := l.store.InsertMessage(ctx, db.Message{
			ID:             e.ID,
			Topic:          e.Topic,
			Sender:         e.From,
			Receiver:       e.To,
			PhysicalSender: e.PhysicalSender,
			Timestamp:      e.Timestamp,
			RSSI:           e.RSSI,
			SNR:            e.SNR,
			HopsAway:       e.HopsAway,
			Type:           e.Type,
		}); err != nil {
			return err
		}
		l.metrics.StoredEvents.WithLabelValues("message").Inc()

		l.touchNode(ctx, e.From, e.Timestamp)
		if e.PhysicalSender != e.From {
			l.touchNode(ctx, e.PhysicalSender, e.Timestamp)
		}

	case types.NodeInfoEvent:
		if err := l.store.UpsertNode(ctx, db.Node{
			ID:        e.NodeID,
			LongName:  e.LongName,
			ShortName: e.ShortName,
			Hardware:  e.Hardware,
			Role:      string(e.Role),
			LastSeen:  e.Timestamp,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		}); err != nil {
			return err
		}
		l.metrics.StoredEvents.WithLabelValues("nodeinfo").Inc()

	case types.NeighborReportEvent:
		for _, n := range e.Neighbors {
			if err := l.store.InsertNeighborReport(ctx, db.NeighborReport{
				NodeID:     e.Reporter,
				NeighborID: n.NodeID,
				SNR:        n.SNR,
				Timestamp:  e.Timestamp,
			}); err != nil {
				return err
			}
			l.touchNode(ctx, n.NodeID, e.Timestamp)
		}
		l.metrics.StoredEvents.WithLabelValues("neighbors").Inc()

		l.touchNode(ctx, e.Reporter, e.Timestamp)

	case types.TracerouteEvent:
		if err := l.store.InsertTraceroute(ctx, db.Traceroute{
			PacketID:  e.ID,
			Origin:    e.Origin,
			Route:     e.Route,
			Timestamp: e.Timestamp,
		}); err != nil {
			return err
		}
		l.metrics.StoredEvents.WithLabelValues("traceroute").Inc()

		for _, hop := range e.Route {
			l.touchNode(ctx, hop, e.Timestamp)
		}
	}

	return nil
}

// touchNode bumps a node's last_seen. Best effort: a failed touch is not a
// lost event, the node row will be refreshed by the next sighting.
func (l *Listener) touchNode(ctx context.Context, nodeID, ts int64) {
	if nodeID == 0 {
		return
	}
	if err := l.store.UpsertNode(ctx, db.Node{ID: nodeID, LastSeen: ts}); err != nil {
		l.log.Debug("touching node %v: %v", nodeID, err)
	}
}
