package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meshmap/mesh2graph/internal/types"
)

// ErrMalformed marks payloads that cannot produce any event. The caller
// counts and skips them, the stream keeps going.
var ErrMalformed = errors.New("malformed envelope")

const (
	TypeNodeInfo     = "nodeinfo"
	TypePosition     = "position"
	TypeNeighborInfo = "neighborinfo"
	TypeTraceroute   = "traceroute"
)

// envelope is the JSON gateway frame published by mesh uplink nodes.
type envelope struct {
	ID        int64           `json:"id"`
	From      int64           `json:"from"`
	To        int64           `json:"to"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"timestamp"`
	RSSI      float64         `json:"rssi"`
	SNR       float64         `json:"snr"`
	HopsAway  int64           `json:"hops_away"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type nodeInfoPayload struct {
	LongName   string  `json:"longname"`
	ShortName  string  `json:"shortname"`
	Hardware   int64   `json:"hardware"`
	Role       *int    `json:"role"`
	LatitudeI  float64 `json:"latitude_i"`
	LongitudeI float64 `json:"longitude_i"`
}

type neighborInfoPayload struct {
	NodeID    int64 `json:"node_id"`
	Neighbors []struct {
		NodeID int64   `json:"node_id"`
		SNR    float64 `json:"snr"`
	} `json:"neighbors"`
}

type traceroutePayload struct {
	Route []int64 `json:"route"`
}

type Decoder struct {
	now func() time.Time
}

func New() *Decoder {
	return &Decoder{now: time.Now}
}

// Decode turns one broker payload into typed events. Every decodable
// envelope yields a MessageEvent; nodeinfo, position, neighborinfo and
// traceroute payloads yield one additional event carrying their fields.
func (d *Decoder) Decode(topic string, payload []byte) ([]types.Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.From == 0 {
		return nil, fmt.Errorf("%w: missing sender id", ErrMalformed)
	}
	if env.ID == 0 {
		return nil, fmt.Errorf("%w: missing packet id", ErrMalformed)
	}

	ts := env.Timestamp
	if ts == 0 {
		ts = d.now().Unix()
	}

	msgType := env.Type
	if msgType == "" {
		msgType = "unknown"
	}

	events := []types.Event{types.MessageEvent{
		ID:             env.ID,
		Topic:          topic,
		From:           env.From,
		To:             env.To,
		PhysicalSender: physicalSender(env),
		Timestamp:      ts,
		RSSI:           env.RSSI,
		SNR:            env.SNR,
		HopsAway:       env.HopsAway,
		Type:           msgType,
	}}

	switch env.Type {
	case TypeNodeInfo:
		if ev, ok := decodeNodeInfo(env, ts); ok {
			events = append(events, ev)
		}
	case TypePosition:
		if ev, ok := decodePosition(env, ts); ok {
			events = append(events, ev)
		}
	case TypeNeighborInfo:
		if ev, ok := decodeNeighborInfo(env, ts); ok {
			events = append(events, ev)
		}
	case TypeTraceroute:
		if ev, ok := decodeTraceroute(env, ts); ok {
			events = append(events, ev)
		}
	}

	return events, nil
}

// physicalSender resolves the link-layer sender: the gateway publishes it
// as a "!hex" node id, distinct from the logical originator when relayed.
func physicalSender(env envelope) int64 {
	if id, err := ParseNodeID(env.Sender); err == nil {
		return id
	}
	return env.From
}

// ParseNodeID parses the "!hex" node id notation used on the wire.
func ParseNodeID(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "!")
	if s == "" {
		return 0, fmt.Errorf("empty node id")
	}
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing node id %q: %w", s, err)
	}
	return int64(id), nil
}

func decodeNodeInfo(env envelope, ts int64) (types.Event, bool) {
	var p nodeInfoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, false
	}
	if p.LongName == "" && p.ShortName == "" {
		return nil, false
	}

	ev := types.NodeInfoEvent{
		NodeID:    env.From,
		LongName:  sanitize(p.LongName),
		ShortName: sanitize(p.ShortName),
		Hardware:  p.Hardware,
		Timestamp: ts,
	}
	if p.Role != nil {
		ev.Role = types.RoleFromCode(*p.Role)
	}
	return ev, true
}

func decodePosition(env envelope, ts int64) (types.Event, bool) {
	var p nodeInfoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, false
	}
	if p.LatitudeI == 0 && p.LongitudeI == 0 {
		return nil, false
	}

	lat := p.LatitudeI * 1e-7
	lon := p.LongitudeI * 1e-7
	return types.NodeInfoEvent{
		NodeID:    env.From,
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: ts,
	}, true
}

func decodeNeighborInfo(env envelope, ts int64) (types.Event, bool) {
	var p neighborInfoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, false
	}
	if len(p.Neighbors) == 0 {
		return nil, false
	}

	reporter := p.NodeID
	if reporter == 0 {
		reporter = env.From
	}

	ev := types.NeighborReportEvent{
		Reporter:  reporter,
		Timestamp: ts,
	}
	for _, n := range p.Neighbors {
		if n.NodeID == 0 {
			continue
		}
		ev.Neighbors = append(ev.Neighbors, types.Neighbor{NodeID: n.NodeID, SNR: n.SNR})
	}
	if len(ev.Neighbors) == 0 {
		return nil, false
	}
	return ev, true
}

func decodeTraceroute(env envelope, ts int64) (types.Event, bool) {
	var p traceroutePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, false
	}
	// A route needs at least two hops to define an edge.
	if len(p.Route) < 2 {
		return nil, false
	}

	return types.TracerouteEvent{
		ID:        env.ID,
		Origin:    env.From,
		Route:     p.Route,
		Timestamp: ts,
	}, true
}

// sanitize strips non-ASCII bytes and collapses whitespace in display
// names, which arrive from the radio as arbitrary user input.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
