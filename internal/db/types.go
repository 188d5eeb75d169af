package db

// Row types mirror the store schema. Timestamps are Unix seconds.

type Message struct {
	ID             int64
	Topic          string
	Sender         int64
	Receiver       int64
	PhysicalSender int64
	Timestamp      int64
	RSSI           float64
	SNR            float64
	HopsAway       int64
	Type           string
}

// Node is upserted, never deleted. Empty LongName/ShortName/Role and zero
// Hardware mean "not provided" and preserve the stored value.
type Node struct {
	ID        int64
	LongName  string
	ShortName string
	Hardware  int64
	Role      string
	LastSeen  int64
	Latitude  *float64
	Longitude *float64
}

type NeighborReport struct {
	NodeID     int64
	NeighborID int64
	SNR        float64
	Timestamp  int64
}

// Traceroute is one route probe; it is stored as per-hop edge rows.
type Traceroute struct {
	PacketID  int64
	Origin    int64
	Route     []int64
	Timestamp int64
}

// TracerouteHop is a stored directed edge of a route, ordered by HopIndex.
type TracerouteHop struct {
	PacketID  int64
	HopIndex  int64
	FromNode  int64
	ToNode    int64
	Timestamp int64
}
