package types

// Role is a node's functional class within the mesh.
type Role string

const (
	RoleClient       Role = "client"
	RoleRouter       Role = "router"
	RoleRouterClient Role = "router-client"
	RoleRepeater     Role = "repeater"
	RoleUnknown      Role = "unknown"
)

// RoleFromCode maps the numeric role carried by nodeinfo payloads to the
// role enumeration. Codes follow the mesh firmware's device role values.
func RoleFromCode(code int) Role {
	switch code {
	case 0, 1:
		return RoleClient
	case 2:
		return RoleRouter
	case 3:
		return RoleRouterClient
	case 4:
		return RoleRepeater
	default:
		return RoleUnknown
	}
}

// Event is the closed set of decoded broker events. Exactly the types in
// this package implement it.
type Event interface {
	sealedEvent()
}

// MessageEvent is one received mesh packet, whatever its application type.
type MessageEvent struct {
	ID             int64
	Topic          string
	From           int64
	To             int64
	PhysicalSender int64
	Timestamp      int64
	RSSI           float64
	SNR            float64
	HopsAway       int64
	Type           string
}

// NodeInfoEvent updates node identity fields. Zero-valued fields mean "not
// carried by this event" and must not overwrite stored values.
type NodeInfoEvent struct {
	NodeID    int64
	LongName  string
	ShortName string
	Hardware  int64
	Role      Role
	Latitude  *float64
	Longitude *float64
	Timestamp int64
}

type Neighbor struct {
	NodeID int64
	SNR    float64
}

// NeighborReportEvent is one node's view of its radio neighbors. Not
// symmetric: the neighbors are not assumed to report back.
type NeighborReportEvent struct {
	Reporter  int64
	Neighbors []Neighbor
	Timestamp int64
}

// TracerouteEvent is an ordered route probe. Consecutive hops define
// directed edges.
type TracerouteEvent struct {
	ID        int64
	Origin    int64
	Route     []int64
	Timestamp int64
}

func (MessageEvent) sealedEvent()        {}
func (NodeInfoEvent) sealedEvent()       {}
func (NeighborReportEvent) sealedEvent() {}
func (TracerouteEvent) sealedEvent()     {}
