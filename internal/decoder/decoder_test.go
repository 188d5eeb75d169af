package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshmap/mesh2graph/internal/types"
)

func newTestDecoder() *Decoder {
	d := New()
	d.now = func() time.Time { return time.Unix(1700000000, 0) }
	return d
}

func TestDecodeTextMessage(t *testing.T) {
	d := newTestDecoder()

	payload := `{"id":101,"from":1111,"to":2222,"sender":"!457","timestamp":1699999000,
		"rssi":-88,"snr":6.25,"hops_away":1,"type":"text","payload":{"text":"hi"}}`

	events, err := d.Decode("msh/EU_868/2/json/LongFast/!457", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 1)

	msg, ok := events[0].(types.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, int64(101), msg.ID)
	assert.Equal(t, int64(1111), msg.From)
	assert.Equal(t, int64(2222), msg.To)
	assert.Equal(t, int64(0x457), msg.PhysicalSender)
	assert.Equal(t, int64(1699999000), msg.Timestamp)
	assert.Equal(t, -88.0, msg.RSSI)
	assert.Equal(t, 6.25, msg.SNR)
	assert.Equal(t, "text", msg.Type)
}

func TestDecodeMissingTimestampUsesNow(t *testing.T) {
	d := newTestDecoder()

	events, err := d.Decode("t", []byte(`{"id":5,"from":9,"type":"telemetry"}`))
	require.NoError(t, err)

	msg := events[0].(types.MessageEvent)
	assert.Equal(t, int64(1700000000), msg.Timestamp)
	// No physical sender on the wire, falls back to the logical sender.
	assert.Equal(t, int64(9), msg.PhysicalSender)
}

func TestDecodeNodeInfo(t *testing.T) {
	d := newTestDecoder()

	payload := `{"id":7,"from":1111,"type":"nodeinfo","timestamp":1699999000,
		"payload":{"longname":"Hilltop  Router","shortname":"HTR1","hardware":43,"role":2}}`

	events, err := d.Decode("t", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	info, ok := events[1].(types.NodeInfoEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1111), info.NodeID)
	assert.Equal(t, "Hilltop Router", info.LongName)
	assert.Equal(t, "HTR1", info.ShortName)
	assert.Equal(t, types.RoleRouter, info.Role)
	assert.Nil(t, info.Latitude)
}

func TestDecodeNodeInfoWithoutNamesIsMessageOnly(t *testing.T) {
	d := newTestDecoder()

	events, err := d.Decode("t", []byte(`{"id":7,"from":1,"type":"nodeinfo","payload":{}}`))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDecodePosition(t *testing.T) {
	d := newTestDecoder()

	payload := `{"id":8,"from":1111,"type":"position","timestamp":1699999000,
		"payload":{"latitude_i":520000000,"longitude_i":48000000}}`

	events, err := d.Decode("t", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	info := events[1].(types.NodeInfoEvent)
	require.NotNil(t, info.Latitude)
	assert.InDelta(t, 52.0, *info.Latitude, 1e-9)
	assert.InDelta(t, 4.8, *info.Longitude, 1e-9)
	assert.Empty(t, info.LongName)
}

func TestDecodeNeighborInfo(t *testing.T) {
	d := newTestDecoder()

	payload := `{"id":9,"from":1111,"type":"neighborinfo","timestamp":1699999000,
		"payload":{"node_id":1111,"neighbors":[{"node_id":2222,"snr":5.5},{"node_id":3333,"snr":-2.0},{"node_id":0}]}}`

	events, err := d.Decode("t", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	report := events[1].(types.NeighborReportEvent)
	assert.Equal(t, int64(1111), report.Reporter)
	require.Len(t, report.Neighbors, 2)
	assert.Equal(t, int64(2222), report.Neighbors[0].NodeID)
	assert.Equal(t, 5.5, report.Neighbors[0].SNR)
}

func TestDecodeTraceroute(t *testing.T) {
	d := newTestDecoder()

	payload := `{"id":10,"from":1111,"type":"traceroute","timestamp":1699999000,
		"payload":{"route":[1111,2222,3333]}}`

	events, err := d.Decode("t", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	tr := events[1].(types.TracerouteEvent)
	assert.Equal(t, int64(10), tr.ID)
	assert.Equal(t, int64(1111), tr.Origin)
	assert.Equal(t, []int64{1111, 2222, 3333}, tr.Route)
}

func TestDecodeTracerouteSingleHopIsMessageOnly(t *testing.T) {
	d := newTestDecoder()

	events, err := d.Decode("t", []byte(`{"id":10,"from":1,"type":"traceroute","payload":{"route":[1]}}`))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDecodeMalformed(t *testing.T) {
	d := newTestDecoder()

	testCases := []struct {
		name    string
		payload string
	}{
		{"not json", "not json at all"},
		{"missing from", `{"id":1,"type":"text"}`},
		{"missing id", `{"from":1,"type":"text"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode("t", []byte(tc.payload))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseNodeID(t *testing.T) {
	id, err := ParseNodeID("!abcd1234")
	require.NoError(t, err)
	assert.Equal(t, int64(0xabcd1234), id)

	_, err = ParseNodeID("")
	assert.Error(t, err)

	_, err = ParseNodeID("!xyz")
	assert.Error(t, err)
}
