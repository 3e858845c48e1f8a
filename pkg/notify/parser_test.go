package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — Parser, chunked sensor reading.
func TestParserChunkedSensorReading(t *testing.T) {
	p := NewParser()

	_, ok := p.Feed([]byte("+NODE2:DATA:D:50%,V:12."))
	require.False(t, ok)

	_, ok = p.Feed([]byte("+345V,I:1234.5mA,P:15"))
	require.False(t, ok)

	msg, ok := p.Feed([]byte("234.5mW"))
	require.True(t, ok)

	require.Equal(t, KindSensorReading, msg.Kind)
	assert.Equal(t, "2", msg.NodeID)
	assert.Equal(t, 50, msg.Sensor.Duty)
	assert.InDelta(t, 12.345, msg.Sensor.Voltage, 1e-9)
	assert.InDelta(t, 1234.5, msg.Sensor.Current, 1e-9)
	assert.InDelta(t, 15234.5, msg.Sensor.Power, 1e-9)
}

// Property 5: identity on single-chunk messages.
func TestParserSingleChunkIsIdentity(t *testing.T) {
	p := NewParser()
	msg, ok := p.Feed([]byte("NODE0:DATA:D:50%,V:12.345V,I:1234.5mA,P:15234.5mW"))
	require.True(t, ok)
	assert.Equal(t, KindSensorReading, msg.Kind)
	assert.Equal(t, "0", msg.NodeID)
}

// Property 6: arbitrary chunk partitions reassemble to exactly one message.
func TestParserReassemblyAcrossArbitraryPartitions(t *testing.T) {
	full := "NODE5:DATA:D:75%,V:11.8V,I:900.0mA,P:10620.0mW"

	partitions := [][]string{
		{full},
		{full[:10], full[10:]},
		{full[:1], full[1:20], full[20:]},
		{full[:5], full[5:15], full[15:30], full[30:]},
	}

	for _, parts := range partitions {
		p := NewParser()
		var last Message
		var emitted bool
		for i, part := range parts {
			chunk := part
			if i < len(parts)-1 {
				chunk = "+" + part
			}
			msg, ok := p.Feed([]byte(chunk))
			if i < len(parts)-1 {
				assert.False(t, ok)
				continue
			}
			emitted = ok
			last = msg
		}
		require.True(t, emitted)
		assert.Equal(t, KindSensorReading, last.Kind)
		assert.Equal(t, "5", last.NodeID)
		assert.Equal(t, 75, last.Sensor.Duty)
	}
}

func TestParserResetClearsBuffer(t *testing.T) {
	p := NewParser()
	_, ok := p.Feed([]byte("+NODE1:DATA:D:10%,V:5."))
	require.False(t, ok)

	p.Reset()

	msg, ok := p.Feed([]byte("NODE2:DATA:D:20%,V:6.0V,I:100.0mA,P:600.0mW"))
	require.True(t, ok)
	assert.Equal(t, "2", msg.NodeID)
	assert.Equal(t, 20, msg.Sensor.Duty)
}

func TestParserClassifiesErrorTimeoutSentMeshReady(t *testing.T) {
	p := NewParser()

	tests := []struct {
		frame string
		kind  Kind
	}{
		{"ERROR: mesh send failed", KindError},
		{"TIMEOUT: node 3 no response", KindTimeout},
		{"SENT: 3:READ", KindSendComplete},
		{"MESH_READY 7 nodes", KindMeshReady},
		{"some unrecognized line", KindRaw},
	}

	for _, tt := range tests {
		msg, ok := p.Feed([]byte(tt.frame))
		require.True(t, ok)
		assert.Equal(t, tt.kind, msg.Kind, "frame %q", tt.frame)
		assert.Equal(t, tt.frame, msg.Raw)
	}
}

func TestParserUnparsableSensorPayloadSurfacesAsRawWithNodeTag(t *testing.T) {
	p := NewParser()
	msg, ok := p.Feed([]byte("NODE3:DATA:garbled-payload"))
	require.True(t, ok)
	assert.Equal(t, KindRaw, msg.Kind)
	assert.Equal(t, "NODE3:DATA:garbled-payload", msg.Raw)
}

func TestParserSensorUnitsCaseInsensitive(t *testing.T) {
	p := NewParser()
	msg, ok := p.Feed([]byte("NODE4:DATA:D:10%,v:1.0V,i:1.0MA,p:1.0MW"))
	require.True(t, ok)
	assert.Equal(t, KindSensorReading, msg.Kind)
	assert.Equal(t, "4", msg.NodeID)
}
