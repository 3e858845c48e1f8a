package notify

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// sensorRE parses "D:<duty>%,V:<volts>V,I:<current>mA,P:<power>mW",
// case-insensitive on the unit suffixes. Grounded verbatim on constants.py's
// SENSOR_RE.
var sensorRE = regexp.MustCompile(`(?i)^D:(\d+)%,V:([\d.]+)V,I:([\d.]+)mA,P:([\d.]+)mW`)

// nodeIDRE extracts the numeric id from a "NODE<id>" tag.
var nodeIDRE = regexp.MustCompile(`(?i)^NODE(\d+)$`)

// Parser reassembles chunked notification frames and classifies the
// resulting logical messages. Not safe for concurrent use by multiple
// goroutines; pkg/transport delivers frames on a single notification pump,
// so one Parser per Session is sufficient.
type Parser struct {
	buf bytes.Buffer
}

// NewParser creates an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed processes one inbound frame. It returns a Message and true once a
// terminal (non '+'-prefixed) chunk completes a logical message; for
// continuation chunks it returns (Message{}, false) having buffered the
// payload.
func (p *Parser) Feed(frame []byte) (Message, bool) {
	text := string(frame)

	if strings.HasPrefix(text, "+") {
		p.buf.WriteString(text[1:])
		return Message{}, false
	}

	if p.buf.Len() > 0 {
		text = p.buf.String() + text
		p.buf.Reset()
	}

	return classify(text), true
}

// Reset clears any buffered continuation data. Call on disconnect.
func (p *Parser) Reset() {
	p.buf.Reset()
}

func classify(text string) Message {
	switch {
	case strings.Contains(text, ":DATA:"):
		return classifySensor(text)
	case strings.HasPrefix(text, "ERROR:"):
		return Message{Kind: KindError, Raw: text}
	case strings.HasPrefix(text, "TIMEOUT:"):
		return Message{Kind: KindTimeout, Raw: text}
	case strings.HasPrefix(text, "SENT:"):
		return Message{Kind: KindSendComplete, Raw: text}
	case strings.HasPrefix(text, "MESH_READY"):
		return Message{Kind: KindMeshReady, Raw: text}
	default:
		return Message{Kind: KindRaw, Raw: text}
	}
}

func classifySensor(text string) Message {
	parts := strings.SplitN(text, ":DATA:", 2)
	nodeTag, payload := parts[0], parts[1]

	nodeMatch := nodeIDRE.FindStringSubmatch(nodeTag)
	sensorMatch := sensorRE.FindStringSubmatch(payload)
	if nodeMatch == nil || sensorMatch == nil {
		// Classified as a sensor frame but the payload didn't parse —
		// surface it as RawLine with the node tag preserved, never drop it.
		return Message{Kind: KindRaw, Raw: text}
	}

	duty, err := strconv.Atoi(sensorMatch[1])
	if err != nil {
		return Message{Kind: KindRaw, Raw: text}
	}
	voltage, err := strconv.ParseFloat(sensorMatch[2], 64)
	if err != nil {
		return Message{Kind: KindRaw, Raw: text}
	}
	current, err := strconv.ParseFloat(sensorMatch[3], 64)
	if err != nil {
		return Message{Kind: KindRaw, Raw: text}
	}
	power, err := strconv.ParseFloat(sensorMatch[4], 64)
	if err != nil {
		return Message{Kind: KindRaw, Raw: text}
	}

	return Message{
		Kind:   KindSensorReading,
		NodeID: nodeMatch[1],
		Sensor: SensorReading{
			NodeID:  nodeMatch[1],
			Duty:    duty,
			Voltage: voltage,
			Current: current,
			Power:   power,
		},
		Raw: text,
	}
}
