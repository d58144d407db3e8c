package wiretrace

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog/log"
)

// Direction tells which way a traced payload travelled.
type Direction int

const (
	// Outbound - payload written to the peer
	Outbound Direction = iota
	// Inbound - payload read from the peer
	Inbound
)

// String returns a string representation of the direction
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", d)
	}
}

const (
	defaultTTL = 64

	// ipv4HeaderLen - header length without options, the only form we emit
	ipv4HeaderLen = 20
)

// Tracer reconstructs what the kernel puts on the wire for each exchanged
// payload: a synthetic IPv4+TCP segment is serialized in memory and every
// protocol layer is emitted as a structured log event. Nothing the tracer
// builds is ever sent - it is an observation aid only.
type Tracer struct {
	ttl uint8
}

// NewTracer creates a tracer with the default TTL
func NewTracer() *Tracer {
	return &Tracer{ttl: defaultTTL}
}

// TraceSegment serializes a synthetic TCP segment carrying payload between
// src and dst and logs one event per protocol layer. Returns the encoded
// packet length (IPv4 header + TCP header + payload). IPv4 only.
func (t *Tracer) TraceSegment(src, dst *net.TCPAddr, payload []byte, dir Direction) (int, error) {
	encoded, err := t.buildSegment(src, dst, payload)
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("direction", dir.String()).
		Int("bytes", len(payload)).
		Msg("application layer: message payload")

	log.Info().
		Str("direction", dir.String()).
		Int("src_port", src.Port).
		Int("dst_port", dst.Port).
		Str("flags", "PSH,ACK").
		Int("segment_bytes", len(encoded)-ipv4HeaderLen).
		Msg("transport layer: TCP segment")

	log.Info().
		Str("direction", dir.String()).
		Str("src_ip", src.IP.String()).
		Str("dst_ip", dst.IP.String()).
		Uint8("ttl", t.ttl).
		Str("protocol", "TCP(6)").
		Int("packet_bytes", len(encoded)).
		Msg("network layer: IPv4 packet")

	return len(encoded), nil
}

// buildSegment assembles and serializes the synthetic IPv4+TCP segment
func (t *Tracer) buildSegment(src, dst *net.TCPAddr, payload []byte) ([]byte, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("trace requires both endpoint addresses")
	}

	srcIP := src.IP.To4()
	dstIP := dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return nil, fmt.Errorf("only IPv4 addresses are supported")
	}

	ip := &layers.IPv4{
		Version:  4,
		TTL:      t.ttl,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}

	tcp := &layers.TCP{
		SrcPort:    layers.TCPPort(src.Port),
		DstPort:    layers.TCPPort(dst.Port),
		DataOffset: 5,
		PSH:        true,
		ACK:        true,
		Window:     0xFFFF,
	}

	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("failed to set network layer for checksum: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}

	if err := gopacket.SerializeLayers(buffer, opts, ip, tcp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize traced segment: %w", err)
	}

	return buffer.Bytes(), nil
}

// DecodeSegment decodes a serialized IPv4+TCP segment back into its layers.
// Used to verify that traced segments are well-formed.
func DecodeSegment(data []byte) (*layers.IPv4, *layers.TCP, []byte, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, nil, nil, fmt.Errorf("not a valid IPv4 packet")
	}
	ip, _ := ipLayer.(*layers.IPv4)

	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil, nil, nil, fmt.Errorf("not a valid TCP segment")
	}
	tcp, _ := tcpLayer.(*layers.TCP)

	return ip, tcp, tcp.Payload, nil
}
