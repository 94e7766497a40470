package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayStats summarises one capture replay.
type ReplayStats struct {
	Packets  int `json:"packets"`
	Matched  int `json:"matched"`
	Applied  int `json:"applied"`
	Rejected int `json:"rejected"`
}

// PacketHandler is called for every UDP payload with its capture timestamp,
// before the payload is routed.
type PacketHandler func(payload []byte, ts time.Time)

// ReplayPCAP reads a classic pcap stream and routes the payload of every UDP
// datagram addressed to port (0 matches any port). before, when non-nil, runs
// ahead of routing so callers can drive a clock from capture time.
func ReplayPCAP(ctx context.Context, src io.Reader, port int, r *Router, before PacketHandler) (ReplayStats, error) {
	var stats ReplayStats

	reader, err := pcapgo.NewReader(src)
	if err != nil {
		return stats, fmt.Errorf("failed to open capture: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		packet, err := source.NextPacket()
		if err == io.EOF {
			log.Printf("[gateway] capture replay complete: %d packets, %d applied", stats.Packets, stats.Applied)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if port != 0 && int(udp.DstPort) != port {
			continue
		}
		stats.Matched++

		if before != nil {
			before(udp.Payload, packet.Metadata().Timestamp)
		}
		if err := r.HandleMessage(udp.Payload); err != nil {
			stats.Rejected++
			logMessageError(fmt.Sprintf("pcap packet %d", stats.Packets), err)
			continue
		}
		stats.Applied++
	}
}

// WritePCAP writes payloads as Ethernet/IPv4/UDP frames to port, one per
// timestamp. It produces captures ReplayPCAP can read, for fixtures and for
// recording a live session.
func WritePCAP(w io.Writer, port int, payloads [][]byte, times []time.Time) error {
	if len(payloads) != len(times) {
		return fmt.Errorf("have %d payloads but %d timestamps", len(payloads), len(times))
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(maxDatagram, layers.LinkTypeEthernet); err != nil {
		return err
	}

	eth := &layers.Ethernet{
		SrcMAC:       []byte{0x02, 0, 0, 0, 0, 1},
		DstMAC:       []byte{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{127, 0, 0, 1},
		DstIP:    []byte{127, 0, 0, 1},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(port), DstPort: layers.UDPPort(port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	for i, payload := range payloads {
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return fmt.Errorf("serialize packet %d: %w", i, err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: times[i], CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("write packet %d: %w", i, err)
		}
	}
	return nil
}
