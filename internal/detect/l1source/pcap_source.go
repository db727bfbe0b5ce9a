package l1source

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// PCAPSource replays Frames recorded as UDP payloads in a PCAP capture file.
// Each payload is treated as one raw image buffer in the layout/size given
// by Config; this mirrors the upstream site's replay rigs (camera traffic
// captured on the wire, replayed offline for deterministic testing) the
// way the teacher's PCAPReader replays recorded LiDAR UDP traffic.
type PCAPSource struct {
	handle   *pcap.Handle
	source   *gopacket.PacketSource
	udpPort  int
	cfg      Config
	sequence uint64
	lastTS   time.Time
}

// OpenPCAP opens file for replay, filtering to UDP traffic on udpPort.
func OpenPCAP(file string, udpPort int, cfg Config) (*PCAPSource, error) {
	handle, err := pcap.OpenOffline(file)
	if err != nil {
		return nil, fmt.Errorf("l1source: open pcap %s: %w", file, err)
	}
	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("l1source: bpf filter %q: %w", filter, err)
	}
	return &PCAPSource{
		handle:  handle,
		source:  gopacket.NewPacketSource(handle, handle.LinkType()),
		udpPort: udpPort,
		cfg:     cfg,
	}, nil
}

// Next returns the next replayed frame. Audio chunks are never produced by
// a PCAPSource; audio replay is out of scope for the capture format.
func (s *PCAPSource) Next() (*Frame, *AudioChunk, error) {
	for packet := range s.source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if !s.lastTS.IsZero() && ts.Before(s.lastTS) {
			ts = s.lastTS.Add(time.Nanosecond)
		}
		s.lastTS = ts
		s.sequence++

		frame := &Frame{
			Timestamp: ts,
			Sequence:  s.sequence,
			Image:     udp.Payload,
			Width:     s.cfg.TargetWidth,
			Height:    s.cfg.TargetHeight,
			Layout:    LayoutRGB,
		}
		return frame, nil, nil
	}
	return nil, nil, io.EOF
}

// Close releases the underlying PCAP handle.
func (s *PCAPSource) Close() error {
	s.handle.Close()
	return nil
}

var _ Source = (*PCAPSource)(nil)
