package source

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"netwatch/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("SerializeLayers() error = %v", err)
	}
	return buf.Bytes()
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: ethType,
	}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(203, 0, 113, 66),
	}
}

func tcpFrame(t *testing.T, payload string) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, PSH: true, ACK: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

func dnsFrame(t *testing.T, name string) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 53000, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)
	dns := &layers.DNS{
		ID:      1,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{
			{Name: []byte(name), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, dns)
}

func decode(data []byte) gopacket.Packet {
	return gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
}

func TestDecodeTCP(t *testing.T) {
	data := tcpFrame(t, "GET /evil HTTP/1.1")
	pkt := NewDecoder().Decode(decode(data))

	if !pkt.HasNetwork || pkt.SrcIP != "10.0.0.1" || pkt.DstIP != "203.0.113.66" {
		t.Errorf("network = %+v", pkt)
	}
	if pkt.Transport != model.Transport_TCP || *pkt.SrcPort != 40000 || *pkt.DstPort != 80 {
		t.Errorf("transport = %v %v %v", pkt.Transport, *pkt.SrcPort, *pkt.DstPort)
	}
	if string(pkt.Payload) != "GET /evil HTTP/1.1" {
		t.Errorf("payload = %q", pkt.Payload)
	}
	if pkt.Length != len(data) {
		t.Errorf("length = %d, want %d", pkt.Length, len(data))
	}
}

func TestDecodeDNS(t *testing.T) {
	pkt := NewDecoder().Decode(decode(dnsFrame(t, "Evil.Example")))

	if pkt.Transport != model.Transport_UDP || *pkt.DstPort != 53 {
		t.Errorf("transport = %v", pkt.Transport)
	}
	if pkt.Domain != "Evil.Example" {
		t.Errorf("domain = %q", pkt.Domain)
	}
}

func TestDecodeWithoutNetworkLayer(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	pkt := NewDecoder().Decode(decode(serialize(t, ethernet(layers.EthernetTypeARP), arp)))

	if pkt.HasNetwork || pkt.SrcPort != nil || pkt.Transport != model.Transport_OTHER {
		t.Errorf("ARP frame = %+v", pkt)
	}
}

type sliceSink struct {
	pkts []*model.PacketDescriptor
}

func (s *sliceSink) Enqueue(ctx context.Context, pkt *model.PacketDescriptor) error {
	s.pkts = append(s.pkts, pkt)
	return nil
}

func TestReplay(t *testing.T) {
	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range [][]byte{tcpFrame(t, "one"), dnsFrame(t, "example.org"), tcpFrame(t, "three")} {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			t.Fatal(err)
		}
	}

	sink := &sliceSink{}
	n, err := NewPcapReplay("", testLogger()).Replay(context.Background(), &capture, sink)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 3 || len(sink.pkts) != 3 {
		t.Fatalf("replayed %d packets, sink has %d", n, len(sink.pkts))
	}
	if !sink.pkts[1].Timestamp.Equal(ts.Add(time.Second)) {
		t.Errorf("timestamp = %v", sink.pkts[1].Timestamp)
	}
	if string(sink.pkts[2].Payload) != "three" || sink.pkts[1].Domain != "example.org" {
		t.Errorf("packets = %+v", sink.pkts)
	}
}

func TestReplayRejectsGarbage(t *testing.T) {
	_, err := NewPcapReplay("", testLogger()).Replay(context.Background(), bytes.NewReader([]byte("not a pcap")), &sliceSink{})
	if err == nil {
		t.Error("expected header error")
	}
}

func TestRunMissingFile(t *testing.T) {
	err := NewPcapReplay(t.TempDir()+"/missing.pcap", testLogger()).Run(context.Background(), &sliceSink{})
	if err == nil {
		t.Error("expected open error")
	}
}
