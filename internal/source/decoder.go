package source

import (
	"strings"
	"time"

	"netwatch/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Decoder turns decoded gopacket packets into packet descriptors
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode builds a descriptor for one packet. It never returns nil; packets
// without an IP layer come back with HasNetwork unset.
func (d *Decoder) Decode(packet gopacket.Packet) *model.PacketDescriptor {
	pkt := &model.PacketDescriptor{
		Timestamp: time.Now(),
		Length:    len(packet.Data()),
	}

	if md := packet.Metadata(); md != nil {
		if !md.Timestamp.IsZero() {
			pkt.Timestamp = md.Timestamp
		}
		if md.Length > 0 {
			pkt.Length = md.Length
		}
	}

	d.parseNetworkLayer(packet, pkt)
	d.parseTransportLayer(packet, pkt)
	d.parseDNS(packet, pkt)

	return pkt
}

// parseNetworkLayer fills addresses from the IPv4 or IPv6 layer
func (d *Decoder) parseNetworkLayer(packet gopacket.Packet, pkt *model.PacketDescriptor) {
	switch {
	case packet.Layer(layers.LayerTypeIPv4) != nil:
		ip, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		pkt.HasNetwork = true
		pkt.SrcIP = ip.SrcIP.String()
		pkt.DstIP = ip.DstIP.String()
	case packet.Layer(layers.LayerTypeIPv6) != nil:
		ip, _ := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		pkt.HasNetwork = true
		pkt.SrcIP = ip.SrcIP.String()
		pkt.DstIP = ip.DstIP.String()
	}
}

// parseTransportLayer fills ports and payload from TCP or UDP
func (d *Decoder) parseTransportLayer(packet gopacket.Packet, pkt *model.PacketDescriptor) {
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		pkt.Transport = model.Transport_TCP
		pkt.SrcPort = model.Port(uint16(tcp.SrcPort))
		pkt.DstPort = model.Port(uint16(tcp.DstPort))
		pkt.Payload = tcp.Payload
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		pkt.Transport = model.Transport_UDP
		pkt.SrcPort = model.Port(uint16(udp.SrcPort))
		pkt.DstPort = model.Port(uint16(udp.DstPort))
		pkt.Payload = udp.Payload
	} else if app := packet.ApplicationLayer(); app != nil {
		pkt.Payload = app.Payload()
	}
}

// parseDNS records the first question name of a DNS message
func (d *Decoder) parseDNS(packet gopacket.Packet, pkt *model.PacketDescriptor) {
	dnsLayer := packet.Layer(layers.LayerTypeDNS)
	if dnsLayer == nil {
		return
	}
	dns, _ := dnsLayer.(*layers.DNS)
	if dns == nil || len(dns.Questions) == 0 {
		return
	}
	pkt.Domain = strings.TrimSuffix(string(dns.Questions[0].Name), ".")
}
