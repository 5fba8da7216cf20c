package model

import (
	"time"
)

// PacketDescriptor is the normalized view of one observed packet handed to the detection core
type PacketDescriptor struct {
	Timestamp  time.Time `json:"timestamp"`
	HasNetwork bool      `json:"has_network"`
	SrcIP      string    `json:"src_ip,omitempty"`
	DstIP      string    `json:"dst_ip,omitempty"`
	Transport  Transport `json:"transport"`
	SrcPort    *uint16   `json:"src_port,omitempty"`
	DstPort    *uint16   `json:"dst_port,omitempty"`
	Length     int       `json:"length"`
	Payload    []byte    `json:"-"`
	// Domain is the DNS question name when the decoder found one
	Domain string `json:"domain,omitempty"`
	// LengthUnknown is set by sources that report flows without a packet size;
	// dsize options never hold for such packets
	LengthUnknown bool `json:"length_unknown,omitempty"`
}

// Transport represents the transport layer carried by a packet
type Transport int32

const (
	Transport_OTHER Transport = 0
	Transport_TCP   Transport = 1
	Transport_UDP   Transport = 2
)

func (t Transport) String() string {
	switch t {
	case Transport_TCP:
		return "TCP"
	case Transport_UDP:
		return "UDP"
	default:
		return "OTHER"
	}
}

// Port returns a pointer suitable for the optional port fields
func Port(p uint16) *uint16 {
	return &p
}
