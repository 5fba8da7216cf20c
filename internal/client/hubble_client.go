package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"netwatch/internal/model"

	"github.com/cilium/cilium/api/v1/observer"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PacketSink accepts descriptors from a packet source
type PacketSink interface {
	Enqueue(ctx context.Context, pkt *model.PacketDescriptor) error
}

// HubbleGRPCClient follows a Hubble relay flow stream and turns every flow into
// a packet descriptor. Hubble flows carry no payload or length, so only
// protocol gated rules without content/dsize options can match them.
type HubbleGRPCClient struct {
	conn    *grpc.ClientConn
	server  string
	metrics *PrometheusMetrics
	logger  *logrus.Logger
}

func NewHubbleGRPCClientWithMetrics(server string, metrics *PrometheusMetrics, logger *logrus.Logger) (*HubbleGRPCClient, error) {
	conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hubble server: %w", err)
	}

	return &HubbleGRPCClient{
		conn:    conn,
		server:  server,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (c *HubbleGRPCClient) Close() error {
	return c.conn.Close()
}

func (c *HubbleGRPCClient) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.conn.Connect()
	state := c.conn.GetState()
	if state.String() == "READY" {
		c.logger.Infof("Successfully connected to Hubble relay at %s", c.server)
		return nil
	}

	ready := c.conn.WaitForStateChange(ctx, state)
	if !ready {
		return fmt.Errorf("connection test failed: timeout waiting for connection")
	}

	finalState := c.conn.GetState()
	if finalState.String() == "READY" {
		c.logger.Infof("Successfully connected to Hubble relay at %s", c.server)
		return nil
	}

	return fmt.Errorf("connection test failed: connection state is %s", finalState.String())
}

// StreamPackets follows the relay and enqueues one descriptor per flow until
// ctx is cancelled or the stream ends.
func (c *HubbleGRPCClient) StreamPackets(ctx context.Context, namespaces []string, sink PacketSink) error {
	client := observer.NewObserverClient(c.conn)

	req := &observer.GetFlowsRequest{
		Follow: true,
	}

	if len(namespaces) > 0 {
		var filters []*observer.FlowFilter
		for _, ns := range namespaces {
			filters = append(filters,
				&observer.FlowFilter{
					SourceLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
				},
				&observer.FlowFilter{
					DestinationLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
				},
			)
		}
		req.Whitelist = filters
		c.logger.Infof("Filtering flows for namespaces: %s", strings.Join(namespaces, ", "))
	}

	stream, err := client.GetFlows(ctx, req)
	if err != nil {
		c.recordError("stream_start_failed")
		return fmt.Errorf("failed to start flow streaming: %w", err)
	}

	flowCount := 0
	lastLogTime := time.Now()

	for {
		response, err := stream.Recv()
		if err == io.EOF {
			c.logger.Info("Hubble stream ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.recordError("stream_receive_failed")
			return fmt.Errorf("failed to receive flow: %w", err)
		}

		pkt := convertHubbleFlow(response.GetFlow())
		if pkt == nil {
			continue
		}
		if err := sink.Enqueue(ctx, pkt); err != nil {
			return nil
		}

		flowCount++
		if time.Since(lastLogTime) >= 10*time.Second {
			c.logger.Debugf("Received %d flows in the last 10 seconds", flowCount)
			lastLogTime = time.Now()
			flowCount = 0
		}
	}
}

func (c *HubbleGRPCClient) recordError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordSourceError("hubble", errorType)
	}
}

func convertHubbleFlow(hubbleFlow *observer.Flow) *model.PacketDescriptor {
	if hubbleFlow == nil {
		return nil
	}

	pkt := &model.PacketDescriptor{
		Timestamp:     time.Now(),
		LengthUnknown: true,
	}

	if hubbleFlow.GetTime() != nil {
		pkt.Timestamp = hubbleFlow.GetTime().AsTime()
	}

	if ip := hubbleFlow.GetIP(); ip != nil && ip.GetSource() != "" {
		pkt.HasNetwork = true
		pkt.SrcIP = ip.GetSource()
		pkt.DstIP = ip.GetDestination()
	}

	if l4 := hubbleFlow.GetL4(); l4 != nil {
		if tcp := l4.GetTCP(); tcp != nil {
			pkt.Transport = model.Transport_TCP
			pkt.SrcPort = model.Port(uint16(tcp.GetSourcePort()))
			pkt.DstPort = model.Port(uint16(tcp.GetDestinationPort()))
		} else if udp := l4.GetUDP(); udp != nil {
			pkt.Transport = model.Transport_UDP
			pkt.SrcPort = model.Port(uint16(udp.GetSourcePort()))
			pkt.DstPort = model.Port(uint16(udp.GetDestinationPort()))
		}
	}

	if l7 := hubbleFlow.GetL7(); l7 != nil {
		if dns := l7.GetDns(); dns != nil {
			pkt.Domain = strings.TrimSuffix(dns.GetQuery(), ".")
		}
	}

	return pkt
}
