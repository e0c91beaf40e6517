package stream

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/obs"
)

const subjectPrefix = "auction.events"

// NATSPublisher forwards auction events to a NATS subject per event kind
// (auction.events.auction.created, ...). Publishing is best effort: a broker
// hiccup must never fail the operation that produced the event.
type NATSPublisher struct {
	conn *nats.Conn
}

// ConnectNATS dials the broker and returns a publisher bound to it.
func ConnectNATS(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("auction-house-api"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(evt Event) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "nats event marshal failed",
			"kind":  evt.Kind,
		})
		return
	}
	subject := subjectPrefix + "." + evt.Kind
	if err := p.conn.Publish(subject, data); err != nil {
		obs.LogRequest(map[string]any{
			"level":   "warn",
			"msg":     "nats publish failed",
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.conn != nil {
		_ = p.conn.Drain()
	}
}
