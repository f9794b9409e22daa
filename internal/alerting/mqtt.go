package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
)

// MQTTOptions configure the MQTT channel.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// MQTTNotifier publishes each detection as a JSON message. Detections are
// seconds apart, so every notification uses its own short-lived session.
type MQTTNotifier struct {
	opts   MQTTOptions
	logger zerolog.Logger
}

type mqttPayload struct {
	DetectedAt time.Time `json:"detected_at"`
	Severity   string    `json:"severity"`
	Magnitude  string    `json:"magnitude"`
	Threshold  string    `json:"threshold"`
	Total      int64     `json:"total"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Message    string    `json:"message"`
	Note       string    `json:"note,omitempty"`
}

// NewMQTTNotifier builds an MQTT notifier.
func NewMQTTNotifier(opts MQTTOptions, logger zerolog.Logger) *MQTTNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Topic == "" {
		opts.Topic = "potholewatch/detections"
	}
	if opts.ClientID == "" {
		opts.ClientID = "potholewatch"
	}
	if opts.QoS > 1 {
		opts.QoS = 1
	}
	return &MQTTNotifier{opts: opts, logger: logger.With().Str("component", "alert_mqtt").Logger()}
}

// Notify connects, publishes and disconnects.
func (n *MQTTNotifier) Notify(ctx context.Context, note Notification) error {
	payload := mqttPayload{
		DetectedAt: note.DetectedAt.UTC(),
		Severity:   string(note.Severity),
		Magnitude:  note.Magnitude.StringFixed(2),
		Threshold:  note.Threshold.StringFixed(0),
		Total:      note.Total,
		Message:    note.Title(),
		Note:       note.AdditionalMsg,
	}
	if note.Location != nil {
		payload.Latitude = &note.Location.Latitude
		payload.Longitude = &note.Location.Longitude
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.opts.Broker)
	if err != nil {
		return fmt.Errorf("dial mqtt broker: %w", err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: n.opts.ClientID,
		Conn:     conn,
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   n.opts.ClientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer func() { _ = client.Disconnect(&paho.Disconnect{ReasonCode: 0}) }()
	if ack.ReasonCode != 0 {
		return fmt.Errorf("mqtt connect refused: reason %d", ack.ReasonCode)
	}

	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   n.opts.Topic,
		QoS:     n.opts.QoS,
		Payload: body,
	}); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}

	n.logger.Info().Str("topic", n.opts.Topic).Int64("total", note.Total).Msg("detection published")
	return nil
}

var _ Notifier = (*MQTTNotifier)(nil)
