package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"agent-tracking/internal/models"
)

const (
	exchangeName       = "tracking.events"
	geofenceRoutingKey = "tracking.geofence"
	locationRoutingKey = "tracking.location"
)

// AmqpDispatcher publishes tracking notifications to a RabbitMQ topic
// exchange. Downstream consumers (push delivery, dashboards) bind their own
// queues; this service only fans the events out.
type AmqpDispatcher struct {
	ch *amqp.Channel
}

// NewAmqpDispatcher opens a channel and declares the tracking exchange.
func NewAmqpDispatcher(conn *amqp.Connection) (*AmqpDispatcher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AmqpDispatcher{ch: ch}, nil
}

type geofenceEventMessage struct {
	EventID    string  `json:"event_id"`
	GeofenceID string  `json:"geofence_id"`
	ZoneName   string  `json:"zone_name"`
	AgentID    string  `json:"agent_id"`
	SessionID  string  `json:"session_id"`
	Event      string  `json:"event"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	OccurredAt int64   `json:"occurred_at"`
}

type locationUpdateMessage struct {
	AgentID    string   `json:"agent_id"`
	TaskID     *string  `json:"task_id,omitempty"`
	SessionID  string   `json:"session_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Speed      *float64 `json:"speed,omitempty"`
	Bearing    *float64 `json:"bearing,omitempty"`
	RecordedAt int64    `json:"recorded_at"`
}

// NotifyGeofenceEvent publishes a boundary-crossing event with routing key
// tracking.geofence.<enter|exit>.
func (d *AmqpDispatcher) NotifyGeofenceEvent(ctx context.Context, event *models.GeofenceEvent, fence *models.Geofence) error {
	msg := geofenceEventMessage{
		EventID:    event.ID,
		GeofenceID: event.GeofenceID,
		ZoneName:   fence.Name,
		AgentID:    event.AgentID,
		SessionID:  event.SessionID,
		Event:      string(event.Type),
		Latitude:   event.Latitude,
		Longitude:  event.Longitude,
		OccurredAt: event.OccurredAt.Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal geofence event: %w", err)
	}

	key := geofenceRoutingKey + "." + routingSuffix(event.Type)
	return d.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// NotifyLocationUpdate publishes a position update for an agent working an
// active task, routing key tracking.location.<agent id>.
func (d *AmqpDispatcher) NotifyLocationUpdate(ctx context.Context, ping *models.LocationPing, session *models.TrackingSession) error {
	msg := locationUpdateMessage{
		AgentID:    ping.AgentID,
		TaskID:     ping.TaskID,
		SessionID:  session.ID,
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		Speed:      ping.Speed,
		Bearing:    ping.Bearing,
		RecordedAt: ping.RecordedAt.Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal location update: %w", err)
	}

	return d.ch.PublishWithContext(ctx, exchangeName, locationRoutingKey+"."+ping.AgentID, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel.
func (d *AmqpDispatcher) Close() error {
	return d.ch.Close()
}

func routingSuffix(t models.GeofenceEventType) string {
	if t == models.GeofenceEnter {
		return "enter"
	}
	return "exit"
}
