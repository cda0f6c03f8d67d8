package notify

import (
	"context"
	"fmt"
	"strings"

	"agent-tracking/internal/models"
	"agent-tracking/pkg/email"
)

// EmailAlerter emails fleet operations when an agent crosses a geofence
// boundary. Location updates are intentionally ignored; nobody wants an email
// per ping.
type EmailAlerter struct {
	sender     email.SenderInterface
	templates  *email.TemplateManager
	recipients []string
}

// NewEmailAlerter creates an alerter that sends to the given recipients.
func NewEmailAlerter(sender email.SenderInterface, templates *email.TemplateManager, recipients []string) *EmailAlerter {
	return &EmailAlerter{sender: sender, templates: templates, recipients: recipients}
}

// NotifyGeofenceEvent sends one alert email per recipient.
func (a *EmailAlerter) NotifyGeofenceEvent(ctx context.Context, event *models.GeofenceEvent, fence *models.Geofence) error {
	verb := "entered"
	if event.Type == models.GeofenceExit {
		verb = "left"
	}

	html, err := a.templates.GenerateGeofenceAlertHTML(email.GeofenceAlertData{
		AgentID:    event.AgentID,
		ZoneName:   fence.Name,
		EventType:  verb,
		Latitude:   event.Latitude,
		Longitude:  event.Longitude,
		OccurredAt: event.OccurredAt.Format("2006-01-02 15:04:05 MST"),
	})
	if err != nil {
		return fmt.Errorf("notify.EmailAlerter: render: %w", err)
	}

	subject := fmt.Sprintf("Geofence alert: agent %s %s %s", event.AgentID, verb, fence.Name)
	plain := fmt.Sprintf("Agent %s %s zone %s at %.6f, %.6f (%s)",
		event.AgentID, verb, fence.Name, event.Latitude, event.Longitude,
		event.OccurredAt.Format("2006-01-02 15:04:05 MST"))

	var failed []string
	for _, to := range a.recipients {
		if err := a.sender.SendEmail(ctx, to, subject, plain, html); err != nil {
			failed = append(failed, to)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify.EmailAlerter: delivery failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

// NotifyLocationUpdate is a no-op for the email channel.
func (a *EmailAlerter) NotifyLocationUpdate(ctx context.Context, ping *models.LocationPing, session *models.TrackingSession) error {
	return nil
}
