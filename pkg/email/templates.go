package email

import (
	"bytes"
	"html/template"
	"log"
)

// TemplateManager holds the parsed email templates.
type TemplateManager struct {
	GeofenceAlertTmpl *template.Template
}

// NewTemplateManager parses all email templates at startup.
func NewTemplateManager() (*TemplateManager, error) {
	geofenceTmpl, err := template.New("geofenceAlert").Parse(geofenceAlertTemplate)
	if err != nil {
		return nil, err
	}

	log.Println("Email templates parsed successfully.")
	return &TemplateManager{
		GeofenceAlertTmpl: geofenceTmpl,
	}, nil
}

// GeofenceAlertData holds the dynamic data for a geofence alert email.
type GeofenceAlertData struct {
	AgentID    string
	ZoneName   string
	EventType  string // "entered" or "left"
	Latitude   float64
	Longitude  float64
	OccurredAt string
}

// GenerateGeofenceAlertHTML executes the geofence alert template with the
// provided data.
func (tm *TemplateManager) GenerateGeofenceAlertHTML(data GeofenceAlertData) (string, error) {
	var body bytes.Buffer
	if err := tm.GeofenceAlertTmpl.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

// --- HTML Template Definitions ---

const geofenceAlertTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>Geofence Alert</title>
</head>
<body style="font-family: Arial, sans-serif;">
	<h2>Geofence Alert: {{.ZoneName}}</h2>
	<p>Agent <strong>{{.AgentID}}</strong> has {{.EventType}} the zone <strong>{{.ZoneName}}</strong>.</p>
	<p>Position: {{.Latitude}}, {{.Longitude}}</p>
	<p>Time: {{.OccurredAt}}</p>
	<p>You are receiving this because you own this geofence.</p>
</body>
</html>
`
