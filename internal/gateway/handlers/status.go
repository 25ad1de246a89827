package handlers

import (
	"html/template"
	"net/http"

	"chatrelay/pkg/logger"
)

// StatusSource exposes the live state shown on the status endpoints.
type StatusSource interface {
	Model() string
	Sessions() int
}

// ServiceInfo is static information about the running service.
type ServiceInfo struct {
	Version        string
	Endpoints      []string
	BackendVersion string // as reported at startup, may be empty
	FeedEnabled    bool
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Status         string   `json:"status"`
	Model          string   `json:"model"`
	Endpoints      []string `json:"endpoints"`
	Sessions       int      `json:"sessions"`
	Uptime         int64    `json:"uptime"`
	Version        string   `json:"version,omitempty"`
	BackendVersion string   `json:"backend_version,omitempty"`
}

// StatusHandler returns the JSON status document.
func StatusHandler(src StatusSource, info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendJSON(w, http.StatusOK, StatusResponse{
			Status:         "active",
			Model:          src.Model(),
			Endpoints:      info.Endpoints,
			Sessions:       src.Sessions(),
			Uptime:         Uptime(),
			Version:        info.Version,
			BackendVersion: info.BackendVersion,
		})
	}
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>WhatsApp Chatbot - {{.Model}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background-color: #f5f5f5; }
        .container { background-color: white; padding: 30px; border-radius: 10px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        .status { color: #25D366; font-weight: bold; }
        .info { background-color: #e3f2fd; padding: 15px; border-radius: 5px; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>WhatsApp Chatbot with {{.Model}}</h1>
        <p class="status">Service active</p>

        <div class="info">
            <h3>Service information</h3>
            <ul>
                <li><strong>Model:</strong> {{.Model}}</li>
                <li><strong>Webhook:</strong> /webhook</li>
                <li><strong>Active sessions:</strong> {{.Sessions}}</li>
                <li><strong>Status:</strong> <a href="/status" target="_blank">check status</a></li>
                {{- if .FeedEnabled}}
                <li><strong>Live feed:</strong> /ws/events</li>
                {{- end}}
                {{- if .Version}}
                <li><strong>Version:</strong> {{.Version}}</li>
                {{- end}}
            </ul>
        </div>

        <div class="info">
            <h3>Twilio setup</h3>
            <p>Point the WhatsApp sandbox webhook at:<br>
            <code>https://your-domain.example/webhook</code></p>
        </div>
    </div>
</body>
</html>
`))

type homeData struct {
	Model       string
	Sessions    int
	Version     string
	FeedEnabled bool
}

// HomeHandler renders the HTML landing page.
func HomeHandler(src StatusSource, info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := homeTemplate.Execute(w, homeData{
			Model:       src.Model(),
			Sessions:    src.Sessions(),
			Version:     info.Version,
			FeedEnabled: info.FeedEnabled,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to render home page")
		}
	}
}
