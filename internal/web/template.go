package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ble-button/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"percent": func(v uint8) string {
		return fmt.Sprintf("%d%%", v)
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>{{.Config.DeviceName}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.pressed, .connected { color: green; font-weight: bold; }
.released, .sleeping { color: #888; }
.advertising, .unknown { color: orange; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}}</h1>

<h2>Button</h2>
<table>
<tr><th>State</th><td id="button" class="{{.ButtonClass}}">{{.ButtonLabel}}</td></tr>
<tr><th>Last edge</th><td>{{if .LastEdge.IsZero}}never{{else}}{{.LastEdge.UTC.Format "2006-01-02T15:04:05.000Z"}}{{end}}</td></tr>
</table>

<h2>Bluetooth</h2>
<table>
<tr><th>State</th><td id="peripheral" class="{{.StateClass}}">{{.StateLabel}}</td></tr>
<tr><th>Connection</th><td>{{if .HasConnection}}#{{.Connection}}{{else}}none{{end}}</td></tr>
<tr><th>Battery level</th><td>{{percent .BatteryLevel}}</td></tr>
<tr><th>Foo</th><td>{{.Foo}}</td></tr>
{{if .LastFailure}}<tr><th>Last failure</th><td>{{.LastFailure}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Releases</th><td>{{.Counts.Releases}}</td></tr>
<tr><th>Connections</th><td>{{.Counts.Connections}}</td></tr>
<tr><th>Advertise timeouts</th><td>{{.Counts.AdvertiseTimeouts}}</td></tr>
<tr><th>Advertise failures</th><td>{{.Counts.AdvertiseFailures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Advertise timeout</th><td>{{.Config.AdvertiseTimeoutMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{if eq .Config.DebounceMs 0}}off{{else}}{{.Config.DebounceMs}}ms{{end}}</td></tr>
<tr><th>MQTT</th><td>{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}}){{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type page struct {
	status.Snapshot
	Uptime      time.Duration
	ButtonLabel string
	ButtonClass string
	StateLabel  string
	StateClass  string
}

func label(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func cssClass(s string) string {
	switch s {
	case "PRESSED":
		return "pressed"
	case "RELEASED":
		return "released"
	case "CONNECTED":
		return "connected"
	case "ADVERTISING":
		return "advertising"
	case "SLEEPING":
		return "sleeping"
	}
	return "unknown"
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, page{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		ButtonLabel: label(string(snap.Button)),
		ButtonClass: cssClass(string(snap.Button)),
		StateLabel:  label(string(snap.State)),
		StateClass:  cssClass(string(snap.State)),
	})
}
