package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"interval": attr.FormatDuration,
	"lastTime": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Monitor ({{.Group}})</h1>

<h2>State</h2>
<table>
<tr><th>Monitor</th><td>{{if .Active}}active{{else}}inactive{{end}}</td></tr>
<tr><th>Presses</th><td id="press-count">{{.Monitor.PressCount}}</td></tr>
<tr><th>LED</th><td id="led" class="{{if .Monitor.LEDOn}}on{{else}}off{{end}}">{{if .Monitor.LEDOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Last press</th><td>{{lastTime .Monitor.LastEvent}}</td></tr>
<tr><th>Interval</th><td>{{interval .Monitor.LastInterval}}s</td></tr>
<tr><th>Write failures</th><td>{{.Monitor.WriteFailures}}</td></tr>
<tr><th>Dropped events</th><td>{{.Monitor.DroppedEvents}}</td></tr>
</table>

<h2>Attributes</h2>
<table>
{{range .Attributes}}<tr><th><a href="/{{$.Group}}/{{.Name}}">{{.Name}}</a>{{if .Writable}} (rw){{end}}</th><td><pre>{{index $.Values .Name}}</pre></td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Lines</th><td>{{.Config.Chip}} in {{.Config.InputLine}} / out {{.Config.OutputLine}}</td></tr>
<tr><th>Polarity</th><td>{{.Config.Polarity}}</td></tr>
<tr><th>Debounce</th><td>{{if eq .Config.DebounceMs 0}}off{{else}}{{.Config.DebounceMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.Heartbeat}}{{.Config.Heartbeat}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/{{.Group}}">attributes</a> | <a href="/{{.Group}}/history">history</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, group string, attrs []attr.Info, values map[string]string) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		Group      string
		Attributes []attr.Info
		Values     map[string]string
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		Group:      group,
		Attributes: attrs,
		Values:     values,
	}
	return indexTmpl.Execute(w, data)
}
