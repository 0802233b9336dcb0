package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/trigger-chain/internal/chain"
	"github.com/sweeney/trigger-chain/internal/status"
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
	"level":     func(l chain.Level) string { return status.LevelString(l) },
	"indicator": func(st chain.State) string { return status.IndicatorString(st) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Trigger Chain</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.above { color: green; font-weight: bold; }
.below { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Trigger Chain</h1>

<h2>Comparator</h2>
<table>
{{$level := level .Chain.Level}}
<tr><th>Output</th><td id="level" class="{{if eq $level "ABOVE"}}above{{else if eq $level "BELOW"}}below{{else}}unknown{{end}}">{{$level}}</td></tr>
<tr><th>Indicator</th><td>{{indicator .Chain}}</td></tr>
<tr><th>Input</th><td>{{.Chain.InputMV}} mV</td></tr>
<tr><th>Threshold</th><td>{{.Chain.ThresholdMV}} mV</td></tr>
<tr><th>Sampling</th><td>{{if .Chain.SampleEnabled}}armed{{else}}disarmed{{end}} ({{.Config.Window}})</td></tr>
<tr><th>Transmit gate</th><td>{{if .Chain.GateOpen}}open{{else}}closed{{end}}</td></tr>
</table>

<h2>Trigger Links</h2>
<table>
{{range .Chain.Links}}<tr><th>{{.Source}} &rarr; {{.Destination}}</th><td>{{if .Locked}}locked{{else}}unlocked{{end}}</td></tr>
{{else}}<tr><th>none</th><td></td></tr>
{{end}}</table>

<h2>Event Counts</h2>
<table>
<tr><th>Timeouts</th><td>{{.Chain.Counts.Timeouts}}</td></tr>
<tr><th>Rising edges</th><td>{{.Chain.Counts.Rising}}</td></tr>
<tr><th>Falling edges</th><td>{{.Chain.Counts.Falling}}</td></tr>
<tr><th>Missed</th><td>{{.Chain.Counts.Missed}}</td></tr>
<tr><th>Transmitted</th><td>{{.Chain.Counts.Transmitted}}</td></tr>
<tr><th>Dropped (gate closed)</th><td>{{.Chain.Counts.Dropped}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Tick</th><td>{{.Chain.Tick}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("render status page: %v", err)
	}
}
