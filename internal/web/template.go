package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/reflowd/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Reflow Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alarm { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Reflow Controller<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Chamber</h2>
<table>
<tr><th>Running</th><td id="running-state" class="{{if .Running}}on{{else}}off{{end}}">{{if .Running}}RUNNING{{else}}IDLE{{end}}</td></tr>
<tr><th>Alarming</th><td id="alarm-state" class="{{if .Alarming}}alarm{{else}}off{{end}}">{{if .Alarming}}ALARM{{else}}ok{{end}}</td></tr>
<tr><th>State</th><td id="state-label">{{.StateLabel}}</td></tr>
<tr><th>Setpoint</th><td id="setpoint">{{printf "%.1f" .SetpointC}}&deg;C</td></tr>
<tr><th>Process value</th><td id="pv">{{printf "%.1f" .ProcessValueC}}&deg;C</td></tr>
<tr><th>PID output</th><td id="pid-output">{{printf "%.1f" .PIDOutput}}</td></tr>
<tr><th>Vent door</th><td id="door-angle">{{printf "%.1f" .DoorAngleDeg}}&deg;</td></tr>
</table>

<h2>Profile</h2>
<table>
<tr><th>Running</th><td id="profile-running">{{if .ProfileRunning}}yes{{else}}no{{end}}</td></tr>
<tr><th>Name</th><td id="profile-name">{{.ProfileName}}</td></tr>
<tr><th>Step</th><td id="profile-step">{{.ProfileStep}} / {{.ProfileTotal}}</td></tr>
<tr><th>Last end reason</th><td id="profile-end">{{.ProfileEndCause}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Telemetry</th><td class="{{if .TelemetryConnected}}connected{{else}}disconnected{{end}}">{{if .TelemetryConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick period</th><td>{{.Config.TickPeriodMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var sock;

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setText(id, text) {
    var el = document.getElementById(id);
    if (el) el.textContent = text;
  }

  function applySnapshot(s) {
    setText("running-state", s.running ? "RUNNING" : "IDLE");
    setText("alarm-state", s.alarming ? "ALARM" : "ok");
    setText("state-label", s.state_label);
    setText("setpoint", s.setpoint_c.toFixed(1) + "°C");
    setText("pv", s.process_value_c.toFixed(1) + "°C");
    setText("pid-output", s.pid_output.toFixed(1));
    setText("door-angle", s.door_angle_deg.toFixed(1) + "°");
    if (s.profile) {
      setText("profile-running", s.profile.running ? "yes" : "no");
      setText("profile-name", s.profile.name || "");
      setText("profile-step", (s.profile.step || 0) + " / " + (s.profile.total_steps || 0));
      setText("profile-end", s.profile.last_end_reason || "");
    }
  }

  function connect() {
    sock = new WebSocket(proto + "//" + location.host + "/ws");
    sock.onopen = function() { setDot("ok", "live"); };
    sock.onclose = function() {
      setDot("err", "disconnected");
      setTimeout(connect, 3000);
    };
    sock.onerror = function() { setDot("err", "error"); };
    sock.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.status) applySnapshot(msg.status);
      } catch (e) {}
    };
  }

  connect();
})();
</script>
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
	indexTmpl.Execute(w, data)
}
