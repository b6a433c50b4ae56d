package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

// dashboardPage renders the active alerts as a read-only HTML page that
// reloads itself on every alert-update from /ws.
func (h *handler) dashboardPage(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.Alerts.Active(r.Context())
	if err != nil {
		h.logger.Error("failed to load active alerts", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := trackRender(h.metrics, "dashboard", func() error {
		return alertsPage(alerts).Render(r.Context(), w)
	}); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// trackRender times a page render when metrics are enabled.
func trackRender(m *metrics.APIMetrics, page string, render func() error) error {
	if m == nil {
		return render()
	}
	timer := prometheus.NewTimer(m.RenderDuration.WithLabelValues(page))
	defer timer.ObserveDuration()
	return render()
}

const pageScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (m) {
    try { if (JSON.parse(m.data).type === "alert-update") location.reload(); } catch (e) {}
  };
})();
</script>`

func alertsPage(alerts []store.Alert) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Warehouse Monitor</title></head><body><h1>Active alerts</h1>`); err != nil {
			return err
		}
		if len(alerts) == 0 {
			if _, err := io.WriteString(w, `<p class="empty">No active alerts.</p>`); err != nil {
				return err
			}
		} else {
			if err := alertsTable(alerts).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, pageScript+`</body></html>`)
		return err
	})
}

func alertsTable(alerts []store.Alert) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<table><thead><tr><th>Sensor</th><th>Zone</th><th>Status</th><th>Level</th><th>Breaches</th><th>Triggered</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for i := range alerts {
			a := &alerts[i]
			sensor := strconv.FormatUint(uint64(a.SensorID), 10)
			if a.Sensor != nil {
				sensor = a.Sensor.SensorID
			}
			zone := ""
			if a.Zone != nil {
				zone = a.Zone.Name
			}
			_, err := fmt.Fprintf(w, `<tr class="%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
				templ.EscapeString(string(a.Status)),
				templ.EscapeString(sensor),
				templ.EscapeString(zone),
				templ.EscapeString(string(a.Status)),
				templ.EscapeString(string(a.EscalationLevel)),
				a.ConsecutiveBreaches,
				a.TriggeredAt.UTC().Format(time.RFC3339),
			)
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
