package shipper

import (
	"math"

	"github.com/sensorrelay/sensorrelay/agent/internal/compute"
	"github.com/sensorrelay/sensorrelay/pkg/types"
)

// toMessage flattens a Reading into the relay's sensor update object:
// sensorId, every value and static field at the top level, and the bridge's
// own status fields. The relay stamps lastUpdated itself.
func toMessage(r *compute.Reading) map[string]interface{} {
	msg := make(map[string]interface{}, len(r.Values)+len(r.Static)+8)
	for k, v := range r.Static {
		msg[k] = v
	}
	for k, v := range r.Values {
		msg[k] = finite(v)
	}

	msg[types.FieldSensorID] = r.SensorID
	msg["status"] = r.Status
	msg["quality"] = round2(r.Quality)
	msg["quality_state"] = r.State
	msg["uptime_pct"] = round2(r.UptimePct)
	msg["scraped_at"] = types.FormatTimestamp(r.Timestamp)
	if r.Error != "" {
		msg["error"] = r.Error
	}
	if r.HasCert {
		msg["cert_status"] = r.CertStatus
		msg["cert_days_left"] = r.CertDaysLeft
	}
	return msg
}

func round2(v float64) float64 {
	return math.Round(finite(v)*100) / 100
}

// finite maps NaN and ±Inf, which JSON cannot carry, to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
