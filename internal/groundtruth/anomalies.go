package groundtruth

// Range is a closed interval used by anomaly patterns.
type Range struct {
	Min float64
	Max float64
}

// Mid returns the interval midpoint.
func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// AnomalyPatterns maps anomaly kinds to per-metric override ranges.
// SpO2 and skin temperature overrides are sampled uniformly inside the range;
// the rest shift the mean-reversion target to the range midpoint.
var AnomalyPatterns = map[string]map[string]Range{
	"tachycardia_at_rest": {
		"heart_rate":       {110, 140},
		"activity_level":   {0, 8},
		"steps_per_minute": {0, 3},
		"hrv_ms":           {20, 35},
	},
	"hypoxia": {
		"spo2_percent":     {88, 93},
		"respiratory_rate": {20, 28},
		"heart_rate":       {85, 105},
	},
	"fever_onset": {
		"skin_temp_c": {37.8, 39.5},
		"heart_rate":  {90, 110},
		"hrv_ms":      {25, 40},
	},
	"burnout_stress": {
		"hrv_ms":      {15, 30},
		"heart_rate":  {85, 100},
		"sleep_hours": {4, 5.5},
	},
	"dehydration": {
		"heart_rate":              {90, 110},
		"blood_pressure_systolic": {95, 110},
		"skin_temp_c":             {37.0, 37.5},
	},
}

// AnomalyKinds returns the known anomaly names in a stable order.
func AnomalyKinds() []string {
	return []string{"tachycardia_at_rest", "hypoxia", "fever_onset", "burnout_stress", "dehydration"}
}

// KnownAnomaly reports whether kind names a pattern.
func KnownAnomaly(kind string) bool {
	_, ok := AnomalyPatterns[kind]
	return ok
}
