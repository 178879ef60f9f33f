package progress

// DoneSentinel is the reserved log value that ends a task's event stream on
// success. An event carrying Error (with or without Cancelled) ends it on
// failure. Every task stream ends with exactly one of the two.
const DoneSentinel = "DONE"

// Event is one progress message for a task. All fields are optional; an
// absent Percent means "no change".
type Event struct {
	Stage     string   `json:"stage,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`
	Log       string   `json:"log,omitempty"`
	Error     string   `json:"error,omitempty"`
	Cancelled bool     `json:"cancelled,omitempty"`
	FinalURL  string   `json:"final_url,omitempty"`
}

// Terminal reports whether this event ends the task's stream.
func (e Event) Terminal() bool {
	return e.Log == DoneSentinel || e.Error != ""
}

// Pct is a convenience for building Event.Percent values.
func Pct(v float64) *float64 {
	return &v
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
