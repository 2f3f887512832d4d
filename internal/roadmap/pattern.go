package roadmap

import "time"

// PatternType classifies a detected learning pattern.
type PatternType string

const (
	PatternStruggle          PatternType = "struggle_area"
	PatternStrength          PatternType = "strength_area"
	PatternPacePreference    PatternType = "pace_preference"
	PatternContentPreference PatternType = "content_preference"
)

// PatternData is the measured evidence behind a pattern.
type PatternData struct {
	Topic        string  `json:"topic"`
	Confidence   float64 `json:"confidence"`
	RollingAvg   float64 `json:"rolling_average"`
	Variance     float64 `json:"variance"`
	DataPoints   int     `json:"data_points"`
	SourceRecord string  `json:"source_record,omitempty"`
}

// Pattern is an append-only record of a detected trend. Superseded
// records keep their row with SupersededAt set.
type Pattern struct {
	ID           string      `json:"id"`
	StudentID    string      `json:"student_id"`
	Type         PatternType `json:"pattern_type"`
	Data         PatternData `json:"pattern_data"`
	DetectedAt   time.Time   `json:"detected_at"`
	SupersededAt *time.Time  `json:"superseded_at,omitempty"`
}

// Key identifies the logical slot a pattern occupies.
func (p Pattern) Key() string {
	return p.StudentID + "|" + string(p.Type) + "|" + p.Data.Topic
}

// Active reports whether the pattern has not been superseded.
func (p Pattern) Active() bool {
	return p.SupersededAt == nil
}
