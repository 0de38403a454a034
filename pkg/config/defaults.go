package config

import "time"

// Defaults contains system-wide default values used when a Program or
// FormatSlot does not specify its own.
type Defaults struct {
	// SegmentMaxRetries is the configured retry budget for a Segment before
	// it moves to failed. The Scheduler does not read it: it creates every
	// Segment with max_retries = 3.
	SegmentMaxRetries int `yaml:"segment_max_retries,omitempty"`

	// LeadTime is the configured default interval before scheduled_start_ts
	// that a segment_make job becomes eligible. The Scheduler does not read
	// it: slot types missing from LeadTimeBySlotType use the Scheduler's
	// own fixed 30-minute default.
	LeadTime time.Duration `yaml:"lead_time,omitempty"`

	// LeadTimeBySlotType overrides LeadTime for specific slot types.
	LeadTimeBySlotType map[string]time.Duration `yaml:"lead_time_by_slot_type,omitempty"`

	// ScriptLengthMin/Max are the configured script length bounds in
	// characters (§4.7). The generation worker does not read them; it
	// checks scripts against its own fixed constants.
	ScriptLengthMin int `yaml:"script_length_min,omitempty"`
	ScriptLengthMax int `yaml:"script_length_max,omitempty"`

	// EmbeddingModel is the model name recorded on every Embedding row.
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		SegmentMaxRetries: 3,
		LeadTime:          30 * time.Minute,
		ScriptLengthMin:   50,
		ScriptLengthMax:   5000,
		EmbeddingModel:    "text-embedding-3-large",
	}
}

// LeadTimeFor returns the configured lead time for a slot type, falling back
// to the default lead time.
func (d *Defaults) LeadTimeFor(slotType string) time.Duration {
	if d.LeadTimeBySlotType != nil {
		if lt, ok := d.LeadTimeBySlotType[slotType]; ok {
			return lt
		}
	}
	return d.LeadTime
}
