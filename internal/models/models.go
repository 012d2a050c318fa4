package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeUnit is the unit every start/duration in a profile is declared in.
type TimeUnit string

const (
	UnitMilliseconds TimeUnit = "ms"
	UnitSeconds      TimeUnit = "sec"
	UnitMinutes      TimeUnit = "min"
)

var unitToMillis = map[TimeUnit]float64{
	UnitMilliseconds: 1.0,
	UnitSeconds:      1000.0,
	UnitMinutes:      60000.0,
}

// Valid reports whether the unit is one of the supported units.
func (u TimeUnit) Valid() bool {
	_, ok := unitToMillis[u]
	return ok
}

// Millis converts a value in this unit to milliseconds.
func (u TimeUnit) Millis(value float64) (float64, error) {
	mult, ok := unitToMillis[u]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", string(u))
	}
	return value * mult, nil
}

// ScheduledEvent is one entry in a block's timeline. Events may overlap
// arbitrarily; the compiler resolves overlap at sample time.
type ScheduledEvent struct {
	Event    string  `json:"event"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Block is one independently repeating waveform segment. Blocks execute
// sequentially and never reference each other.
type Block struct {
	BlockName       string           `json:"block_name"`
	ScheduledEvents []ScheduledEvent `json:"scheduled_events"`
	Cycles          int              `json:"cycles"`
}

// PositionConfig describes one physical test position. Position is the
// display number; the row-delay multiple comes from the position's order
// among enabled positions, not from this number.
type PositionConfig struct {
	Position     int     `json:"position"`
	Enabled      bool    `json:"enabled"`
	IsolatorGPIO int     `json:"isolator_gpio"`
	DUTGPIO      int     `json:"dut_gpio"`
	DUTOffsetMs  float64 `json:"dut_offset_ms"`
}

// AuxiliaryOutput is a named extra channel (power supply, relay, valve).
// Each enabled output contributes "{name} On" and "{name} Off" event
// kinds to the schedule vocabulary.
type AuxiliaryOutput struct {
	Name    string `json:"name"`
	GPIO    int    `json:"gpio"`
	Enabled bool   `json:"enabled"`
}

// StepPoint is one sample of a digital step waveform. Serialized on the
// wire and in profile files as a two-element array [time_ms, state].
type StepPoint struct {
	TimeMs float64
	State  int
}

// MarshalJSON encodes the point as [t, s].
func (p StepPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.TimeMs, float64(p.State)})
}

// UnmarshalJSON decodes a [t, s] pair.
func (p *StepPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("step point must be a [time, state] pair, got %d elements", len(pair))
	}
	p.TimeMs = pair[0]
	if pair[1] != 0 {
		p.State = 1
	} else {
		p.State = 0
	}
	return nil
}

// Profile is the complete description of a multi-position test sequence,
// including the precomputed digital waveforms the device consumes. It is
// a value object: derived waveform fields are recomputed from the blocks,
// never patched in place.
type Profile struct {
	ProfileName            string                 `json:"profile_name"`
	WaveformTimeUnits      TimeUnit               `json:"waveform_time_units"`
	RowDelayMs             float64                `json:"row_delay_ms"`
	Positions              []PositionConfig       `json:"positions"`
	IsolatorWaveformPoints []StepPoint            `json:"isolator_waveform_points"`
	DUTWaveformPoints      []StepPoint            `json:"dut_waveform_points"`
	Blocks                 []Block                `json:"blocks"`
	AuxiliaryOutputs       []AuxiliaryOutput      `json:"auxiliary_outputs"`
	AuxiliaryWaveforms     map[string][]StepPoint `json:"auxiliary_waveforms"`
}

// EnabledPositions returns the enabled positions in declared order.
func (p *Profile) EnabledPositions() []PositionConfig {
	var enabled []PositionConfig
	for _, pos := range p.Positions {
		if pos.Enabled {
			enabled = append(enabled, pos)
		}
	}
	return enabled
}

// ProfileRecord is a profile stored in the host-side library.
type ProfileRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"index"`
	Payload   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
