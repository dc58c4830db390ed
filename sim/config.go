package sim

import "time"

type Config struct {
	TimeLimit  time.Duration `mapstructure:"timeLimit" validate:"gt=0"`
	SpawnCost  float64       `mapstructure:"spawnCost" validate:"gte=0"`
	MaxGauge   float64       `mapstructure:"maxGauge" validate:"gt=0"`
	GaugeRate  float64       `mapstructure:"gaugeRate" validate:"gte=0"`
	MaxUnits   int           `mapstructure:"maxUnits" validate:"gte=2"`
	FieldWidth float64       `mapstructure:"fieldWidth" validate:"gt=0"`
	GroundY    float64       `mapstructure:"groundY"`
	CastleHP   float64       `mapstructure:"castleHP" validate:"gt=0"`
	Seed       uint64        `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		TimeLimit:  180 * time.Second,
		SpawnCost:  20,
		MaxGauge:   200,
		GaugeRate:  4,
		MaxUnits:   50,
		FieldWidth: 1440,
		GroundY:    300,
		CastleHP:   1000,
	}
}

// PerSide is the unit cap for one side; the total cap is shared evenly.
func (c Config) PerSide() int {
	return c.MaxUnits / 2
}
