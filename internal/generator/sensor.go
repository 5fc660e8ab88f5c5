package generator

import (
	"fmt"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

type SensorType int

const (
	Temperature SensorType = iota
	Humidity
	Pressure
	Motion
	Light
	Vibration
	AirQuality
	Power
)

var sensorNames = [...]string{"temperature", "humidity", "pressure", "motion", "light", "vibration", "air_quality", "power"}
var sensorUnits = [...]string{"celsius", "percent", "hpa", "detected", "lux", "g", "aqi", "watts"}

func SensorTypes() []SensorType {
	return []SensorType{Temperature, Humidity, Pressure, Motion, Light, Vibration, AirQuality, Power}
}

func (s SensorType) String() string { return sensorNames[s] }
func (s SensorType) Unit() string { return sensorUnits[s] }

type band struct {
	lo, hi float64
}

func (b band) contains(v float64) bool { return v >= b.lo && v < b.hi }

// profile holds reading ranges per severity class. A class with two bands
// picks one of them at random.
type profile struct {
	critical []band
	warning  []band
	normal   band
}

var profiles = map[SensorType]profile{
	Temperature: {
		critical: []band{{35, 50}, {-10, 10}},
		warning:  []band{{26, 35}, {10, 18}},
		normal:   band{18, 26},
	},
	Humidity: {
		critical: []band{{85, 100}, {0, 15}},
		warning:  []band{{70, 85}, {15, 30}},
		normal:   band{30, 70},
	},
	Pressure: {
		critical: []band{{1040, 1060}, {950, 980}},
		warning:  []band{{1025, 1040}, {980, 1000}},
		normal:   band{1000, 1025},
	},
	Light: {
		critical: []band{{0, 10}},
		warning:  []band{{10, 100}, {1000, 2000}},
		normal:   band{300, 700},
	},
	Vibration: {
		critical: []band{{2, 5}},
		warning:  []band{{0.5, 2}},
		normal:   band{0, 0.5},
	},
	AirQuality: {
		critical: []band{{200, 500}},
		warning:  []band{{100, 200}},
		normal:   band{0, 50},
	},
	Power: {
		critical: []band{{1000, 2000}},
		warning:  []band{{500, 1000}},
		normal:   band{50, 500},
	},
}

type severity int

const (
	normal severity = iota
	warning
	critical
)

func severityOf(level logging.Level) severity {
	switch {
	case level >= logging.LevelError:
		return critical
	case level == logging.LevelWarn:
		return warning
	default:
		return normal
	}
}

func (p profile) bands(s severity) []band {
	switch s {
	case critical:
		return p.critical
	case warning:
		return p.warning
	default:
		return []band{p.normal}
	}
}

func aqiCategory(aqi int) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

func describe(sensor SensorType, level logging.Level, reading float64) string {
	s := severityOf(level)

	switch sensor {
	case Temperature:
		switch {
		case s == critical:
			return fmt.Sprintf("CRITICAL: Temperature reading %.1fC is outside safe range", reading)
		case s == warning:
			return fmt.Sprintf("Temperature %.1fC approaching threshold limits", reading)
		case level == logging.LevelDebug:
			return fmt.Sprintf("Sensor calibration check: %.1fC within tolerance", reading)
		case level == logging.LevelTrace:
			return fmt.Sprintf("Raw temperature ADC value converted to %.1fC", reading)
		default:
			return fmt.Sprintf("Temperature reading: %.1fC", reading)
		}
	case Humidity:
		return pick(s,
			fmt.Sprintf("ALERT: Humidity %.1f%% outside operational limits", reading),
			fmt.Sprintf("Humidity %.1f%% nearing threshold", reading),
			fmt.Sprintf("Humidity reading: %.1f%%", reading))
	case Pressure:
		return pick(s,
			fmt.Sprintf("CRITICAL: Barometric pressure %.1f hPa is abnormal", reading),
			fmt.Sprintf("Pressure %.1f hPa deviation detected", reading),
			fmt.Sprintf("Pressure reading: %.1f hPa", reading))
	case Light:
		return pick(s,
			fmt.Sprintf("CRITICAL: Light sensor reading %.0f lux indicates failure", reading),
			fmt.Sprintf("Light level %.0f lux outside normal range", reading),
			fmt.Sprintf("Light level: %.0f lux", reading))
	case Vibration:
		return pick(s,
			fmt.Sprintf("CRITICAL: Excessive vibration %.2fg detected", reading),
			fmt.Sprintf("Elevated vibration level: %.2fg", reading),
			fmt.Sprintf("Vibration reading: %.3fg", reading))
	case AirQuality:
		aqi := int(reading)
		category := aqiCategory(aqi)
		return pick(s,
			fmt.Sprintf("ALERT: Air quality index %d (%s) - take action", aqi, category),
			fmt.Sprintf("Air quality degraded: AQI %d (%s)", aqi, category),
			fmt.Sprintf("Air quality: AQI %d (%s)", aqi, category))
	case Power:
		return pick(s,
			fmt.Sprintf("CRITICAL: Power consumption %.1fW exceeds limit", reading),
			fmt.Sprintf("High power consumption: %.1fW", reading),
			fmt.Sprintf("Power consumption: %.1fW", reading))
	default:
		return fmt.Sprintf("%s reading: %v", sensor, reading)
	}
}

func describeMotion(level logging.Level, detected bool, confidence int) string {
	switch severityOf(level) {
	case critical:
		return "Motion sensor communication failure"
	case warning:
		return fmt.Sprintf("Motion detection confidence low: %d%%", confidence)
	}
	if detected {
		return fmt.Sprintf("Motion detected with %d%% confidence", confidence)
	}
	return "No motion detected"
}

func pick(s severity, criticalMsg, warningMsg, normalMsg string) string {
	switch s {
	case critical:
		return criticalMsg
	case warning:
		return warningMsg
	default:
		return normalMsg
	}
}
