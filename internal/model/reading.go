package model

import "time"

// AnalogSensors are the sensors the detection model fits a forecaster for.
var AnalogSensors = []string{
	"tp2",
	"tp3",
	"h1",
	"dv_pressure",
	"reservoirs",
	"oil_temperature",
	"flowmeter",
	"motor_current",
}

// DigitalSensors are binary (0/1) and are not modeled, only queried.
var DigitalSensors = []string{
	"comp",
	"dv_electric",
	"towers",
	"mpg",
	"lps",
	"pressure_switch",
	"oil_level",
	"caudal_impulses",
}

func IsAnalogSensor(name string) bool {
	for _, s := range AnalogSensors {
		if s == name {
			return true
		}
	}
	return false
}

func IsDigitalSensor(name string) bool {
	for _, s := range DigitalSensors {
		if s == name {
			return true
		}
	}
	return false
}

// SensorReading is one raw sample. Immutable once ingested.
type SensorReading struct {
	Ts     time.Time `db:"ts"`
	Sensor string    `db:"sensor"`
	Value  float64   `db:"value"`
}
