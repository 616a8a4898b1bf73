package model

type Measurement string

func (m Measurement) String() string {
	return string(m)
}

const (
	SoilMoisture  Measurement = "soil_moisture"
	Flow          Measurement = "flow"
	Thermocouples Measurement = "thermocouples"
	Actuators     Measurement = "actuators"
	Sky           Measurement = "sky"
	Irrigation    Measurement = "irrigation"
)

type Unit string

const (
	UnitVolt        Unit = "V"
	UnitDegreeC     Unit = "°C"
	UnitPercent     Unit = "%"
	UnitLux         Unit = "lx"
	UnitLitrePerMin Unit = "L/min"
	UnitLitre       Unit = "L"
	UnitNone        Unit = ""
)

// FieldUnits gives the unit of measurement published alongside each field.
var FieldUnits = map[string]Unit{
	"voltage":            UnitVolt,
	"normalized_voltage": UnitNone,
	"flow":               UnitLitrePerMin,
	"flow_raw":           UnitVolt,
	"temperature":        UnitDegreeC,
	"air_humidity":       UnitPercent,
	"light_visible":      UnitLux,
	"light_visible_ir":   UnitLux,
	"pump":               UnitNone,
	"valve":              UnitNone,
	"volume":             UnitLitre,
	"duration_seconds":   UnitNone,
}

// BinaryFields are reported as on/off sensors rather than numeric ones.
var BinaryFields = []string{"pump", "valve"}
