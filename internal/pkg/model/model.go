package model

import (
	"time"
)

// Tag identifies one physical channel. Board channels use "serial//channel",
// motes use "major.minor".
type Tag string

func (t Tag) String() string {
	return string(t)
}

// Fields maps a field name to its latest numeric value.
type Fields map[string]float64

type Tags struct {
	ID   Tag    `json:"id"`
	Name string `json:"name"`
}

// Point is one timestamped, tagged bundle of fields bound for the telemetry sink.
type Point struct {
	Measurement string    `json:"measurement"`
	Tags        Tags      `json:"tags"`
	Fields      Fields    `json:"fields"`
	Time        time.Time `json:"time"`
}

func NewPoint(measurement string, id Tag, name string, fields Fields) Point {
	return Point{
		Measurement: measurement,
		Tags:        Tags{ID: id, Name: name},
		Fields:      fields,
		Time:        time.Now(),
	}
}

// StoredPoint is a single field value read back from the time-series store.
type StoredPoint struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Measurement string    `json:"measurement"`
	TagID       string    `json:"tag_id"`
	TagName     string    `json:"tag_name"`
	Field       string    `json:"field"`
	Value       float64   `json:"value"`
}

type StoredPoints []StoredPoint
