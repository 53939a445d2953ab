package timeseries

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/compozy/storage/engine/infra/dbpool"
)

type fieldKind uint8

const (
	fieldString fieldKind = iota + 1
	fieldInt
	fieldFloat
	fieldBool
)

// FieldValue is one typed field of a point: a string, integer, float or
// boolean. The zero value is invalid.
type FieldValue struct {
	kind fieldKind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringField(v string) FieldValue { return FieldValue{kind: fieldString, s: v} }
func IntField(v int64) FieldValue     { return FieldValue{kind: fieldInt, i: v} }
func FloatField(v float64) FieldValue { return FieldValue{kind: fieldFloat, f: v} }
func BoolField(v bool) FieldValue     { return FieldValue{kind: fieldBool, b: v} }

// Interface returns the underlying Go value, or nil for the zero FieldValue.
func (v FieldValue) Interface() any {
	switch v.kind {
	case fieldString:
		return v.s
	case fieldInt:
		return v.i
	case fieldFloat:
		return v.f
	case fieldBool:
		return v.b
	default:
		return nil
	}
}

func (v FieldValue) String() string {
	if v.kind == 0 {
		return "<invalid>"
	}
	return fmt.Sprint(v.Interface())
}

// Point is a single measurement sample. A zero Time lets the server assign
// the timestamp.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]FieldValue
	Time        time.Time
}

// NewPoint builds a point stamped at ts.
func NewPoint(measurement string, tags map[string]string, fields map[string]FieldValue, ts time.Time) *Point {
	return &Point{Measurement: measurement, Tags: tags, Fields: fields, Time: ts}
}

// Validate rejects points the line protocol cannot carry.
func (p *Point) Validate() error {
	if err := p.check(); err != nil {
		return err
	}
	return nil
}

func (p *Point) check() *dbpool.Error {
	if p.Measurement == "" {
		return serializationError("point measurement cannot be empty")
	}
	if len(p.Fields) == 0 {
		return serializationError(fmt.Sprintf("point %q has no fields", p.Measurement))
	}
	for name, v := range p.Fields {
		if name == "" {
			return serializationError(fmt.Sprintf("point %q has an unnamed field", p.Measurement))
		}
		if v.kind == 0 {
			return serializationError(fmt.Sprintf("field %q of point %q has no value", name, p.Measurement))
		}
		if v.kind == fieldFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
			return serializationError(fmt.Sprintf("field %q of point %q is not a finite float", name, p.Measurement))
		}
	}
	return nil
}

func serializationError(msg string) *dbpool.Error {
	return dbpool.NewSerializationError(dbpool.BackendInfluxDB, "point", msg)
}

// native converts p into the client library representation.
func (p *Point) native() *write.Point {
	fields := make(map[string]any, len(p.Fields))
	for name, v := range p.Fields {
		fields[name] = v.Interface()
	}
	return write.NewPoint(p.Measurement, p.Tags, fields, p.Time)
}

// LineProtocol renders p with nanosecond precision, without the trailing
// newline.
func (p *Point) LineProtocol() string {
	return strings.TrimSuffix(write.PointToLineProtocol(p.native(), time.Nanosecond), "\n")
}

// Size is the number of line protocol bytes p occupies on the wire.
func (p *Point) Size() int {
	return len(p.LineProtocol()) + 1
}
