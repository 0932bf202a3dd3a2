package logger

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Gruvbox Dark palette
var palette = struct {
	fg, aqua, orange, yellow, blue, purple, red, redBg, yellowBg string
}{
	fg:       "\x1b[38;5;223m",
	aqua:     "\x1b[38;5;108m",
	orange:   "\x1b[38;5;208m",
	yellow:   "\x1b[38;5;214m",
	blue:     "\x1b[38;5;109m",
	purple:   "\x1b[38;5;175m",
	red:      "\x1b[38;5;167m",
	redBg:    "\x1b[48;5;52m",
	yellowBg: "\x1b[48;5;58m",
}

var bufferPool = buffer.NewPool()

// minimalEncoder writes compact single-line console entries:
//
//	13:04:35  load  Merged  weather_daily  inserted=120 updated=4 duration_ms=85
//
// The dataset and run id are printed first as bare values; every other field
// is printed as key=value. No field is ever dropped.
type minimalEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newMinimalEncoder(color bool) *minimalEncoder {
	return &minimalEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

// Clone copies fields added through With
func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := newMinimalEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	all := enc.Clone().(*minimalEncoder)
	for _, f := range fields {
		f.AddTo(all.MapObjectEncoder)
	}

	final := bufferPool.Get()
	final.AppendString(enc.paint(palette.aqua, ent.Time.Format("15:04:05")))

	if lvl := enc.levelString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(enc.paint(palette.orange, ent.LoggerName))
	}

	final.AppendString("  ")
	final.AppendString(enc.paint(palette.fg, ent.Message))

	if values := all.fieldValues(); values != "" {
		final.AppendString("  ")
		final.AppendString(values)
	}

	final.AppendString("\n")
	return final, nil
}

func (enc *minimalEncoder) paint(color, s string) string {
	if !enc.color {
		return s
	}
	return color + s + colorReset
}

// levelString is empty for INFO and DEBUG
func (enc *minimalEncoder) levelString(level zapcore.Level) string {
	switch {
	case level == zapcore.WarnLevel:
		return enc.paint(colorBold+palette.yellowBg+palette.yellow, "WARN")
	case level >= zapcore.ErrorLevel:
		return enc.paint(colorBold+palette.redBg+palette.red, level.CapitalString())
	default:
		return ""
	}
}

// fieldValues renders dataset and run id as bare values, then the remaining
// fields sorted by key
func (enc *minimalEncoder) fieldValues() string {
	var parts []string
	for _, key := range []string{FieldDataset, FieldRunID} {
		if v, ok := enc.Fields[key]; ok {
			parts = append(parts, enc.paint(palette.blue, formatValue(v)))
		}
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		// cockroachdb errors add a "<key>Verbose" stack dump
		if k != FieldDataset && k != FieldRunID && !strings.HasSuffix(k, "Verbose") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := formatValue(enc.Fields[k])
		switch enc.Fields[k].(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			v = enc.paint(palette.purple, v)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return fmt.Sprintf("%.0f", x)
		}
		return fmt.Sprintf("%g", x)
	case float32:
		return fmt.Sprintf("%g", x)
	case []interface{}:
		items := make([]string, len(x))
		for i, item := range x {
			items[i] = formatValue(item)
		}
		return "[" + strings.Join(items, ",") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
