package view

import (
	"html/template"
	"reflect"
	"time"

	"github.com/dustin/go-humanize"
)

// FuncMap is shared by the panel's HTML templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"formatSize": func(v any) string { return FormatSize(toFloat(v)) },
		"comma":      func(v any) string { return humanize.Comma(int64(toFloat(v))) },
		"ago":        humanize.Time,
		"clock":      func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	}
}

// toFloat accepts any numeric kind so templates can pass int64, uint64 or
// float64 fields directly.
func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}
