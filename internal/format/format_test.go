package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestFormat_Metric(t *testing.T) {
	f := ForLocale(language.German)

	tests := []struct {
		meters   int
		realTime bool
		want     string
	}{
		{10000, false, "10 km"},
		{10200, false, "10,2 km"},
		{1000, false, "1 km"},
		{100, false, "0,1 km"},
		{99, false, "99 m"},
		{11, false, "11 m"},
		{10, false, "10 m"},
		{10, true, "now"},
		{1, true, "now"},
		{3, true, "now"},
		{3, false, "3 m"},
		{0, false, ""},
		{0, true, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Format(tt.meters, tt.realTime), "%d m realTime=%t", tt.meters, tt.realTime)
	}
}

func TestFormat_MetricEnglishSeparator(t *testing.T) {
	f := ForLocale(language.MustParse("en-CA"))
	assert.Equal(t, Metric, f.System)
	assert.Equal(t, "0.1 km", f.Format(100, false))
	assert.Equal(t, "12.3 km", f.Format(12345, false))
	assert.Equal(t, "1234.6 km", f.Format(1234567, false))
}

func TestFormat_Imperial(t *testing.T) {
	f := ForLocale(language.AmericanEnglish)

	tests := []struct {
		meters   int
		realTime bool
		want     string
	}{
		{16090, false, "10 mi"},
		{1609, false, "1 mi"},
		{161, false, "0.1 mi"},
		{158, false, "510 ft"},
		{1000, false, "0.6 mi"},
		{1, false, "3 ft"},
		{2, false, "6 ft"},
		{3, false, "9 ft"},
		{1, true, "now"},
		{3, true, "now"},
		{4, true, "10 ft"},
		{0, false, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Format(tt.meters, tt.realTime), "%d m realTime=%t", tt.meters, tt.realTime)
	}
}

func TestForLocale(t *testing.T) {
	tests := []struct {
		tag  string
		want System
	}{
		{"en-US", Imperial},
		{"en-GB", Imperial},
		{"en", Metric},
		{"en-AU", Metric},
		{"de-DE", Metric},
		{"fr", Metric},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ForLocale(language.MustParse(tt.tag)).System, tt.tag)
	}
}

func TestWithSystem(t *testing.T) {
	assert.Equal(t, "0,6 mi", ForLocale(language.German).WithSystem(Imperial).Format(1000, false))
	assert.Equal(t, "1 km", ForLocale(language.AmericanEnglish).WithSystem(Metric).Format(1000, false))
}

func TestForAcceptLanguage(t *testing.T) {
	assert.Equal(t, Imperial, ForAcceptLanguage("en-US,en;q=0.9").System)
	assert.Equal(t, Metric, ForAcceptLanguage("de-DE,de;q=0.9,en;q=0.5").System)
	assert.Equal(t, Imperial, ForAcceptLanguage("").System)
	assert.Equal(t, "1 km", ForAcceptLanguage("nl-NL").Format(1000, false))
}

func TestZeroFormatter(t *testing.T) {
	var f Formatter
	assert.Equal(t, "0.1 km", f.Format(100, false))
}

func TestParseSystem(t *testing.T) {
	assert.Equal(t, Imperial, ParseSystem("miles"))
	assert.Equal(t, Imperial, ParseSystem("imperial"))
	assert.Equal(t, Metric, ParseSystem("kilometers"))
	assert.Equal(t, "imperial", Imperial.String())
}

func TestFormat_Shorthand(t *testing.T) {
	assert.Equal(t, "0.6 mi", Format(1000, false, language.AmericanEnglish))
	assert.Equal(t, "1 km", Format(1000, false, language.German))
}
