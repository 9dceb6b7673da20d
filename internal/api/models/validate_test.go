package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/internal/api/models"
)

func TestValidate_CreateSessionRequest(t *testing.T) {
	valid := models.CreateSessionRequest{
		Origin:      &models.LocationInput{Lat: 52.5, Lon: 13.4},
		Destination: &models.LocationInput{Lat: 52.504, Lon: 13.413, Name: "Destination"},
		Costing:     "bicycle",
		Units:       "miles",
		Language:    "de-DE",
	}
	assert.Nil(t, models.Validate(valid))

	tests := []struct {
		name   string
		mutate func(*models.CreateSessionRequest)
		field  string
		code   string
	}{
		{"missing origin", func(r *models.CreateSessionRequest) { r.Origin = nil }, "origin", "REQUIRED"},
		{"latitude out of range", func(r *models.CreateSessionRequest) { r.Destination = &models.LocationInput{Lat: 91} }, "destination.lat", "OUT_OF_RANGE"},
		{"bad costing", func(r *models.CreateSessionRequest) { r.Costing = "rocket" }, "costing", "INVALID_VALUE"},
		{"bad units", func(r *models.CreateSessionRequest) { r.Units = "leagues" }, "units", "INVALID_VALUE"},
		{"bad via", func(r *models.CreateSessionRequest) { r.Via = []models.LocationInput{{Lat: 0, Lon: 200}} }, "via[0].lon", "OUT_OF_RANGE"},
		{"bad heading", func(r *models.CreateSessionRequest) {
			h := 360
			r.Origin = &models.LocationInput{Lat: 52.5, Lon: 13.4, Heading: &h}
		}, "origin.heading", "OUT_OF_RANGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			errs := models.Validate(req)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}

func TestValidate_FixBatch(t *testing.T) {
	assert.Nil(t, models.Validate(models.FixBatchRequest{Fixes: []models.FixInput{{Lat: 1, Lon: 2}}}))

	errs := models.Validate(models.FixBatchRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "fixes", errs[0].Field)

	bearing := 400.0
	errs = models.Validate(models.FixBatchRequest{Fixes: []models.FixInput{{Lat: 1, Lon: 2, Bearing: &bearing}}})
	require.Len(t, errs, 1)
	assert.Equal(t, "fixes[0].bearing", errs[0].Field)
}

func TestTimestamp_JSON(t *testing.T) {
	var in models.FixInput
	require.NoError(t, json.Unmarshal([]byte(`{"lat":1,"lon":2,"timestamp":"2024-05-01T08:00:00.5Z"}`), &in))
	require.NotNil(t, in.Timestamp)
	assert.Equal(t, 500000000, in.Timestamp.Time().Nanosecond())

	out, err := json.Marshal(in.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T08:00:00.5Z"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":12}`), &in))
}
