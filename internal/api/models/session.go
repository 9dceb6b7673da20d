package models

import "github.com/breatheroute/navcore/internal/session"

// LocationInput is a waypoint of a session request.
type LocationInput struct {
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" validate:"gte=-180,lte=180"`
	Heading *int    `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Name    string  `json:"name,omitempty" validate:"max=200"`
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Origin      *LocationInput  `json:"origin" validate:"required"`
	Destination *LocationInput  `json:"destination" validate:"required"`
	Via         []LocationInput `json:"via,omitempty" validate:"max=20,dive"`
	Costing     string          `json:"costing,omitempty" validate:"omitempty,oneof=auto pedestrian bicycle multimodal"`
	Units       string          `json:"units,omitempty" validate:"omitempty,oneof=kilometers miles"`
	Language    string          `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// FixInput is one position report.
type FixInput struct {
	Lat       float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lon       float64    `json:"lon" validate:"gte=-180,lte=180"`
	Bearing   *float64   `json:"bearing,omitempty" validate:"omitempty,gte=0,lt=360"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// MaxFixBatch bounds the number of fixes accepted in one request.
const MaxFixBatch = 500

// FixBatchRequest is the batch form of POST /v1/sessions/{id}/fixes. A bare
// FixInput object is accepted too.
type FixBatchRequest struct {
	Fixes []FixInput `json:"fixes" validate:"required,min=1,max=500,dive"`
}

// SessionList is the response of GET /v1/sessions.
type SessionList struct {
	Items []session.Status `json:"items"`
	Count int              `json:"count"`
}

// InstructionList is the response of GET /v1/sessions/{id}/instructions.
type InstructionList struct {
	SessionID string                    `json:"session_id"`
	Items     []session.InstructionView `json:"items"`
}
