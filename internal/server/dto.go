package server

import (
	"github.com/kemiz/fsgrid/internal/entity"
)

// FieldInfo describes one schema field.
type FieldInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

// StoreInfo is the response item of GET /api/v1/stores.
type StoreInfo struct {
	Name          string      `json:"name"`
	Size          int         `json:"size"`
	Schema        string      `json:"schema"`
	SchemaVersion int         `json:"schema_version"`
	Fields        []FieldInfo `json:"fields"`
}

// ErrorBody carries a failed request's code and message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Stores int    `json:"stores"`
	Size   int    `json:"size"`
}

// Error codes for failures that are not query errors.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL"
)

func storeInfo(name string, size int, s entity.Schema) StoreInfo {
	info := StoreInfo{
		Name:          name,
		Size:          size,
		Schema:        s.Name,
		SchemaVersion: s.Version,
		Fields:        make([]FieldInfo, len(s.Fields)),
	}
	for i, f := range s.Fields {
		info.Fields[i] = FieldInfo{Name: f.Name, Type: f.Type.String(), Indexed: f.Indexed}
	}
	return info
}
