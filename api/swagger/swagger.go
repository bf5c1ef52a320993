package swagger

import (
	"strings"

	"github.com/swaggo/swag"
)

// Registered swagger instances, one per deployable.
const (
	InstanceEnrollment = "enrollment"
	InstanceGrading    = "grading"
)

const sharedDefinitions = `
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }`

const sharedPaths = `
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "{{PREFIX}}/admin/reconciliation": {
            "get": {
                "tags": ["Admin"],
                "summary": "List reconciliation journal entries",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }`

type swaggerDoc struct {
	template string
	prefix   string
}

// ReadDoc returns the Swagger document with the route prefix applied.
func (s *swaggerDoc) ReadDoc() string {
	doc := strings.ReplaceAll(s.template, "{{SHARED_PATHS}}", sharedPaths)
	doc = strings.ReplaceAll(doc, "{{SHARED_DEFINITIONS}}", sharedDefinitions)
	return strings.ReplaceAll(doc, "{{PREFIX}}", s.prefix)
}

var docs = map[string]*swaggerDoc{
	InstanceEnrollment: {template: enrollmentTemplate, prefix: "/api/v1"},
	InstanceGrading:    {template: gradingTemplate, prefix: "/api/v1"},
}

// SetPrefix rewrites the documented route prefix of an instance to match API_PREFIX.
func SetPrefix(instance, prefix string) {
	if doc, ok := docs[instance]; ok {
		doc.prefix = strings.TrimRight(prefix, "/")
	}
}

func init() {
	for name, doc := range docs {
		swag.Register(name, doc)
	}
}
