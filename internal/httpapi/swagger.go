//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo describes the API for the UI. Paths are kept in step with the
// handler annotations; regenerate with swag init when they change.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "modelcore API",
	Description:      "Model lifecycle and prioritized inference for local AI backends.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the UI at /swagger/ and the document at /swagger/doc.json.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {
            "get": {"tags": ["models"], "summary": "List resident models", "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["models"],
                "summary": "Load a model",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.ModelDescriptor"}}],
                "responses": {
                    "200": {"description": "already resident", "schema": {"$ref": "#/definitions/types.LoadResponse"}},
                    "201": {"description": "loaded", "schema": {"$ref": "#/definitions/types.LoadResponse"}},
                    "503": {"description": "insufficient resources", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/models/{id}": {
            "get": {"tags": ["models"], "summary": "Describe a resident model", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "not loaded"}}},
            "delete": {"tags": ["models"], "summary": "Unload a model", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}, {"in": "query", "name": "force", "type": "boolean"}], "responses": {"204": {"description": "unloaded"}, "409": {"description": "busy"}}}
        },
        "/catalog": {
            "get": {"tags": ["models"], "summary": "List loadable models", "responses": {"200": {"description": "OK"}}}
        },
        "/infer": {
            "post": {
                "tags": ["inference"],
                "summary": "Run one inference",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not loaded"}, "503": {"description": "busy"}}
            }
        },
        "/infer/batch": {
            "post": {"tags": ["inference"], "summary": "Run many inferences", "responses": {"200": {"description": "OK"}}}
        },
        "/stats": {
            "get": {"tags": ["observability"], "summary": "Registry and pipeline statistics", "responses": {"200": {"description": "OK"}}}
        },
        "/events": {
            "get": {"tags": ["observability"], "summary": "Stream registry events", "produces": ["application/x-ndjson"], "responses": {"200": {"description": "NDJSON"}}}
        }
    },
    "definitions": {
        "types.ModelDescriptor": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "category": {"type": "string"},
                "path": {"type": "string"},
                "quantization": {"type": "string"},
                "size": {"type": "string"},
                "context_size": {"type": "integer"},
                "batch_size": {"type": "integer"},
                "pinned": {"type": "boolean"}
            }
        },
        "types.LoadResponse": {
            "type": "object",
            "properties": {"model_id": {"type": "string"}, "session_id": {"type": "string"}, "reused": {"type": "boolean"}}
        },
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "kind": {"type": "string"},
                "input": {"type": "object"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}, "temporary": {"type": "boolean"}}
        }
    }
}`
