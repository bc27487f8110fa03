// Package docs registers the swagger spec served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "netmon Maintainers",
            "url": "https://github.com/raysh454/netmon"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["health"], "summary": "Liveness and counters", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}}}
        },
        "/requests": {
            "get": {"tags": ["requests"], "summary": "List captured requests", "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "comma separated filter types", "name": "type", "in": "query"},
                    {"type": "string", "description": "filter text", "name": "q", "in": "query"},
                    {"type": "string", "description": "sort column", "name": "sort", "in": "query"},
                    {"type": "boolean", "description": "descending", "name": "desc", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "delete": {"tags": ["requests"], "summary": "Clear the request list", "responses": {"204": {"description": "No Content"}}}
        },
        "/requests/{id}": {
            "get": {"tags": ["requests"], "summary": "Get one request", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "request id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/requests/{id}/redirects": {
            "get": {"tags": ["requests"], "summary": "Redirect chain a request belongs to, origin first", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "request id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/compare": {
            "get": {"tags": ["requests"], "summary": "Diff two requests", "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "base request id", "name": "base", "in": "query", "required": true},
                    {"type": "string", "description": "head request id", "name": "head", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/har": {
            "get": {"tags": ["requests"], "summary": "Export the request list as HAR 1.2", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/panel": {
            "get": {"tags": ["panel"], "summary": "Rendered request list", "produces": ["text/html"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/batch": {
            "post": {"tags": ["panel"], "summary": "Enable or disable action batching", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.BatchRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/recording": {
            "post": {"tags": ["panel"], "summary": "Pause or resume capture", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.RecordingRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/sort": {
            "post": {"tags": ["panel"], "summary": "Sort the request list", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.SortRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/filter": {
            "post": {"tags": ["panel"], "summary": "Toggle a filter type or set the filter text", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.FilterRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/select": {
            "post": {"tags": ["panel"], "summary": "Select a request row", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.SelectRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/load": {
            "post": {"tags": ["panel"], "summary": "Load a page through a monitored tab", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.LoadRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "502": {"description": "Bad Gateway"}}}
        },
        "/sessions": {
            "get": {"tags": ["archive"], "summary": "List archived capture sessions, newest first", "produces": ["application/json"],
                "parameters": [{"type": "integer", "description": "maximum sessions", "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/sessions/{id}/requests": {
            "get": {"tags": ["archive"], "summary": "Requests archived in a session", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "session id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/sessions/{id}/har": {
            "get": {"tags": ["archive"], "summary": "Export an archived session as HAR 1.2", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "session id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/checks": {
            "get": {"tags": ["checks"], "summary": "List check jobs, newest first", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["checks"], "summary": "Run scenario checks in the background", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/server.StartChecksRequest"}}],
                "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}}}
        },
        "/checks/{jobID}": {
            "get": {"tags": ["checks"], "summary": "Get a check job", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["checks"], "summary": "Cancel a running check job",
                "parameters": [{"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}
        }
    },
    "definitions": {
        "server.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string", "example": "not found"}}},
        "server.HealthResponse": {"type": "object", "properties": {
            "status": {"type": "string", "example": "ok"},
            "recording": {"type": "boolean"},
            "requests": {"type": "integer"},
            "session_id": {"type": "string"},
            "proxy_addr": {"type": "string"}}},
        "server.BatchRequest": {"type": "object", "properties": {"enabled": {"type": "boolean", "example": false}}},
        "server.RecordingRequest": {"type": "object", "properties": {"paused": {"type": "boolean", "example": true}}},
        "server.SortRequest": {"type": "object", "properties": {"key": {"type": "string", "example": "status"}}},
        "server.FilterRequest": {"type": "object", "properties": {"type": {"type": "string", "example": "xhr"}, "text": {"type": "string", "example": "method:POST"}}},
        "server.SelectRequest": {"type": "object", "properties": {"id": {"type": "string"}}},
        "server.LoadRequest": {"type": "object", "properties": {"url": {"type": "string"}}},
        "server.StartChecksRequest": {"type": "object", "properties": {"scenarios": {"type": "array", "items": {"type": "string"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "netmon API",
	Description:      "Request list, capture controls and check jobs of the netmon network monitor.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
