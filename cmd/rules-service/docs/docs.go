// Package docs holds the swagger specification served at /swagger. Kept by
// hand in sync with the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "http://www.example.com/support",
            "email": "support@example.com"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/rules": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "List effective rules",
                "parameters": [
                    {"type": "string", "name": "userId", "in": "query"},
                    {"type": "string", "name": "orgId", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rules/global": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "List global rules with override status",
                "parameters": [
                    {"type": "string", "name": "userId", "in": "query"},
                    {"type": "string", "name": "orgId", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rules/global/{id}/override": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["overrides"],
                "summary": "Create a global rule override",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict"},
                    "422": {"description": "Unknown rule id"}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["overrides"],
                "summary": "Delete a global rule override",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "scope", "in": "query", "required": true},
                    {"type": "string", "name": "scopeId", "in": "query", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/rules/custom": {
            "get": {
                "produces": ["application/json"],
                "tags": ["custom-rules"],
                "summary": "List custom rules",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custom-rules"],
                "summary": "Create a custom rule",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/rules/custom/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["custom-rules"],
                "summary": "Get a custom rule",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custom-rules"],
                "summary": "Update a custom rule",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["custom-rules"],
                "summary": "Delete a custom rule",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}
            }
        },
        "/rules/metadata": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "Get rule authoring metadata",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rules/summary": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "Get rule availability summary",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/evaluations": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["evaluations"],
                "summary": "Evaluate a batch of records",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/audit/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Get audit logs",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Dealguard Rules Service API",
	Description:      "REST API for pipeline hygiene rules: catalog, overrides, custom rules and batch evaluation",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
