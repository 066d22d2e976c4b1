// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

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
        "/boards/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Boards"],
                "summary": "Get a board",
                "parameters": [{"type": "string", "description": "Board ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.Board"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/boards/{id}/issues": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Issues"],
                "summary": "Create an issue",
                "parameters": [
                    {"type": "string", "description": "Board ID", "name": "id", "in": "path", "required": true},
                    {"description": "Issue", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.CreateIssueRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/api.Issue"}}}
            }
        },
        "/boards/{id}/issues/reorder": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Issues"],
                "summary": "Reorder the issues of a column",
                "parameters": [
                    {"type": "string", "description": "Board ID", "name": "id", "in": "path", "required": true},
                    {"description": "New order", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.ReorderRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ReorderResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/conflict.Response"}}
                }
            }
        },
        "/boards/ws": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Realtime"],
                "summary": "Board realtime socket",
                "parameters": [{"type": "string", "description": "JWT when headers cannot be set", "name": "token", "in": "query"}],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/issues/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Issues"],
                "summary": "Delete an issue",
                "parameters": [{"type": "string", "description": "Issue ID", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Issues"],
                "summary": "Update an issue",
                "parameters": [
                    {"type": "string", "description": "Issue ID", "name": "id", "in": "path", "required": true},
                    {"description": "Changes", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.UpdateIssueRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.Issue"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/conflict.Response"}}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Current user",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.User"}}}
            }
        }
    },
    "definitions": {
        "api.Board": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "ownerId": {"type": "string"},
                "columns": {"type": "array", "items": {"$ref": "#/definitions/api.Column"}},
                "issues": {"type": "array", "items": {"$ref": "#/definitions/api.Issue"}}
            }
        },
        "api.Column": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "position": {"type": "integer"},
                "orderVersion": {"type": "integer"}
            }
        },
        "api.Issue": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "boardId": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "status": {"type": "string"},
                "parentId": {"type": "string"},
                "position": {"type": "integer"},
                "version": {"type": "integer"},
                "updatedAt": {"type": "string"},
                "updatedBy": {"type": "string"}
            }
        },
        "api.CreateIssueRequest": {
            "type": "object",
            "required": ["status", "title"],
            "properties": {
                "title": {"type": "string", "maxLength": 200},
                "description": {"type": "string"},
                "status": {"type": "string"},
                "parentId": {"type": "string"}
            }
        },
        "api.ReorderRequest": {
            "type": "object",
            "required": ["columnId", "orderedIssueIds"],
            "properties": {
                "columnId": {"type": "string"},
                "orderedIssueIds": {"type": "array", "items": {"type": "string"}},
                "version": {"type": "integer", "minimum": 0}
            }
        },
        "api.ReorderResponse": {
            "type": "object",
            "properties": {
                "columnId": {"type": "string"},
                "orderVersion": {"type": "integer"}
            }
        },
        "api.UpdateIssueRequest": {
            "type": "object",
            "properties": {
                "version": {"type": "integer", "minimum": 0},
                "title": {"type": "string", "maxLength": 200, "minLength": 1},
                "description": {"type": "string"},
                "status": {"type": "string", "minLength": 1},
                "force": {"type": "boolean"}
            }
        },
        "api.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "api.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "conflict.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "resource": {"type": "string"},
                "currentVersion": {"type": "integer"},
                "yourVersion": {"type": "integer"},
                "lastUpdated": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Board Sync API",
	Description:      "Collaborative Kanban boards with optimistic updates and realtime board rooms.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
