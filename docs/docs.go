// Package docs holds the swagger document of the books api. It follows
// the swag layout and must be kept in line with the handlers annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/book": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "List all books",
                "parameters": [
                    {
                        "enum": ["name", "-name", "creationTime", "-creationTime"],
                        "type": "string",
                        "description": "Ordering",
                        "name": "sort",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {"$ref": "#/definitions/main.Book"}
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "post": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Create a book",
                "parameters": [
                    {
                        "maxLength": 128,
                        "type": "string",
                        "description": "Book name",
                        "name": "name",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/main.Book"},
                        "headers": {
                            "Location": {"type": "string", "description": "/book/{id}"}
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/book/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Get a book",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.Book"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "put": {
                "description": "The expected concurrency stamp comes from the If-Match header or the concurrencyStamp query.",
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Rename a book",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "id", "in": "path", "required": true},
                    {"maxLength": 128, "type": "string", "description": "Book name", "name": "name", "in": "query", "required": true},
                    {"type": "string", "description": "Expected concurrency stamp", "name": "concurrencyStamp", "in": "query"},
                    {"type": "string", "description": "Expected concurrency stamp", "name": "If-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.Book"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            },
            "delete": {
                "tags": ["books"],
                "summary": "Delete a book",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.APIError"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Service liveness",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        }
    },
    "definitions": {
        "main.APIError": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "requestid": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "main.Book": {
            "type": "object",
            "properties": {
                "concurrencyStamp": {"type": "string"},
                "creationTime": {"type": "string"},
                "creatorId": {"type": "string"},
                "extraProperties": {"type": "object", "additionalProperties": true},
                "id": {"type": "string"},
                "lastModificationTime": {"type": "string"},
                "lastModifierId": {"type": "string"},
                "name": {"type": "string", "maxLength": 128}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Books API",
	Description:      "Books catalog with optimistic concurrency on updates.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InfoInstanceName, SwaggerInfo)
}
