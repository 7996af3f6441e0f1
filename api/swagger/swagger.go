package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Openfolio Archive API",
        "description": "Archival pipeline bridging portfolio entries to the long-term archive service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Archival", "description": "Entry validation, submission and status"},
        {"name": "Receipts", "description": "Archival receipt downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/entries/{id}/archive/validate": {
            "post": {
                "tags": ["Archival"],
                "summary": "Dry-run validation against the archive schema",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ValidationResponse"}}
                }
            }
        },
        "/entries/{id}/archive": {
            "post": {
                "tags": ["Archival"],
                "summary": "Queue archival of an entry's media",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ArchiveRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ValidationResponse"}},
                    "409": {"description": "Already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/entries/{id}/archive/status": {
            "get": {
                "tags": ["Archival"],
                "summary": "Archival status of an entry and its media",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EntryStatusResponse"}}
                }
            }
        },
        "/entries/{id}/archive/receipt": {
            "get": {
                "tags": ["Receipts"],
                "summary": "Signed download link for the archival receipt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No receipt available"}
                }
            }
        },
        "/receipts/download": {
            "get": {
                "tags": ["Receipts"],
                "summary": "Download a receipt PDF via signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/media/{id}/archive/retry": {
            "post": {
                "tags": ["Archival"],
                "summary": "Re-queue an errored media asset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "409": {"description": "Media is not in an error state"}
                }
            }
        }
    },
    "definitions": {
        "ArchiveRequest": {
            "type": "object",
            "properties": {
                "mediaIds": {
                    "type": "array",
                    "items": {"type": "string"}
                }
            }
        },
        "ValidationResponse": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "errors": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "array",
                        "items": {"type": "string"}
                    }
                }
            }
        },
        "MediaStatusResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "archiveId": {"type": "string"},
                "archiveUri": {"type": "string"},
                "archiveDate": {"type": "string"},
                "error": {"type": "string"},
                "errorClass": {"type": "string"}
            }
        },
        "EntryStatusResponse": {
            "type": "object",
            "properties": {
                "entryId": {"type": "string"},
                "status": {"type": "string"},
                "archiveId": {"type": "string"},
                "archiveUri": {"type": "string"},
                "archiveDate": {"type": "string"},
                "media": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/MediaStatusResponse"}
                }
            }
        },
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
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
