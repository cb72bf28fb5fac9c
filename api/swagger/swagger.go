package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MeasureMe Record Service",
        "description": "Student roster, enrollment images and height/weight history",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Students", "description": "Student records with profile and training images"},
        {"name": "Measurements", "description": "Height and weight history"},
        {"name": "Media", "description": "Signed access to stored images"}
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
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/api/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students in insertion order",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string", "description": "Name or roll number, case-insensitive"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/StudentListEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register student",
                "consumes": ["multipart/form-data", "application/json"],
                "parameters": [
                    {"name": "name", "in": "formData", "type": "string", "required": true},
                    {"name": "roll_number", "in": "formData", "type": "string", "required": true},
                    {"name": "standard", "in": "formData", "type": "string"},
                    {"name": "division", "in": "formData", "type": "string"},
                    {"name": "height", "in": "formData", "type": "number"},
                    {"name": "weight", "in": "formData", "type": "number"},
                    {"name": "profile_photo", "in": "formData", "type": "file"},
                    {"name": "training_images", "in": "formData", "type": "file", "description": "Repeat the part once per image"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/StudentEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Roll number taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/StudentEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "description": "Only sent fields change. profile_photo replaces the stored one; training_images are appended.",
                "consumes": ["multipart/form-data", "application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "name", "in": "formData", "type": "string"},
                    {"name": "roll_number", "in": "formData", "type": "string"},
                    {"name": "standard", "in": "formData", "type": "string"},
                    {"name": "division", "in": "formData", "type": "string"},
                    {"name": "height", "in": "formData", "type": "number"},
                    {"name": "weight", "in": "formData", "type": "number"},
                    {"name": "profile_photo", "in": "formData", "type": "file"},
                    {"name": "training_images", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/StudentEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete student with images and history",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/measurements": {
            "get": {
                "tags": ["Measurements"],
                "summary": "List measurements oldest first",
                "parameters": [
                    {"name": "student", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Measurements"],
                "summary": "Record measurement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateMeasurementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown student", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/media/{token}": {
            "get": {
                "tags": ["Media"],
                "summary": "Fetch a stored image",
                "produces": ["image/jpeg", "image/png", "image/webp", "image/gif"],
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Image bytes"},
                    "404": {"description": "Unknown or expired token"}
                }
            }
        }
    },
    "definitions": {
        "Student": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "roll_number": {"type": "string"},
                "standard": {"type": "string"},
                "division": {"type": "string"},
                "profile_photo": {"type": "string", "x-nullable": true},
                "height": {"type": "number", "x-nullable": true},
                "weight": {"type": "number", "x-nullable": true},
                "training_images": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/TrainingImage"}
                },
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "TrainingImage": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "image": {"type": "string"}
            }
        },
        "CreateMeasurementRequest": {
            "type": "object",
            "required": ["student_id", "height", "weight"],
            "properties": {
                "student_id": {"type": "string"},
                "height": {"type": "number"},
                "weight": {"type": "number"},
                "timestamp": {"type": "string", "format": "date-time"}
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
        },
        "StudentEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/Student"}
            }
        },
        "StudentListEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/Student"}
                },
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
