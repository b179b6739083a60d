package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Admission API",
        "description": "Admission intake, review and student conversion with chunked asset storage",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Admission", "description": "Applicant intake and review"},
        {"name": "Students", "description": "Student registry"},
        {"name": "Content", "description": "Articles, notices and galleries"},
        {"name": "Files", "description": "Stored blobs"},
        {"name": "Assets", "description": "Reference reconciliation and orphan cleanup"},
        {"name": "Payments", "description": "Payment status signals"}
    ],
    "paths": {
        "/admission": {
            "post": {
                "tags": ["Admission"],
                "summary": "Submit an admission request",
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [
                    {"name": "data", "in": "formData", "type": "string", "description": "JSON encoded SubmitAdmissionRequest"},
                    {"name": "documents", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Admission"],
                "summary": "List admission requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "comma separated statuses"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admission/{id}": {
            "get": {
                "tags": ["Admission"],
                "summary": "Get an admission request",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission/{id}/approve": {
            "post": {
                "tags": ["Admission"],
                "summary": "Approve a pending request and convert it to a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ApproveAdmissionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or duplicate conversion", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission/{id}/reject": {
            "post": {
                "tags": ["Admission"],
                "summary": "Reject a pending request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RejectAdmissionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "grade", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register a student manually",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get a student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete a student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/content": {
            "post": {
                "tags": ["Content"],
                "summary": "Create content",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [{"name": "data", "in": "formData", "type": "string", "description": "JSON encoded CreateContentRequest"}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/content/type/{type}": {
            "get": {
                "tags": ["Content"],
                "summary": "List content of a type",
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string", "enum": ["article", "notice", "gallery"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/content/{id}": {
            "get": {
                "tags": ["Content"],
                "summary": "Get content",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Content"],
                "summary": "Update content",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Content"],
                "summary": "Delete content",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/files/{id}": {
            "get": {
                "tags": ["Files"],
                "summary": "Stream a blob inline",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/files/download/{id}": {
            "get": {
                "tags": ["Files"],
                "summary": "Download a blob as an attachment",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/assets/reconcile": {
            "post": {
                "tags": ["Assets"],
                "summary": "Run a reconciliation pass",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Another pass is running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assets/reconcile/latest": {
            "get": {
                "tags": ["Assets"],
                "summary": "Latest reconciliation report",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "No report yet"}}
            }
        },
        "/assets/orphans/cleanup": {
            "post": {
                "tags": ["Assets"],
                "summary": "Report or delete orphan blobs",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/OrphanCleanupRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/payments/notifications": {
            "post": {
                "tags": ["Payments"],
                "summary": "Record a payment status signal",
                "parameters": [
                    {"name": "X-Notification-Token", "in": "header", "type": "string", "description": "Shared secret, required when PAYMENT_NOTIFICATION_TOKEN is set"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaymentNotification"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid notification token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown transaction", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Success could not be verified with the gateway", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ApproveAdmissionRequest": {
            "type": "object",
            "properties": {"adminNotes": {"type": "string"}}
        },
        "RejectAdmissionRequest": {
            "type": "object",
            "properties": {
                "adminNotes": {"type": "string"},
                "refundAmount": {"type": "integer"},
                "refundReason": {"type": "string"}
            }
        },
        "PaymentNotification": {
            "type": "object",
            "required": ["transactionId", "status"],
            "properties": {
                "transactionId": {"type": "string"},
                "status": {"type": "string", "enum": ["SUCCESS", "PENDING", "FAILED"]},
                "amount": {"type": "integer"}
            }
        },
        "CreateStudentRequest": {
            "type": "object",
            "required": ["firstName", "currentGrade"],
            "properties": {
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "currentGrade": {"type": "string"},
                "academicYear": {"type": "string"},
                "documents": {"type": "array", "items": {"$ref": "#/definitions/AssetReference"}}
            }
        },
        "AssetReference": {
            "type": "object",
            "properties": {
                "blobId": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "OrphanCleanupRequest": {
            "type": "object",
            "properties": {
                "grace": {"type": "string", "example": "24h"},
                "apply": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
