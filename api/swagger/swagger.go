package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Facilitation API",
        "description": "Facilitator availability, schedule publication and swap coordination",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and account management"},
        {"name": "Availability", "description": "Conflict checks and roster availability"},
        {"name": "Unavailability", "description": "Facilitator unavailability records"},
        {"name": "Swaps", "description": "Assignment swap requests"},
        {"name": "Publication", "description": "Schedule publish and unpublish"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangePasswordRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/facilitators/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Check whether a facilitator is free for a time slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "start_time", "in": "query", "required": true, "type": "string"},
                    {"name": "end_time", "in": "query", "required": true, "type": "string"},
                    {"name": "exclude_session_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/available-facilitators": {
            "get": {
                "tags": ["Availability"],
                "summary": "List a session's roster annotated with availability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/facilitators/{id}/unavailability": {
            "get": {
                "tags": ["Unavailability"],
                "summary": "List a facilitator's unavailability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "include_system", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Unavailability"],
                "summary": "Declare unavailability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUnavailabilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate records"}
                }
            },
            "delete": {
                "tags": ["Unavailability"],
                "summary": "Remove every manual unavailability record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/facilitators/{id}/unavailability/recurring": {
            "post": {
                "tags": ["Unavailability"],
                "summary": "Expand a recurring unavailability rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRecurringRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/unavailability/{id}": {
            "put": {
                "tags": ["Unavailability"],
                "summary": "Update an unavailability record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateUnavailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "System-generated records cannot be edited"}
                }
            },
            "delete": {
                "tags": ["Unavailability"],
                "summary": "Delete an unavailability record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/units/{id}/unavailability": {
            "get": {
                "tags": ["Unavailability"],
                "summary": "List unavailability across a unit's roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swaps": {
            "get": {
                "tags": ["Swaps"],
                "summary": "List swaps where the caller is requester or target",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Swaps"],
                "summary": "Request a direct transfer of an assignment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSwapRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Target unavailable or open swap exists"}
                }
            }
        },
        "/swaps/exchange": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Request a two-stage exchange of assignments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExchangeSwapRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swaps/{id}": {
            "get": {
                "tags": ["Swaps"],
                "summary": "Fetch one swap request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swaps/{id}/facilitator-response": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Respond to a swap awaiting the target facilitator",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SwapResponseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swaps/{id}/coordinator-response": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Resolve a swap awaiting coordinator review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SwapResponseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/swaps/{id}/review": {
            "post": {
                "tags": ["Swaps"],
                "summary": "Resolve a legacy single-stage pending swap",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SwapResponseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/units/{id}/swaps": {
            "get": {
                "tags": ["Swaps"],
                "summary": "List swaps touching a unit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/units/{id}/sessions": {
            "get": {
                "tags": ["Publication"],
                "summary": "List a unit's sessions with assignments",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/units/{id}/assignments": {
            "put": {
                "tags": ["Publication"],
                "summary": "Replace a draft unit's assignments",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceAssignmentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Schedule is published"}
                }
            }
        },
        "/units/{id}/schedule/publish": {
            "post": {
                "tags": ["Publication"],
                "summary": "Publish a unit's schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/PublishScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No assignments to publish"}
                }
            }
        },
        "/units/{id}/schedule/unpublish": {
            "post": {
                "tags": ["Publication"],
                "summary": "Revert a unit's schedule to draft",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-reports/{token}": {
            "get": {
                "tags": ["Publication"],
                "summary": "Download a published schedule report",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ChangePasswordRequest": {
            "type": "object",
            "properties": {
                "old_password": {"type": "string"},
                "new_password": {"type": "string"}
            },
            "required": ["old_password", "new_password"]
        },
        "TimeRange": {
            "type": "object",
            "properties": {
                "start_time": {"type": "string"},
                "end_time": {"type": "string"}
            },
            "required": ["start_time", "end_time"]
        },
        "CreateUnavailabilityRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "is_full_day": {"type": "boolean"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "time_ranges": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/TimeRange"}
                },
                "reason": {"type": "string"},
                "replace_existing": {"type": "boolean"}
            },
            "required": ["date"]
        },
        "UpdateUnavailabilityRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "is_full_day": {"type": "boolean"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "GenerateRecurringRequest": {
            "type": "object",
            "properties": {
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "pattern": {"type": "string", "enum": ["daily", "weekly", "monthly", "custom"]},
                "interval": {"type": "integer"},
                "is_full_day": {"type": "boolean"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["start_date", "end_date", "pattern"]
        },
        "CreateSwapRequest": {
            "type": "object",
            "properties": {
                "assignment_id": {"type": "string"},
                "target_id": {"type": "string"},
                "reason": {"type": "string"},
                "has_discussed": {"type": "boolean"}
            },
            "required": ["assignment_id", "target_id", "has_discussed"]
        },
        "CreateExchangeSwapRequest": {
            "type": "object",
            "properties": {
                "assignment_id": {"type": "string"},
                "target_assignment_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["assignment_id", "target_assignment_id"]
        },
        "SwapResponseRequest": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"},
                "note": {"type": "string"}
            },
            "required": ["approve"]
        },
        "PublishScheduleRequest": {
            "type": "object",
            "properties": {
                "notify_facilitator_ids": {
                    "type": "array",
                    "items": {"type": "string"}
                },
                "generate_report": {"type": "boolean"}
            }
        },
        "ReplaceAssignmentsRequest": {
            "type": "object",
            "properties": {
                "assignments": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/AssignmentProposal"}
                }
            },
            "required": ["assignments"]
        },
        "AssignmentProposal": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "facilitator_id": {"type": "string"},
                "role": {"type": "string", "enum": ["lead", "support"]},
                "score": {"type": "number"}
            },
            "required": ["session_id", "facilitator_id", "role"]
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
