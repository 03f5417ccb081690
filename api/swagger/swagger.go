package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Planidocs Exchange API",
        "description": "Shift exchange and proposal transaction engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Exchanges", "description": "Open marketplace shift listings"},
        {"name": "DirectExchanges", "description": "Peer-targeted exchange offers"},
        {"name": "Proposals", "description": "Counter-offers on direct exchanges"},
        {"name": "Periods", "description": "Planning period lifecycle"},
        {"name": "Planning", "description": "Worker shift assignments"},
        {"name": "History", "description": "Append-only exchange trail"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate the refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exchanges": {
            "get": {
                "tags": ["Exchanges"],
                "summary": "List marketplace listings",
                "parameters": [
                    {"name": "owner", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Exchanges"],
                "summary": "List an owned shift on the marketplace",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ListShiftPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already listed"},
                    "423": {"description": "Period gate closed"}
                }
            }
        },
        "/exchanges/{id}": {
            "get": {
                "tags": ["Exchanges"],
                "summary": "Get a listing",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Exchanges"],
                "summary": "Withdraw a listing",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "404": {"description": "Not found or no longer open"}
                }
            }
        },
        "/exchanges/{id}/interest": {
            "post": {
                "tags": ["Exchanges"],
                "summary": "Express interest in a listing",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Cannot express interest in own listing"}
                }
            }
        },
        "/exchanges/{id}/validate": {
            "post": {
                "tags": ["Exchanges"],
                "summary": "Validate a listing and move the shift (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateListingPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Listing no longer pending"}
                }
            }
        },
        "/exchanges/{id}/revert": {
            "post": {
                "tags": ["Exchanges"],
                "summary": "Revert a validated listing (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No validation to revert"}
                }
            }
        },
        "/direct-exchanges": {
            "get": {
                "tags": ["DirectExchanges"],
                "summary": "List direct exchanges",
                "parameters": [
                    {"name": "user", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["DirectExchanges"],
                "summary": "Open or update a peer-targeted offer",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDirectExchangePayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "423": {"description": "Period gate closed"}
                }
            }
        },
        "/direct-exchanges/{id}": {
            "get": {
                "tags": ["DirectExchanges"],
                "summary": "Get a direct exchange",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["DirectExchanges"],
                "summary": "Cancel an open direct exchange",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "409": {"description": "Exchange no longer open"}
                }
            }
        },
        "/direct-exchanges/{id}/proposals": {
            "post": {
                "tags": ["Proposals"],
                "summary": "Create, replace or withdraw a counter-offer",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateProposalPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Exchange no longer open"}
                }
            }
        },
        "/proposals": {
            "get": {
                "tags": ["Proposals"],
                "summary": "List proposals",
                "parameters": [
                    {"name": "exchange", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "direction", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/proposals/{id}/accept": {
            "post": {
                "tags": ["Proposals"],
                "summary": "Accept a proposal and execute the exchange",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Offer or proposal no longer available"},
                    "423": {"description": "Period gate closed"}
                }
            }
        },
        "/proposals/{id}/reject": {
            "post": {
                "tags": ["Proposals"],
                "summary": "Reject a proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Rejected"}
                }
            }
        },
        "/proposals/{id}": {
            "delete": {
                "tags": ["Proposals"],
                "summary": "Cancel an own proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"}
                }
            }
        },
        "/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "List planning periods",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Periods"],
                "summary": "Open a planning period (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePeriodPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/periods/{id}/phase": {
            "post": {
                "tags": ["Periods"],
                "summary": "Advance a period phase (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvancePhasePayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Backward phase move without force"}
                }
            }
        },
        "/periods/{id}/merge": {
            "post": {
                "tags": ["Periods"],
                "summary": "Merge a completed period into production (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/planning": {
            "get": {
                "tags": ["Planning"],
                "summary": "Get own planning",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/planning/import": {
            "post": {
                "tags": ["Planning"],
                "summary": "Import a worker planning window (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportPlanningPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history": {
            "get": {
                "tags": ["History"],
                "summary": "List exchange history (admin)",
                "parameters": [
                    {"name": "source", "in": "query", "type": "string"},
                    {"name": "worker", "in": "query", "type": "string"},
                    {"name": "event", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history/me/conflicts": {
            "get": {
                "tags": ["History"],
                "summary": "Get competing demand on own slots",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ListShiftPayload": {
            "type": "object",
            "required": ["date", "period"],
            "properties": {
                "date": {"type": "string", "example": "2026-09-14"},
                "period": {"type": "string", "enum": ["MORNING", "AFTERNOON", "EVENING"]},
                "comment": {"type": "string"}
            }
        },
        "ValidateListingPayload": {
            "type": "object",
            "required": ["chosen_worker_id"],
            "properties": {
                "chosen_worker_id": {"type": "string"}
            }
        },
        "CreateDirectExchangePayload": {
            "type": "object",
            "required": ["date", "period", "operation_types"],
            "properties": {
                "date": {"type": "string"},
                "period": {"type": "string"},
                "operation_types": {
                    "type": "array",
                    "items": {"type": "string", "enum": ["GIVE", "EXCHANGE", "REPLACEMENT"]}
                },
                "comment": {"type": "string"}
            }
        },
        "CreateProposalPayload": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["TAKE", "EXCHANGE", "BOTH", "REPLACEMENT", ""]},
                "proposed_shifts": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "date": {"type": "string"},
                            "period": {"type": "string"}
                        }
                    }
                },
                "comment": {"type": "string"}
            }
        },
        "CreatePeriodPayload": {
            "type": "object",
            "required": ["name", "start_date", "end_date"],
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"}
            }
        },
        "AdvancePhasePayload": {
            "type": "object",
            "required": ["phase"],
            "properties": {
                "phase": {"type": "string", "enum": ["SUBMISSION", "DISTRIBUTION", "COMPLETED"]},
                "force": {"type": "boolean"}
            }
        },
        "ImportPlanningPayload": {
            "type": "object",
            "required": ["worker_id", "from", "to"],
            "properties": {
                "worker_id": {"type": "string"},
                "from": {"type": "string"},
                "to": {"type": "string"},
                "shifts": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "date": {"type": "string"},
                            "period": {"type": "string"},
                            "shift_type": {"type": "string"},
                            "time_slot": {"type": "string"}
                        }
                    }
                }
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
