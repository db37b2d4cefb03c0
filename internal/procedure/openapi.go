package procedure

import (
	"net/http"
	"strings"
)

type Info struct {
	Title       string
	Version     string
	Description string
	// ServerURL is the REST base path the document's paths are relative to.
	ServerURL string
	// CookieName names the session cookie in the cookie security scheme.
	CookieName string
}

// OpenAPI builds an OpenAPI 3.1 document describing the REST-exposed
// procedures of routers. RPC-only procedures are omitted.
func OpenAPI(info Info, routers ...*Router) map[string]any {
	paths := map[string]any{}
	var tags []any

	for _, router := range routers {
		tags = append(tags, map[string]any{"name": router.Name()})
		for _, p := range router.Procedures() {
			def := p.Definition()
			if def.Route == nil {
				continue
			}
			item, _ := paths[def.Route.Path].(map[string]any)
			if item == nil {
				item = map[string]any{}
				paths[def.Route.Path] = item
			}
			item[strings.ToLower(def.Route.Method)] = operation(router, p)
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       info.Title,
			"version":     info.Version,
			"description": info.Description,
		},
		"servers": []any{map[string]any{"url": info.ServerURL}},
		"tags":    tags,
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"cookieAuth": map[string]any{"type": "apiKey", "in": "cookie", "name": info.CookieName},
				"bearerAuth": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"schemas": map[string]any{
				"Problem": problemSchema(),
			},
		},
	}
}

func operation(router *Router, p Procedure) map[string]any {
	def := p.Definition()
	op := map[string]any{
		"operationId": router.QualifiedName(p),
		"tags":        []any{router.Name()},
		"responses": map[string]any{
			"200": map[string]any{
				"description": "OK",
				"content":     map[string]any{"application/json": map[string]any{"schema": def.OutputSchema}},
			},
			"400": problemResponse("Input validation failed"),
			"500": problemResponse("Internal server error"),
		},
	}
	if def.Summary != "" {
		op["summary"] = def.Summary
	}
	if def.Protected {
		op["security"] = []any{
			map[string]any{"cookieAuth": []any{}},
			map[string]any{"bearerAuth": []any{}},
		}
		op["responses"].(map[string]any)["401"] = problemResponse("Unauthorized")
	}
	if def.Route.Method != http.MethodGet && def.Route.Method != http.MethodHead {
		op["requestBody"] = map[string]any{
			"required": true,
			"content":  map[string]any{"application/json": map[string]any{"schema": def.InputSchema}},
		}
	}
	return op
}

func problemResponse(description string) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/problem+json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Problem"},
			},
		},
	}
}

func problemSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":     map[string]any{"type": "string"},
			"title":    map[string]any{"type": "string"},
			"status":   map[string]any{"type": "integer"},
			"detail":   map[string]any{"type": "string"},
			"instance": map[string]any{"type": "string"},
			"code":     map[string]any{"type": "string"},
		},
		"required": []any{"type", "title", "status", "code"},
	}
}
