package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a Swagger UI page and the OpenAPI document of the
// posts API at /swagger/index.html and /swagger/doc.json.
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>postboard API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "postboard", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "PostInput": { "type": "object", "properties": {
        "title": { "type": "string" },
        "content": { "type": "string" },
        "fileUrl": { "oneOf": [ { "type": "array", "items": { "type": "string" } }, { "type": "string" } ] },
        "imageUrl": { "type": "string", "deprecated": true }
      } },
      "Post": { "type": "object", "properties": {
        "_id": { "type": "string" },
        "user": { "type": "string" },
        "number": { "type": "integer" },
        "title": { "type": "string" },
        "content": { "type": "string" },
        "fileUrl": { "type": "array", "items": { "type": "string" } },
        "createdAt": { "type": "string", "format": "date-time" },
        "updatedAt": { "type": "string", "format": "date-time" }
      } },
      "Error": { "type": "object", "properties": { "error": { "type": "string" } } }
    }
  },
  "paths": {
    "/api/posts": {
      "get": { "summary": "List all posts, newest first", "responses": { "200": { "description": "posts" } } },
      "post": { "summary": "Create a post", "security": [ { "bearer": [] } ],
        "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/PostInput" } } } },
        "responses": { "201": { "description": "created" }, "401": { "description": "unauthenticated" } } }
    },
    "/api/posts/my": {
      "get": { "summary": "List the caller's posts", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "posts" } } }
    },
    "/api/posts/{id}": {
      "get": { "summary": "Get a post", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "post" }, "400": { "description": "invalid id" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update a post; objects no longer referenced are deleted", "security": [ { "bearer": [] } ],
        "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/PostInput" } } } },
        "responses": { "200": { "description": "updated post" }, "403": { "description": "not the owner" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a post and its objects", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "ok" }, "403": { "description": "not the owner" }, "404": { "description": "not found" } } }
    },
    "/api/admin/posts": {
      "get": { "summary": "Page through all posts (admin)", "security": [ { "bearer": [] } ],
        "parameters": [
          { "name": "page", "in": "query", "schema": { "type": "integer" } },
          { "name": "size", "in": "query", "schema": { "type": "integer" } },
          { "name": "user", "in": "query", "schema": { "type": "string" } },
          { "name": "q", "in": "query", "schema": { "type": "string" } }
        ],
        "responses": { "200": { "description": "page" }, "403": { "description": "not an admin" } } }
    },
    "/api/admin/posts/{id}": {
      "delete": { "summary": "Delete any post (admin)", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "ok" } } }
    },
    "/api/admin/sweep": {
      "post": { "summary": "Delete unreferenced objects (admin)", "security": [ { "bearer": [] } ],
        "parameters": [ { "name": "dryRun", "in": "query", "schema": { "type": "boolean" } } ],
        "responses": { "200": { "description": "sweep report" } } }
    },
    "/api/admin/sweep/last": {
      "get": { "summary": "Most recent sweep run (admin)", "security": [ { "bearer": [] } ],
        "responses": { "200": { "description": "run record" }, "404": { "description": "no run yet" } } }
    },
    "/api/uploads/presign": {
      "post": { "summary": "Presign an upload", "security": [ { "bearer": [] } ],
        "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "filename": { "type": "string" }, "contentType": { "type": "string" } } } } } },
        "responses": { "200": { "description": "key, uploadUrl and url" } } },
      "get": { "summary": "Presign a download", "security": [ { "bearer": [] } ],
        "parameters": [ { "name": "key", "in": "query", "required": true, "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "signed url" } } }
    },
    "/api/auth/me": {
      "get": { "summary": "Get user info", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "user or claims" } } }
    },
    "/api/auth/logout": {
      "post": { "summary": "Revoke the presented access token", "security": [ { "bearer": [] } ], "responses": { "200": { "description": "logged out" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
