// Package docs registers a hand-written swagger spec with swaggo/swag, in
// the shape `swag init` normally produces, so swaggo's http-swagger handler
// finds it at runtime. It carries only the API info block: its paths
// object is empty, so the handlers' @-comments are not reflected in it.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {}
}`

// SwaggerInfo holds exported swagger info, populated by swag init, kept
// here by hand since the build pipeline that normally regenerates it is
// out of scope.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Multi-Tenant Task Scheduler API",
	Description:      "Admin API for tenant task settings, run-state, history, and commands.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
