// Package docs provides generated OpenAPI documentation.
//
// pagecap API
//
//	@title			pagecap API
//	@version		1.0
//	@description	Capture e-reader pages from a Chrome tab into PDF documents.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/pagecap
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

import _ "embed"

//go:generate swag init -g doc.go -d .,../internal/server/endpoints -o ./swagger --parseDependency --parseInternal --outputTypes json

//go:embed swagger/swagger.json
var swaggerJSON []byte

// SwaggerJSON returns the OpenAPI spec built into the binary.
func SwaggerJSON() []byte {
	return swaggerJSON
}
