package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIDocs serves an OpenAPI document and a Swagger UI page for it.
type APIDocs struct {
	Title string
	Spec  []byte
}

// SpecHandler serves the raw OpenAPI YAML.
func (d APIDocs) SpecHandler(c *gin.Context) {
	if len(d.Spec) == 0 {
		c.String(http.StatusNotFound, "OpenAPI spec not loaded")
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", d.Spec)
}

// UIHandler serves a Swagger UI page that loads specURL.
func (d APIDocs) UIHandler(specURL string) gin.HandlerFunc {
	page := []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>` + d.Title + `</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '` + specURL + `', dom_id: '#swagger-ui'});
  </script>
</body>
</html>`)
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}
