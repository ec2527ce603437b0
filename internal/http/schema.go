package http

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Schemas are the compiled request body schemas.
type Schemas struct {
	Account *gojsonschema.Schema
	Commit  *gojsonschema.Schema
	Budget  *gojsonschema.Schema
}

// LoadSchemas compiles the embedded schemas.
func LoadSchemas() (*Schemas, error) {
	s := &Schemas{}
	for name, dst := range map[string]**gojsonschema.Schema{
		"account": &s.Account,
		"commit":  &s.Commit,
		"budget":  &s.Budget,
	} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", name, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		*dst = compiled
	}
	return s, nil
}

// bindValidated reads the body, checks it against schema and decodes it
// into dst. On failure it writes the response and returns false.
func bindValidated(c *gin.Context, schema *gojsonschema.Schema, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "could not read request body")
		return false
	}
	if len(body) > maxBodyBytes {
		abortWithError(c, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
		return false
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "request body is not valid JSON")
		return false
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			details = append(details, e.String())
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "request body does not match schema",
			"code":    codeSchemaInvalid,
			"details": details,
		})
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "request body could not be decoded")
		return false
	}
	return true
}
