package handlers

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/prediction"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the embedded page templates. Templates are named by
// file name, e.g. "crop.html".
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

var (
	errUploadTooLarge = errors.New("uploaded file is too large")
	errBodyTooLarge   = errors.New("request body is too large")
)

// errorStatus maps err to an HTTP status. fallback is the endpoint's
// failure status for anything that is not a client error.
func errorStatus(err error, fallback int) int {
	if prediction.IsValidation(err) {
		return http.StatusBadRequest
	}
	if isTooLarge(err) {
		return http.StatusRequestEntityTooLarge
	}
	return fallback
}

// errorMessage echoes a validation failure without the operation chain
// that wrapped it.
func errorMessage(err error) string {
	var vErr *prediction.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	if errors.Is(err, errBodyTooLarge) {
		return errBodyTooLarge.Error()
	}
	if isTooLarge(err) {
		return errUploadTooLarge.Error()
	}
	return err.Error()
}

func isTooLarge(err error) bool {
	if errors.Is(err, errUploadTooLarge) || errors.Is(err, errBodyTooLarge) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

func jsonError(c *gin.Context, err error, fallback int) {
	c.JSON(errorStatus(err, fallback), gin.H{"error": errorMessage(err)})
}

func pageError(c *gin.Context, page string, err error) {
	ctx := pageDefaults(page)
	ctx["error"] = errorMessage(err)
	c.HTML(errorStatus(err, http.StatusBadRequest), page, ctx)
}

// pageDefaults is the context every render of page needs.
func pageDefaults(page string) gin.H {
	ctx := gin.H{}
	if page == "crop.html" {
		ctx["fields"] = features.CropFields
		ctx["crops"] = prediction.CropNames()
	}
	return ctx
}

// pageContext keeps the typed result for template consumption.
func pageContext(page string, result prediction.Result) gin.H {
	ctx := pageDefaults(page)
	switch r := result.(type) {
	case prediction.CropLabel:
		ctx["result"] = fmt.Sprintf("%s is the best crop to be cultivated right there.", r.Name)
	case prediction.YieldEstimate:
		ctx["prediction"] = r.Value
		ctx["hasPrediction"] = true
	case prediction.DiseaseDiagnosis:
		ctx["result"] = true
		ctx["prediction"] = r
	}
	return ctx
}

// jsonPayload serialises the variant's fields for the API.
func jsonPayload(result prediction.Result) gin.H {
	switch r := result.(type) {
	case prediction.CropLabel:
		return gin.H{"prediction": r.Name}
	case prediction.YieldEstimate:
		return gin.H{"prediction": r.Value}
	case prediction.DiseaseDiagnosis:
		return gin.H{"prediction": r, "success": true}
	}
	return gin.H{"prediction": result}
}
