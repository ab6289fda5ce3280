package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
)

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ErrorHandler renders the last error a handler attached with c.Error as
// the JSON error envelope and logs it with its severity.
func ErrorHandler(exposeStack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respondError(c, c.Errors.Last().Err, exposeStack)
	}
}

func respondError(c *gin.Context, err error, exposeStack bool) {
	e := classify(err)

	log := logger.FromContext(c.Request.Context())
	attrs := []any{
		"severity", e.Kind.Severity(),
		"type", e.Kind,
		"code", e.Code,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", GetRequestID(c),
		"error", err.Error(),
	}
	if uid := CurrentIdentity(c).UserID(); uid != 0 {
		attrs = append(attrs, "user_id", uid)
	}
	log.Log(c.Request.Context(), levelFor(e.Kind.Severity()), "request failed", attrs...)

	body := gin.H{
		"success":   false,
		"message":   e.Message,
		"type":      e.Kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"requestId": GetRequestID(c),
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	if exposeStack && len(e.Stack()) > 0 {
		body["stack"] = string(e.Stack())
	}
	c.JSON(e.Status(), body)
}

// classify maps binding, JSON and unknown errors onto the taxonomy.
func classify(err error) *apperr.Error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		details := make([]FieldError, 0, len(ve))
		for _, fe := range ve {
			details = append(details, FieldError{
				Field:   jsonFieldName(fe),
				Rule:    fe.Tag(),
				Message: fieldMessage(fe),
			})
		}
		return apperr.New(apperr.KindValidation, "INVALID_INPUT", "validation failed").WithDetails(details)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.New(apperr.KindValidation, "INVALID_JSON", "request body is not valid JSON")
	case errors.As(err, &typeErr):
		return apperr.New(apperr.KindValidation, "INVALID_JSON", "field "+typeErr.Field+" has the wrong type")
	}
	return apperr.From(err)
}

// Validation errors name fields by their json key, as the client sent them.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonTagName)
	}
}

func jsonTagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		name, _, _ = strings.Cut(f.Tag.Get("form"), ",")
	}
	if name == "-" {
		return ""
	}
	return name
}

// jsonFieldName drops the top-level struct name from the namespace, leaving
// e.g. "order_items[0].quantity".
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func levelFor(s apperr.Severity) slog.Level {
	switch s {
	case apperr.SeverityLow:
		return slog.LevelInfo
	case apperr.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
