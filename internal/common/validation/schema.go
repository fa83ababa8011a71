package validation

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"tucomercio/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages returns "field: message" lines.
func (vr *ValidationResult) GetErrorMessages() []string {
	out := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return out
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, e := range vr.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validator holds compiled request schemas loaded from schemas/<name>.json.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{schemas: map[string]*gojsonschema.Schema{}}
}

func (v *Validator) schema(name string) (*gojsonschema.Schema, error) {
	v.mu.RLock()
	s, ok := v.schemas[name]
	v.mu.RUnlock()
	if ok {
		return s, nil
	}

	raw, err := schemaFiles.ReadFile(path.Join("schemas", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	s, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}

	v.mu.Lock()
	v.schemas[name] = s
	v.mu.Unlock()
	return s, nil
}

// Check validates a JSON document against the named schema.
func (v *Validator) Check(name string, document []byte) (*ValidationResult, error) {
	s, err := v.schema(name)
	if err != nil {
		return nil, err
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{
			Field:   "(root)",
			Message: "body is not valid JSON",
			Code:    "INVALID_JSON",
		}}}, nil
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr, nil
}

// Validate returns a VALIDATION_FAILED error when document does not match the schema.
func (v *Validator) Validate(name string, document []byte) error {
	vr, err := v.Check(name, document)
	if err != nil {
		return errors.NewInternalError(err)
	}
	if vr.Valid {
		return nil
	}
	stdErr := errors.NewValidationFailedError(strings.Join(vr.GetErrorMessages(), "; "))
	return stdErr.WithMetadata("fields", vr.Errors)
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]{8,}$`)
	urlPattern   = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone accepts local eight-digit numbers as well as international ones.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func ValidateURL(url string) bool {
	return urlPattern.MatchString(url)
}
