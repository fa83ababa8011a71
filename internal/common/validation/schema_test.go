package validation

import (
	"testing"

	"tucomercio/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ReviewUpsert(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		body  string
		valid bool
		field string
	}{
		{"valid", `{"rating": 5, "comment": "Excelente"}`, true, ""},
		{"rating too high", `{"rating": 6}`, false, "rating"},
		{"rating not integer", `{"rating": 4.5}`, false, "rating"},
		{"missing rating", `{"comment": "hola"}`, false, ""},
		{"unknown field", `{"rating": 3, "userId": "x"}`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vr, err := v.Check("review.upsert", []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, vr.Valid)
			if tt.field != "" {
				assert.True(t, vr.HasErrors(tt.field), vr.GetErrorMessages())
			}
		})
	}
}

func TestValidator_BusinessSchedule(t *testing.T) {
	v := NewValidator()
	base := `{"name":"Panadería Sol","category":"panaderia","department":"Montevideo","city":"Montevideo",`

	assert.NoError(t, v.Validate("business.upsert", []byte(base+`"schedule":{"monday":[{"open":"08:00","close":"20:00"}]}}`)))

	err := v.Validate("business.upsert", []byte(base+`"schedule":{"lunes":[{"open":"08:00","close":"20:00"}]}}`))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	err = v.Validate("business.upsert", []byte(base+`"schedule":{"monday":[{"open":"8am","close":"20:00"}]}}`))
	assert.Error(t, err)
}

func TestValidator_InvalidJSON(t *testing.T) {
	err := NewValidator().Validate("chat.send", []byte(`{"text":`))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
}

func TestValidator_UnknownSchema(t *testing.T) {
	_, err := NewValidator().Check("nope", []byte(`{}`))
	assert.Error(t, err)
}

func TestValidator_AllSchemasCompile(t *testing.T) {
	entries, err := schemaFiles.ReadDir("schemas")
	require.NoError(t, err)
	v := NewValidator()
	for _, e := range entries {
		name := e.Name()[:len(e.Name())-len(".json")]
		_, err := v.schema(name)
		assert.NoError(t, err, name)
	}
}

func TestFieldHelpers(t *testing.T) {
	assert.True(t, ValidateEmail("ana@example.com.uy"))
	assert.False(t, ValidateEmail("ana@"))
	assert.True(t, ValidatePhone("+598 99 123 456"))
	assert.True(t, ValidatePhone("24001234"))
	assert.False(t, ValidatePhone("123"))
	assert.True(t, ValidateURL("https://tucomercio.uy"))
	assert.False(t, ValidateURL("javascript:alert(1)"))
}
