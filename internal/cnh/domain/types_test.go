package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractionResult(t *testing.T) {
	res := NewExtractionResult()
	assert.Len(t, res.Fields, len(AllFields))
	assert.Empty(t, res.FoundFields())
	assert.Equal(t, NotFoundText, res.Get(FieldCPF).String())

	res.Set(FieldValue{Field: FieldCPF, Value: "12345678909"})
	assert.True(t, res.Get(FieldCPF).Found)
	assert.Equal(t, "12345678909", res.Get(FieldCPF).String())
	assert.Equal(t, []string{"cpf"}, res.FoundFields())

	for i, f := range AllFields {
		assert.Equal(t, f, res.Fields[i].Field)
	}
}

func TestField_Valid(t *testing.T) {
	assert.True(t, FieldCategory.Valid())
	assert.False(t, Field("rg").Valid())
}

func TestBoundingBox_Union(t *testing.T) {
	a := BoundingBox{X0: 10, Y0: 10, X1: 20, Y1: 20}
	b := BoundingBox{X0: 5, Y0: 15, X1: 30, Y1: 18}
	assert.Equal(t, BoundingBox{X0: 5, Y0: 10, X1: 30, Y1: 20}, a.Union(b))
	assert.Equal(t, 25.0, a.Union(b).Width())
	assert.Equal(t, 10.0, a.Height())
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ErrInvalidDocument), "INVALID_DOCUMENT"},
		{ErrNoTokens, "NO_TEXT"},
		{fmt.Errorf("x: %w", ErrRecognitionFailed), "EXTRACTION_FAILED"},
		{ErrRenderFailed, "EXTRACTION_FAILED"},
		{ErrNoProducer, "UNSUPPORTED_DOCUMENT"},
		{errors.New("other"), "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err))
	}
}
