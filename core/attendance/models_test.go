package attendance

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
)

func TestNewRecord_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		status  Status
		wantErr bool
	}{
		{"present", "present", false},
		{"absent, any case", " ABSENT ", false},
		{"missing", "", true},
		{"unknown", "late", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nr := NewRecord{CourseID: "c", Status: tc.status}
			err := nr.Validate(validate)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, nr.Status.IsValid())
			assert.False(t, nr.Date.IsZero(), "defaults to today")
		})
	}

	err := (&NewRecord{CourseID: "c", Status: "late"}).Validate(validate)
	verrs, ok := err.(validator.ValidationErrors)
	if assert.True(t, ok) {
		assert.Equal(t, "status must be one of: present, absent", verrs[0].Translate(translator))
	}
}
