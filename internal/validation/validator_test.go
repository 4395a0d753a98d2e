package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tagyard/tagyard-server/internal/errors"
)

type proposal struct {
	Kind       string `json:"kind" validate:"required,oneof=alias implication"`
	Antecedent string `json:"antecedent" validate:"required,tagname"`
	Consequent string `json:"consequent" validate:"required,tagname,nefield=Antecedent"`
}

func TestValidate(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(proposal{Kind: "alias", Antecedent: "Doggy", Consequent: "dog"}))

	err := v.Validate(proposal{Kind: "merge", Antecedent: "-dog", Consequent: "-dog"})
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)

	details, ok := domainErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be one of: alias implication", details["kind"])
	assert.Equal(t, "must be a valid tag name", details["antecedent"])
	assert.Contains(t, details, "consequent")
}
