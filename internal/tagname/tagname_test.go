package tagname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tagyard/tagyard-server/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dog", "dog"},
		{"  long   hair ", "long_hair"},
		{"Blue\tEyes", "blue_eyes"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "dog", false},
		{"underscored", "long_hair", false},
		{"unicode", "猫", false},
		{"blank", "", true},
		{"too long", strings.Repeat("a", MaxLength+1), true},
		{"leading dash", "-dog", true},
		{"leading tilde", "~dog", true},
		{"leading underscore", "_dog", true},
		{"trailing underscore", "dog_", true},
		{"double underscore", "dog__cat", true},
		{"asterisk", "do*g", true},
		{"comma", "dog,cat", true},
		{"control char", "dog\x01", true},
		{"metatag", "rating:safe", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTagStringHelpers(t *testing.T) {
	assert.Equal(t, []string{"cat", "dog"}, Split(" dog cat  dog "))
	assert.Equal(t, "cat dog", Join([]string{"dog", "cat", "", "dog"}))
	assert.True(t, Contains("cat dog", "dog"))
	assert.False(t, Contains("cat dogs", "dog"))
	assert.Equal(t, "canine cat dog", Add("dog cat", "canine", "dog"))
	assert.Equal(t, "cat", Remove("dog cat", "dog"))
	assert.Equal(t, "cat hound", Replace("dog cat", "dog", "hound"))
	assert.Equal(t, "cat", Replace("cat", "dog", "hound"))
}

func TestReplaceInText(t *testing.T) {
	text := "dog -cat\nhotdog dog_ear\n\nrating:e dog"
	got := ReplaceInText(text, "dog", "canine")
	assert.Equal(t, "canine -cat\nhotdog dog_ear\n\nrating:e canine", got)

	assert.Equal(t, "-hound", ReplaceInText("-dog", "dog", "hound"))
}
