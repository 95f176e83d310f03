package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Size int
}

func TestRegisterAndCreate(t *testing.T) {
	reg := NewRegistry[*widget]()
	require.NoError(t, reg.Register("basic", func(conf map[string]any) (*widget, error) {
		var c struct {
			Size int `json:"size"`
		}
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &widget{Size: c.Size}, nil
	}))

	w, err := reg.Create(ModuleConfig{Type: "basic", Conf: map[string]any{"size": 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, w.Size)

	_, err = reg.Create(ModuleConfig{Type: "missing"})
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	reg := NewRegistry[*widget]()
	ctor := func(map[string]any) (*widget, error) { return &widget{}, nil }

	require.NoError(t, reg.Register("a", ctor))
	assert.Error(t, reg.Register("a", ctor))
	assert.Error(t, reg.Register("b", nil))
	assert.ElementsMatch(t, []string{"a"}, reg.Types())
}
