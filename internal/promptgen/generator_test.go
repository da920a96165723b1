package promptgen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/adgen/internal/domain"
)

func TestGenerator_AdTemplateCyclesRoundRobin(t *testing.T) {
	tpl := domain.Template{
		Kind: domain.TemplateKindAd,
		Ad: &domain.AdTemplate{
			Brand:   "A",
			Product: "B",
			Styles:  []string{"X", "Y"},
		},
	}
	g := New(tpl)

	p1, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, "An advertisement image for A B in style: X", p1)

	p2, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, "An advertisement image for A B in style: Y", p2)

	p3, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, "An advertisement image for A B in style: X", p3)
}

func TestGenerator_GeneralPromptRepeats(t *testing.T) {
	tpl := domain.Template{
		Kind:    domain.TemplateKindGeneral,
		General: &domain.GeneralPrompt{Prompt: "a cat in space"},
	}
	g := New(tpl)

	for i := 0; i < 3; i++ {
		p, err := g.Next()
		require.NoError(t, err)
		require.Equal(t, "a cat in space", p)
	}
}
