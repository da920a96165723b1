// Package promptgen enumerates seed prompts from a Template.
package promptgen

import (
	"fmt"
	"sync"

	"github.com/example/adgen/internal/domain"
)

// Generator is a deterministic, restartable sequence of seed prompts. It
// holds no external state beyond the template it was built from.
type Generator struct {
	mu    sync.Mutex
	tpl   domain.Template
	index int
}

// New builds a Generator from a validated Template.
func New(tpl domain.Template) *Generator {
	return &Generator{tpl: tpl}
}

// Next returns the next seed prompt in the sequence. For an AdTemplate it
// cycles over Styles round-robin, starting at index 0 and wrapping after
// the last style. For a GeneralPrompt it returns the same prompt forever.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.tpl.Kind {
	case domain.TemplateKindAd:
		ad := g.tpl.Ad
		if len(ad.Styles) == 0 {
			return "", fmt.Errorf("AdTemplate has no styles")
		}
		style := ad.Styles[g.index%len(ad.Styles)]
		g.index++
		return fmt.Sprintf("An advertisement image for %s %s in style: %s", ad.Brand, ad.Product, style), nil
	case domain.TemplateKindGeneral:
		return g.tpl.General.Prompt, nil
	default:
		return "", fmt.Errorf("unrecognized template kind %q", g.tpl.Kind)
	}
}
