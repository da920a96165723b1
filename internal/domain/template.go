package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AdTemplate generates prompts of the form "An advertisement image for
// {brand} {product} in style: {style}", cycling over Styles.
type AdTemplate struct {
	Brand   string   `yaml:"brand" json:"brand"`
	Product string   `yaml:"product" json:"product"`
	Styles  []string `yaml:"styles" json:"styles"`
}

// GeneralPrompt repeats a single fixed prompt.
type GeneralPrompt struct {
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Template is the tagged union of AdTemplate and GeneralPrompt. Exactly one
// of Ad or General is set, selected by Kind.
type Template struct {
	Kind    TemplateKind
	Ad      *AdTemplate
	General *GeneralPrompt
}

// Validate checks that the template is well-formed.
func (t Template) Validate() []string {
	switch t.Kind {
	case TemplateKindAd:
		if t.Ad == nil {
			return []string{"AdTemplate body is missing"}
		}
		var errs []string
		if t.Ad.Brand == "" {
			errs = append(errs, "AdTemplate.brand is required")
		}
		if t.Ad.Product == "" {
			errs = append(errs, "AdTemplate.product is required")
		}
		if len(t.Ad.Styles) == 0 {
			errs = append(errs, "AdTemplate.styles must be non-empty")
		}
		return errs
	case TemplateKindGeneral:
		if t.General == nil {
			return []string{"GeneralPrompt body is missing"}
		}
		if t.General.Prompt == "" {
			return []string{"GeneralPrompt.prompt is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("unrecognized template kind %q", t.Kind)}
	}
}

// UnmarshalYAML implements the on-disk tag-per-variant encoding: a
// template document is either `!AdTemplate {...}` or `!GeneralPrompt {...}`.
func (t *Template) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!AdTemplate":
		var ad AdTemplate
		if err := value.Decode(&ad); err != nil {
			return fmt.Errorf("decode AdTemplate: %w", err)
		}
		t.Kind = TemplateKindAd
		t.Ad = &ad
		return nil
	case "!GeneralPrompt":
		var gp GeneralPrompt
		if err := value.Decode(&gp); err != nil {
			return fmt.Errorf("decode GeneralPrompt: %w", err)
		}
		t.Kind = TemplateKindGeneral
		t.General = &gp
		return nil
	default:
		return fmt.Errorf("template document must be tagged !AdTemplate or !GeneralPrompt, got %q", value.Tag)
	}
}

// MarshalYAML implements the on-disk tag-per-variant encoding.
func (t Template) MarshalYAML() (interface{}, error) {
	switch t.Kind {
	case TemplateKindAd:
		node := &yaml.Node{}
		if err := node.Encode(t.Ad); err != nil {
			return nil, err
		}
		node.Tag = "!AdTemplate"
		return node, nil
	case TemplateKindGeneral:
		node := &yaml.Node{}
		if err := node.Encode(t.General); err != nil {
			return nil, err
		}
		node.Tag = "!GeneralPrompt"
		return node, nil
	default:
		return nil, fmt.Errorf("unrecognized template kind %q", t.Kind)
	}
}

// wireTemplate mirrors the over-the-wire {mode: {AdTemplate: {...}}} shape.
type wireTemplate struct {
	Mode struct {
		AdTemplate    *AdTemplate    `json:"AdTemplate,omitempty"`
		GeneralPrompt *GeneralPrompt `json:"GeneralPrompt,omitempty"`
	} `json:"mode"`
}

// MarshalJSON implements the over-the-wire {mode: {Variant: {...}}} shape.
func (t Template) MarshalJSON() ([]byte, error) {
	var w wireTemplate
	switch t.Kind {
	case TemplateKindAd:
		w.Mode.AdTemplate = t.Ad
	case TemplateKindGeneral:
		w.Mode.GeneralPrompt = t.General
	default:
		return nil, fmt.Errorf("unrecognized template kind %q", t.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements the over-the-wire {mode: {Variant: {...}}} shape.
func (t *Template) UnmarshalJSON(data []byte) error {
	var w wireTemplate
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Mode.AdTemplate != nil:
		t.Kind = TemplateKindAd
		t.Ad = w.Mode.AdTemplate
	case w.Mode.GeneralPrompt != nil:
		t.Kind = TemplateKindGeneral
		t.General = w.Mode.GeneralPrompt
	default:
		return fmt.Errorf("template JSON must set mode.AdTemplate or mode.GeneralPrompt")
	}
	return nil
}
