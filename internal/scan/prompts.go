package scan

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TitleInputPlaceholder is replaced by the noisy title in the title_clean prompt.
const TitleInputPlaceholder = "{{input}}"

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds every template sent to the model.
type Prompts struct {
	Classify   string `yaml:"classify"`
	Tool       string `yaml:"tool"`
	Material   string `yaml:"material"`
	Building   string `yaml:"building"`
	TitleClean string `yaml:"title_clean"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		panic("scan: embedded prompts.yaml is invalid: " + err.Error())
	}
	return &p
}

// LoadPrompts returns the built-in templates overlaid with any keys set in
// the yaml file at path. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scan: read prompts %s", path)
	}
	var override Prompts
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, eris.Wrapf(err, "scan: parse prompts %s", path)
	}
	overlay(&p.Classify, override.Classify)
	overlay(&p.Tool, override.Tool)
	overlay(&p.Material, override.Material)
	overlay(&p.Building, override.Building)
	overlay(&p.TitleClean, override.TitleClean)

	if !strings.Contains(p.TitleClean, TitleInputPlaceholder) {
		return nil, eris.Errorf("scan: title_clean prompt must contain %s", TitleInputPlaceholder)
	}
	return p, nil
}

func overlay(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// TitleCleanPrompt fills the title_clean template.
func (p *Prompts) TitleCleanPrompt(noisy string) string {
	return strings.ReplaceAll(p.TitleClean, TitleInputPlaceholder, noisy)
}
