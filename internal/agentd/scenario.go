package agentd

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScenarioPaper is one literature hit a scenario returns.
type ScenarioPaper struct {
	PMID     string  `yaml:"pmid" json:"pmid,omitempty"`
	Title    string  `yaml:"title" json:"title"`
	Authors  string  `yaml:"authors" json:"authors,omitempty"`
	Abstract string  `yaml:"abstract" json:"abstract,omitempty"`
	Source   string  `yaml:"source" json:"source,omitempty"`
	URL      string  `yaml:"url" json:"url,omitempty"`
	Score    float64 `yaml:"score" json:"score,omitempty"`
}

// Scenario scripts the reply to any user message containing Match.
type Scenario struct {
	Match      string          `yaml:"match"`
	Reply      string          `yaml:"reply"`
	Papers     []ScenarioPaper `yaml:"papers"`
	Attachment map[string]any  `yaml:"attachment"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a scenario script. Scenarios are matched in file
// order; the first whose match string appears in the message wins.
func LoadScenarios(path string) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	for i, sc := range f.Scenarios {
		if sc.Match == "" {
			return nil, fmt.Errorf("scenario %d: match must not be empty", i)
		}
		if sc.Reply == "" {
			return nil, fmt.Errorf("scenario %q: reply must not be empty", sc.Match)
		}
	}
	return f.Scenarios, nil
}

func matchScenario(scenarios []Scenario, message string) (Scenario, bool) {
	lower := strings.ToLower(message)
	for _, sc := range scenarios {
		if strings.Contains(lower, strings.ToLower(sc.Match)) {
			return sc, true
		}
	}
	return Scenario{}, false
}

// defaultReply is used when no scenario matches and no LLM is configured.
const defaultReply = "I don't have specific guidance on that topic yet. " +
	"Try asking about diet, fluid intake, or kidney function stages."
