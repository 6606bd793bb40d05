package cigen

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Workflow is the subset of the GitHub Actions schema the generator emits.
type Workflow struct {
	Name string         `yaml:"name"`
	On   []string       `yaml:"on,flow"`
	Jobs map[string]Job `yaml:"jobs"`
}

type Job struct {
	RunsOn string `yaml:"runs-on"`
	Steps  []Step `yaml:"steps"`
}

type Step struct {
	Name string            `yaml:"name,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	With map[string]string `yaml:"with,omitempty"`
	Run  string            `yaml:"run,omitempty"`
}

func build(name string, steps ...Step) *Workflow {
	return &Workflow{
		Name: name,
		On:   []string{"push", "pull_request"},
		Jobs: map[string]Job{
			"build": {RunsOn: "ubuntu-latest", Steps: steps},
		},
	}
}

var checkout = Step{Uses: "actions/checkout@v3"}

func setupJava() Step {
	return Step{Name: "Set up JDK", Uses: "actions/setup-java@v3", With: map[string]string{"java-version": "17", "distribution": "temurin"}}
}

// WorkflowFor returns the workflow for lang, or nil when there is none.
func WorkflowFor(lang Language) *Workflow {
	switch lang {
	case Python:
		return build("Python CI",
			checkout,
			Step{Name: "Set up Python", Uses: "actions/setup-python@v4", With: map[string]string{"python-version": "3.9"}},
			Step{Name: "Install dependencies", Run: "python -m pip install --upgrade pip\npip install -r requirements.txt\n"},
			Step{Name: "Run tests", Run: `pytest || echo "No tests found"`},
		)
	case Node:
		return build("Node.js CI",
			checkout,
			Step{Uses: "actions/setup-node@v4", With: map[string]string{"node-version": "18"}},
			Step{Run: "npm install"},
			Step{Run: "npm test"},
		)
	case JavaMaven:
		return build("Java Maven CI",
			checkout,
			setupJava(),
			Step{Name: "Build with Maven", Run: "mvn -B package --file pom.xml"},
		)
	case JavaGradle:
		return build("Java Gradle CI",
			checkout,
			setupJava(),
			Step{Name: "Build with Gradle", Run: "./gradlew build"},
		)
	case Go:
		return build("Go CI",
			checkout,
			Step{Name: "Set up Go", Uses: "actions/setup-go@v5", With: map[string]string{"go-version": "stable"}},
			Step{Name: "Build", Run: "go build ./..."},
			Step{Name: "Test", Run: "go test ./..."},
		)
	case Ruby:
		return build("Ruby CI",
			checkout,
			Step{Name: "Set up Ruby", Uses: "ruby/setup-ruby@v1", With: map[string]string{"ruby-version": "3.3", "bundler-cache": "true"}},
			Step{Name: "Run tests", Run: "bundle exec rake"},
		)
	}
	return nil
}

// WorkflowPath is where the workflow for lang is committed.
func WorkflowPath(lang Language) string {
	return fmt.Sprintf(".github/workflows/%s-ci.yml", lang)
}

// RenderWorkflow returns the YAML document for lang. Languages without a
// template render as a single comment line.
func RenderWorkflow(lang Language) ([]byte, error) {
	wf := WorkflowFor(lang)
	if wf == nil {
		return []byte(fmt.Sprintf("# Unknown language: %s\n", lang)), nil
	}
	b, err := yaml.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("render %s workflow: %w", lang, err)
	}
	return b, nil
}
