package cigen

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-dispatch/tools"
)

type DetectArgs struct {
	Dockerfile string `json:"dockerfile" jsonschema:"description=Dockerfile contents"`
}

type DetectResult struct {
	Language Language `json:"language"`
}

type RenderArgs struct {
	Language string `json:"language" jsonschema:"description=Language as returned by detect_language"`
}

type RenderResult struct {
	Path     string `json:"path"`
	Workflow string `json:"workflow"`
}

// Specs returns the CI generator tools backed by gen.
func Specs(gen *Generator) []tools.ToolSpec {
	return []tools.ToolSpec{
		tools.NewTool("detect_language", func(ctx context.Context, _ *tools.Request, a DetectArgs) (DetectResult, error) {
			return DetectResult{Language: DetectLanguage(a.Dockerfile)}, nil
		}, tools.WithDescription("Detect the build ecosystem from a Dockerfile's FROM lines")),

		tools.NewTool("render_workflow", func(ctx context.Context, _ *tools.Request, a RenderArgs) (RenderResult, error) {
			lang := Language(a.Language)
			body, err := RenderWorkflow(lang)
			if err != nil {
				return RenderResult{}, err
			}
			return RenderResult{Path: WorkflowPath(lang), Workflow: string(body)}, nil
		}, tools.WithDescription("Render the GitHub Actions workflow for a language")),

		tools.NewTool("generate_ci", func(ctx context.Context, _ *tools.Request, a GenerateArgs) (GenerateResult, error) {
			res, err := gen.Generate(ctx, a)
			if err != nil {
				return GenerateResult{}, err
			}
			return *res, nil
		}, tools.WithDescription("Generate a CI workflow for a repository from its Dockerfile and commit it")),
	}
}

// Register adds every CI generator tool to reg.
func Register(reg *tools.Registry, gen *Generator) error {
	for _, spec := range Specs(gen) {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}
