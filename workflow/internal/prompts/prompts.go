package prompts

import (
	_ "embed"
	"strings"
)

//go:embed extract_normal.md
var extractNormal string

//go:embed extract_docker.md
var extractDocker string

//go:embed team_normal.md
var teamNormal string

//go:embed team_docker.md
var teamDocker string

//go:embed template.md
var templateStage string

//go:embed tester.md
var testerStage string

//go:embed docker.md
var dockerStage string

//go:embed batch.md
var batchFormat string

// Extractor returns the information extraction prompt for the environment
func Extractor(docker bool) string {
	if docker {
		return extractDocker
	}
	return extractNormal
}

// Template returns the boilerplate stage prompt
func Template(docker bool) string {
	scope := ""
	if docker {
		scope = " for the Docker development environment. Do not install dependencies on the host"
	}
	return stage(templateStage, docker, "{{SCOPE}}", scope)
}

// Tester returns the test stage prompt
func Tester(docker bool) string {
	return stage(testerStage, docker)
}

// Docker returns the container stage prompt
func Docker() string {
	return stage(dockerStage, true)
}

func stage(tmpl string, docker bool, extra ...string) string {
	team := teamNormal
	if docker {
		team = teamDocker
	}
	pairs := append([]string{"{{TEAM}}", strings.TrimSpace(team), "{{BATCH}}", strings.TrimSpace(batchFormat)}, extra...)
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tmpl))
}
