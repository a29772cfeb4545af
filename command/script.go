package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	scriptHeader = "#!/bin/bash\n\nset -e\n\n"
	bannerWidth  = 50
)

// RenderScript serializes the batch as a bash script in dependency order.
// The output depends only on resp, so rendering twice yields identical bytes.
func RenderScript(resp *Response) (string, error) {
	groups, err := resp.Order()
	if err != nil {
		return "", err
	}

	rule := "# " + strings.Repeat("-", bannerWidth) + "\n"

	var b strings.Builder
	b.WriteString(scriptHeader)
	for _, g := range groups {
		b.WriteString(rule)
		fmt.Fprintf(&b, "# Group: %s\n", g.Name)
		fmt.Fprintf(&b, "# Description: %s\n", g.Description)
		b.WriteString(rule)
		b.WriteString("\n")
		for _, c := range g.Commands {
			fmt.Fprintf(&b, "# %s\n", c.Comment)
			fmt.Fprintf(&b, "%s\n\n", c.Command)
		}
	}
	return b.String(), nil
}

// ScriptName returns the file name used for a project's setup script
func ScriptName(projectName string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(projectName)), " ", "_")
	if name == "" {
		name = "project"
	}
	return name + "_setup.sh"
}

// SaveScript renders resp into the working directory and marks it executable
func (e *Executor) SaveScript(resp *Response) (string, error) {
	content, err := RenderScript(resp)
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.workDir, ScriptName(e.projectName))
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		return "", fmt.Errorf("write script %s: %w", path, err)
	}
	// WriteFile leaves the mode of an existing file alone
	if err := os.Chmod(path, 0755); err != nil {
		return "", fmt.Errorf("chmod script %s: %w", path, err)
	}
	e.logger.Info("saved setup script", "path", path)
	return path, nil
}
