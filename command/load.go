package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoPayload is returned when a reply carries no command batch
var ErrNoPayload = errors.New("no command batch found")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|yaml|yml)?\\s*\\n(.*?)```")

// LoadFile reads a batch from a .json, .yaml or .yml file and validates it
func LoadFile(path string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var resp Response
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &resp, nil
}

// ParseReply extracts a command batch from free-form model output. It tries
// fenced blocks first (JSON, then YAML), then the outermost JSON object.
func ParseReply(text string) (*Response, error) {
	var candidates []string
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		resp, err := decodeCandidate(c)
		if err != nil {
			lastErr = err
			continue
		}
		if err := resp.Validate(); err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPayload, lastErr)
	}
	return nil, ErrNoPayload
}

func decodeCandidate(s string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(s), &resp); err == nil && len(resp.Groups) > 0 {
		return &resp, nil
	}
	resp = Response{}
	if err := yaml.Unmarshal([]byte(s), &resp); err != nil {
		return nil, err
	}
	if len(resp.Groups) == 0 {
		return nil, errors.New("payload has no groups")
	}
	return &resp, nil
}
