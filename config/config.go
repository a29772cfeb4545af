package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Models     []Model     `hcl:"model,block"`
	Agents     []Agent     `hcl:"agent,block"`
	Variables  []Variable  `hcl:"variable,block"`
	GroupChats []GroupChat `hcl:"groupchat,block"`

	Execution Execution     `hcl:"-"`
	Recovery  Recovery      `hcl:"-"`
	Storage   StorageConfig `hcl:"-"`
	Cache     CacheConfig   `hcl:"-"`
	Scaffold  Scaffold      `hcl:"-"`
	Bridge    Bridge        `hcl:"-"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	agentNames := make(map[string]bool)
	for _, a := range c.Agents {
		if agentNames[a.Name] {
			return fmt.Errorf("duplicate agent '%s'", a.Name)
		}
		agentNames[a.Name] = true
		if err := a.Validate(c.Models); err != nil {
			return fmt.Errorf("agent '%s': %w", a.Name, err)
		}
	}

	chatNames := make(map[string]bool)
	for _, g := range c.GroupChats {
		if chatNames[g.Name] {
			return fmt.Errorf("duplicate groupchat '%s'", g.Name)
		}
		chatNames[g.Name] = true
		if err := g.Validate(c.Models, c.Agents); err != nil {
			return fmt.Errorf("groupchat '%s': %w", g.Name, err)
		}
	}

	if err := c.Execution.Validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if err := c.Recovery.Validate(c.Models); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Scaffold.Validate(c.Models); err != nil {
		return fmt.Errorf("scaffold: %w", err)
	}
	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// GetAgent returns the agent with the given name
func (c *Config) GetAgent(name string) (*Agent, error) {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i], nil
		}
	}
	return nil, fmt.Errorf("agent '%s' not found", name)
}

// GetGroupChat returns the groupchat with the given name
func (c *Config) GetGroupChat(name string) (*GroupChat, error) {
	for i := range c.GroupChats {
		if c.GroupChats[i].Name == name {
			return &c.GroupChats[i], nil
		}
	}
	return nil, fmt.Errorf("groupchat '%s' not found", name)
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables  []*hcl.Block
	Models     []*hcl.Block
	Agents     []*hcl.Block
	GroupChats []*hcl.Block
	Settings   []*hcl.Block
}

// settingsBlocks are the unlabeled top-level blocks, each allowed once
var settingsBlocks = []string{"execution", "recovery", "storage", "cache", "scaffold", "bridge"}

// loadFromFiles implements staged loading: variables → models → agents → groupchats → settings
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "model", LabelNames: []string{"name"}},
			{Type: "agent", LabelNames: []string{"name"}},
			{Type: "groupchat", LabelNames: []string{"name"}},
		},
	}
	for _, name := range settingsBlocks {
		schema.Blocks = append(schema.Blocks, hcl.BlockHeaderSchema{Type: name})
	}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, _, diags := hclFile.Body.PartialContent(schema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "agent":
				pb.Agents = append(pb.Agents, block)
			case "groupchat":
				pb.GroupChats = append(pb.GroupChats, block)
			default:
				pb.Settings = append(pb.Settings, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load models (with vars context)
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, fmt.Errorf("model '%s': %w", m.Name, diags)
			}
			allModels = append(allModels, m)
		}
	}

	modelsCtx := buildToolsContext(buildModelsContext(varsCtx, allModels))

	// Stage 3: Load agents (with vars + models + tools context)
	var allAgents []Agent
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Agents {
			var a Agent
			a.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &a)
			if diags.HasErrors() {
				return nil, fmt.Errorf("agent '%s': %w", a.Name, diags)
			}
			allAgents = append(allAgents, a)
		}
	}

	agentsCtx := buildAgentsContext(modelsCtx, allAgents)

	// Stage 4: Load groupchats (with the full context)
	var allChats []GroupChat
	for _, pb := range allParsedBlocks {
		for _, block := range pb.GroupChats {
			var g GroupChat
			g.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, agentsCtx, &g)
			if diags.HasErrors() {
				return nil, fmt.Errorf("groupchat '%s': %w", g.Name, diags)
			}
			allChats = append(allChats, g)
		}
	}

	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		Agents:       allAgents,
		GroupChats:   allChats,
		ResolvedVars: resolvedVars,
	}

	// Stage 5: Load settings blocks
	seen := make(map[string]bool)
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Settings {
			if seen[block.Type] {
				return nil, fmt.Errorf("duplicate %s block", block.Type)
			}
			seen[block.Type] = true
			if err := decodeSettings(block, agentsCtx, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.Execution.Defaults()
	cfg.Storage.Defaults()
	cfg.Cache.Defaults()
	cfg.Scaffold.Defaults()
	cfg.Bridge.Defaults()
	return cfg, nil
}

func decodeSettings(block *hcl.Block, ctx *hcl.EvalContext, cfg *Config) error {
	var target any
	switch block.Type {
	case "execution":
		target = &cfg.Execution
	case "recovery":
		target = &cfg.Recovery
	case "storage":
		target = &cfg.Storage
	case "cache":
		target = &cfg.Cache
	case "scaffold":
		target = &cfg.Scaffold
	case "bridge":
		target = &cfg.Bridge
	default:
		return fmt.Errorf("unknown block '%s'", block.Type)
	}
	if diags := gohcl.DecodeBody(block.Body, ctx, target); diags.HasErrors() {
		return fmt.Errorf("%s: %w", block.Type, diags)
	}
	return nil
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		if val, ok := fileVars[v.Name]; ok {
			varsMap[v.Name] = cty.StringVal(val)
		} else {
			varsMap[v.Name] = cty.StringVal(v.Default)
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models to existing context
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		providerModels := make(map[string]cty.Value)
		for _, modelKey := range m.AllowedModels {
			providerModels[modelKey] = cty.StringVal(modelKey)
		}
		modelsMap[m.Name] = cty.ObjectVal(providerModels)
	}
	return extendContext(ctx, "models", cty.ObjectVal(modelsMap))
}

// buildToolsContext adds tools.{name} references for the built-in tools
func buildToolsContext(ctx *hcl.EvalContext) *hcl.EvalContext {
	toolsMap := make(map[string]cty.Value)
	for _, name := range BuiltinTools {
		toolsMap[name] = cty.StringVal(name)
	}
	return extendContext(ctx, "tools", cty.ObjectVal(toolsMap))
}

// buildAgentsContext adds agents.{agent_name} references
func buildAgentsContext(ctx *hcl.EvalContext, agents []Agent) *hcl.EvalContext {
	agentsMap := make(map[string]cty.Value)
	for _, a := range agents {
		agentsMap[a.Name] = cty.StringVal(a.Name)
	}
	return extendContext(ctx, "agents", cty.ObjectVal(agentsMap))
}

func extendContext(ctx *hcl.EvalContext, name string, val cty.Value) *hcl.EvalContext {
	newVars := make(map[string]cty.Value, len(ctx.Variables)+1)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars[name] = val
	return &hcl.EvalContext{Variables: newVars}
}
