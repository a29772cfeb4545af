package wsbridge

import (
	"sort"

	"devcrew/config"
)

// InstanceConfig is the part of the configuration shown to the viewer.
// Keys and prompts are left out.
type InstanceConfig struct {
	Models     []ModelInfo     `json:"models"`
	Agents     []AgentInfo     `json:"agents"`
	GroupChats []GroupChatInfo `json:"groupChats"`
}

type ModelInfo struct {
	Name     string   `json:"name"`
	Provider string   `json:"provider"`
	Allowed  []string `json:"allowed"`
}

type AgentInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Model       string   `json:"model,omitempty"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools,omitempty"`
}

type GroupChatInfo struct {
	Name      string   `json:"name"`
	Agents    []string `json:"agents"`
	Selection string   `json:"selection"`
	MaxRound  int      `json:"maxRound"`
}

// ConfigToInstanceConfig summarizes cfg for registration
func ConfigToInstanceConfig(cfg *config.Config) InstanceConfig {
	ic := InstanceConfig{
		Models:     []ModelInfo{},
		Agents:     []AgentInfo{},
		GroupChats: []GroupChatInfo{},
	}
	if cfg == nil {
		return ic
	}

	for _, m := range cfg.Models {
		allowed := append([]string{}, m.AllowedModels...)
		sort.Strings(allowed)
		ic.Models = append(ic.Models, ModelInfo{Name: m.Name, Provider: string(m.Provider), Allowed: allowed})
	}

	for _, a := range cfg.Agents {
		kind := "model"
		if k, err := a.AgentKind(); err == nil {
			kind = k.String()
		}
		ic.Agents = append(ic.Agents, AgentInfo{
			Name:        a.Name,
			Kind:        kind,
			Model:       a.Model,
			Description: a.Description,
			Tools:       a.Tools,
		})
	}

	for _, g := range cfg.GroupChats {
		selection := ""
		if s, err := g.Strategy(); err == nil {
			selection = string(s)
		}
		ic.GroupChats = append(ic.GroupChats, GroupChatInfo{
			Name:      g.Name,
			Agents:    g.Agents,
			Selection: selection,
			MaxRound:  g.MaxRounds(),
		})
	}
	return ic
}
