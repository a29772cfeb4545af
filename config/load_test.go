package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/chat"
	"devcrew/config"
)

var _ = Describe("Config Loading", func() {

	Describe("Load", func() {
		It("routes to LoadFile for a file path", func() {
			_, f := writeFixture("vars.hcl", `variable "x" { default = "val" }`)
			cfg, err := config.Load(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Name).To(Equal("x"))
		})

		It("routes to LoadDir for a directory path", func() {
			dir := writeFixtures(map[string]string{
				"variables.hcl": minimalVarsHCL(),
				"models.hcl":    minimalModelHCL(),
				"agents.hcl":    minimalAgentsHCL(),
			})
			cfg, err := config.Load(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Models).To(HaveLen(1))
			Expect(cfg.Agents).To(HaveLen(2))
		})

		It("returns error for nonexistent path", func() {
			_, err := config.Load("/nonexistent/path/config.hcl")
			Expect(err).To(HaveOccurred())
		})

		It("returns parse error for invalid HCL syntax", func() {
			_, err := loadString(`model { missing label and brace`)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("variables", func() {
		It("uses the default when vars.txt has no value", func() {
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Models[0].APIKey).To(Equal("test-key-123"))
			Expect(cfg.ResolvedVars["test_api_key"].AsString()).To(Equal("test-key-123"))
		})

		It("prefers the value stored in vars.txt", func() {
			Expect(config.SetVar("test_api_key", "from-file")).To(Succeed())
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Models[0].APIKey).To(Equal("from-file"))
		})
	})

	Describe("agents", func() {
		It("resolves model and tool references", func() {
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())

			proxy, err := cfg.GetAgent("proxy")
			Expect(err).NotTo(HaveOccurred())
			kind, err := proxy.AgentKind()
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(chat.KindHumanProxy))
			Expect(proxy.Tools).To(Equal([]string{"ask_user"}))

			coder, err := cfg.GetAgent("coder")
			Expect(err).NotTo(HaveOccurred())
			Expect(coder.Model).To(Equal("claude_sonnet_4"))
			Expect(coder.Streaming()).To(BeTrue())

			m, actual, err := cfg.ResolveModel(coder.Model)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Name).To(Equal("anthropic"))
			Expect(actual).To(Equal("claude-sonnet-4-20250514"))
		})

		It("defaults the kind to model", func() {
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())
			coder, _ := cfg.GetAgent("coder")
			kind, err := coder.AgentKind()
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(chat.KindModel))
		})

		It("errors for an unknown agent", func() {
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())
			_, err = cfg.GetAgent("nobody")
			Expect(err).To(MatchError(ContainSubstring("'nobody' not found")))
		})
	})

	Describe("groupchats", func() {
		It("decodes agent references, selection settings and transitions", func() {
			cfg, err := loadString(baseHCL() + `
groupchat "build" {
  agents               = [agents.proxy, agents.coder]
  max_round            = 12
  speaker_selection    = "round_robin"
  allow_repeat_speaker = false
  admin                = agents.proxy
  enable_clear_history = true

  transition "coder" {
    to = [agents.proxy]
  }
  transition "proxy" {
    to = [agents.coder]
  }
}
`)
			Expect(err).NotTo(HaveOccurred())
			g, err := cfg.GetGroupChat("build")
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Agents).To(Equal([]string{"proxy", "coder"}))
			Expect(g.MaxRounds()).To(Equal(12))
			Expect(g.Admin).To(Equal("proxy"))

			strategy, err := g.Strategy()
			Expect(err).NotTo(HaveOccurred())
			Expect(strategy).To(Equal(chat.StrategyRoundRobin))
			Expect(g.RepeatPolicy().Disallow).To(BeTrue())
			Expect(g.Graph()).To(Equal(chat.TransitionGraph{
				"coder": {"proxy"},
				"proxy": {"coder"},
			}))
		})

		It("applies defaults for unset settings", func() {
			cfg, err := loadString(baseHCL() + `
groupchat "build" {
  agents = [agents.proxy, agents.coder]
}
`)
			Expect(err).NotTo(HaveOccurred())
			g := cfg.GroupChats[0]
			Expect(g.MaxRounds()).To(Equal(chat.DefaultMaxRounds))
			Expect(g.Graph()).To(BeNil())
			Expect(g.RepeatPolicy().Disallow).To(BeFalse())
			strategy, _ := g.Strategy()
			Expect(strategy).To(Equal(chat.StrategyAuto))
		})

		It("fails on a reference to an undeclared agent", func() {
			_, err := loadString(baseHCL() + `
groupchat "build" {
  agents = [agents.proxy, agents.ghost]
}
`)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("settings blocks", func() {
		It("fills defaults when the blocks are absent", func() {
			cfg, err := loadString(baseHCL())
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Execution.Mode).To(Equal("all"))
			Expect(cfg.Execution.Shell).To(Equal("bash"))
			Expect(cfg.Storage.Backend).To(Equal(config.StorageMemory))
			Expect(cfg.Storage.Path).To(Equal(".devcrew/store.db"))
			Expect(cfg.Cache.Seed).To(Equal(41))
			Expect(cfg.Scaffold.Environment).To(Equal(config.EnvNormal))
		})

		It("decodes all settings blocks", func() {
			cfg, err := loadString(baseHCL() + `
execution {
  mode     = "step"
  work_dir = "./out"
}

recovery {
  enabled = true
  model   = models.anthropic.claude_3_5_haiku
}

storage {
  backend = "sqlite"
  path    = "runs.db"
}

cache {
  enabled = true
  seed    = 7
  dir     = ".cache"
}

scaffold {
  model       = models.anthropic.claude_sonnet_4
  environment = "docker"
}

bridge {
  url = "ws://localhost:8080/ws"
}
`)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Execution.Mode).To(Equal("step"))
			Expect(cfg.Execution.WorkDir).To(Equal("./out"))
			Expect(cfg.Recovery.Enabled).To(BeTrue())
			Expect(cfg.Recovery.Model).To(Equal("claude_3_5_haiku"))
			Expect(cfg.Storage.Path).To(Equal("runs.db"))
			Expect(cfg.Cache.Seed).To(Equal(7))
			Expect(cfg.Cache.Dir).To(Equal(".cache"))
			Expect(cfg.Scaffold.Environment).To(Equal(config.EnvDocker))
			Expect(cfg.Bridge.Enabled()).To(BeTrue())
			Expect(cfg.Bridge.InstanceName).To(Equal("devcrew"))
			Expect(cfg.Validate()).To(Succeed())
		})

		It("rejects a bridge url that is not a websocket", func() {
			b := config.Bridge{URL: "http://localhost:8080"}
			Expect(b.Validate()).To(MatchError(ContainSubstring("ws:// or wss://")))
			Expect((&config.Bridge{}).Validate()).To(Succeed())
		})

		It("rejects a duplicated settings block", func() {
			dir := writeFixtures(map[string]string{
				"a.hcl": `execution { mode = "all" }`,
				"b.hcl": `execution { mode = "step" }`,
			})
			_, err := config.LoadDir(dir)
			Expect(err).To(MatchError(ContainSubstring("duplicate execution block")))
		})
	})

	Describe("vars file", func() {
		It("round-trips values sorted by name", func() {
			Expect(config.SetVar("zeta", "1")).To(Succeed())
			Expect(config.SetVar("alpha", "a=b")).To(Succeed())

			names, err := config.ListVars()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"alpha", "zeta"}))

			v, err := config.GetVar("alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("a=b"))

			path, err := config.GetVarsFilePath()
			Expect(err).NotTo(HaveOccurred())
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("alpha=a=b\nzeta=1\n"))
		})

		It("deletes and reports missing variables", func() {
			Expect(config.SetVar("gone", "x")).To(Succeed())
			Expect(config.DeleteVar("gone")).To(Succeed())
			_, err := config.GetVar("gone")
			Expect(err).To(MatchError(ContainSubstring("'gone' not found")))
			Expect(config.DeleteVar("gone")).To(HaveOccurred())
		})

		It("rejects invalid names", func() {
			Expect(config.SetVar("a b", "x")).To(HaveOccurred())
		})

		It("ignores comments and blank lines", func() {
			path, err := config.GetVarsFilePath()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
			Expect(os.WriteFile(path, []byte("# comment\n\nkey=value\n"), 0600)).To(Succeed())
			vars, err := config.LoadVarsFromFile()
			Expect(err).NotTo(HaveOccurred())
			Expect(vars).To(Equal(map[string]string{"key": "value"}))
		})
	})
})
