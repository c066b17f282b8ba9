package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Inference Inference `yaml:"inference"`
	Run       Run       `yaml:"run"`
	Log       Log       `yaml:"log"`
	Idle      Idle      `yaml:"idle"`
	Suspicion Suspicion `yaml:"suspicion"`
	Agents    []Persona `yaml:"agents"`
	Tasks     []Task    `yaml:"tasks"`
}

type Server struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type Inference struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	RetryMax       int    `yaml:"retry_max"`
	PromptBudget   int    `yaml:"prompt_budget"` // characters
}

type Run struct {
	TickMs             int    `yaml:"tick_ms"`
	StepDelayMs        int    `yaml:"step_delay_ms"`
	MaxRunSeconds      int    `yaml:"max_run_seconds"` // 0 = unlimited
	StopAfterFailures  int    `yaml:"stop_after_failures"`
	StopAfterSuccesses int    `yaml:"stop_after_successes"` // 0 = unlimited
	FeederMode         string `yaml:"feeder_mode"`          // "cycle" or "random"
	Seed               int64  `yaml:"seed"`                 // 0 = time-seeded
	NameFile           string `yaml:"name_file"`            // optional JSON username pool
}

type Log struct {
	Dir     string `yaml:"dir"`
	IndexDB string `yaml:"index_db"`
}

type Idle struct {
	MinGapMs int `yaml:"min_gap_ms"`
	MaxGapMs int `yaml:"max_gap_ms"`
}

type Suspicion struct {
	Keywords                 []string `yaml:"keywords"`
	Strategies               []string `yaml:"strategies"`
	CooldownSeconds          int      `yaml:"cooldown_seconds"`
	EscalatedCooldownSeconds int      `yaml:"escalated_cooldown_seconds"`
	GraceSeconds             int      `yaml:"grace_seconds"`
}

type Persona struct {
	Name         string   `yaml:"name"` // empty = draw from the username pool
	Traits       []string `yaml:"traits"`
	SpeechStyle  string   `yaml:"speech_style"`
	MemoryWindow int      `yaml:"memory_window"`
}

type Task struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("gym.yaml: %w", err)
	}
	c.ApplyDefaults()
	return c, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = "ws://localhost:8080/v1/ws"
	}
	c.Inference.applyDefaults()
	c.Run.applyDefaults()
	c.Log.applyDefaults()
	c.Idle.applyDefaults()
	c.Suspicion.applyDefaults()
	if len(c.Agents) == 0 {
		c.Agents = []Persona{{}}
	}
	for i := range c.Agents {
		c.Agents[i].applyDefaults()
	}
	if len(c.Tasks) == 0 {
		c.Tasks = DefaultTasks()
	}
}

func (inf *Inference) applyDefaults() {
	if inf.URL == "" {
		inf.URL = "http://localhost:9090/v1/decide"
	}
	if inf.TimeoutSeconds <= 0 {
		inf.TimeoutSeconds = 12
	}
	if inf.MaxConcurrent <= 0 {
		inf.MaxConcurrent = 3
	}
	if inf.RetryMax < 0 {
		inf.RetryMax = 0
	}
	if inf.PromptBudget <= 0 {
		inf.PromptBudget = 4000
	}
}

func (r *Run) applyDefaults() {
	if r.TickMs <= 0 {
		r.TickMs = 200
	}
	if r.StepDelayMs <= 0 {
		r.StepDelayMs = 1000
	}
	if r.StopAfterFailures <= 0 {
		r.StopAfterFailures = 5
	}
	if r.FeederMode != "random" {
		r.FeederMode = "cycle"
	}
}

func (l *Log) applyDefaults() {
	if l.Dir == "" {
		l.Dir = "./runlogs"
	}
	if l.IndexDB == "" {
		l.IndexDB = filepath.Join(l.Dir, "index.db")
	}
}

func (id *Idle) applyDefaults() {
	if id.MinGapMs <= 0 {
		id.MinGapMs = 1500
	}
	if id.MaxGapMs <= id.MinGapMs {
		id.MaxGapMs = id.MinGapMs + 2500
	}
}

func (s *Suspicion) applyDefaults() {
	if len(s.Keywords) == 0 {
		s.Keywords = []string{
			"are you a bot",
			"are you an ai",
			"you are a bot",
			"you're a bot",
			"youre a bot",
			"you are an ai",
			"you're an ai",
			"is that a bot",
			"must be a bot",
			"sounds like a robot",
			"admit you're a bot",
			"chatgpt",
		}
	}
	if len(s.Strategies) == 0 {
		s.Strategies = []string{"self_deprecating", "technical_blame", "deflect"}
	}
	if s.CooldownSeconds <= 0 {
		s.CooldownSeconds = 45
	}
	if s.EscalatedCooldownSeconds <= s.CooldownSeconds {
		s.EscalatedCooldownSeconds = s.CooldownSeconds * 3
	}
	if s.GraceSeconds <= 0 {
		s.GraceSeconds = 20
	}
}

func (p *Persona) applyDefaults() {
	if len(p.Traits) == 0 {
		p.Traits = []string{"laid-back", "curious"}
	}
	if p.SpeechStyle == "" {
		p.SpeechStyle = "casual, short sentences, occasional typos, never formal"
	}
	if p.MemoryWindow <= 0 {
		p.MemoryWindow = 10
	}
}
