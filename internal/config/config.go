package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models bitfit.yml.
type Config struct {
	Participant struct {
		Name string `yaml:"name"`
	} `yaml:"participant"`
	Verification struct {
		// Single confidence cutoff for oracle auto-verification. The 0-100
		// scale matches the oracle's confidence output.
		ConfidenceThreshold int `yaml:"confidence_threshold"`
		// Proof links for challenge settlement must contain one of these
		// markers to count as externally verifiable.
		ProofMarkers []string `yaml:"proof_markers"`
	} `yaml:"verification"`
	Exercises struct {
		Catalog map[string]Exercise `yaml:"catalog"`
	} `yaml:"exercises"`
	Challenges struct {
		Genesis []GenesisChallenge `yaml:"genesis"`
	} `yaml:"challenges"`
	Oracle struct {
		Enabled     bool   `yaml:"enabled"`
		Endpoint    string `yaml:"endpoint"`
		Model       string `yaml:"model"`
		TimeoutSecs int    `yaml:"timeout_secs"`
	} `yaml:"oracle"`
	Relay struct {
		MaxEntries int    `yaml:"max_entries"`
		StaleSecs  int    `yaml:"stale_secs"`
		BatchSize  int    `yaml:"batch_size"`
		Location   string `yaml:"location"`
	} `yaml:"relay"`
}

type Exercise struct {
	Description string `yaml:"description"`
	TimeBased   bool   `yaml:"time_based"`
}

// GenesisChallenge seeds the initial challenge catalog on first run.
type GenesisChallenge struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	TargetDays  int    `yaml:"target_days"`
	Category    string `yaml:"category"`
	RewardSats  int    `yaml:"reward_sats"`
	Recurrence  string `yaml:"recurrence"`
}

var categories = map[string]bool{
	"strength": true, "endurance": true, "genesis": true, "sprint": true, "community": true,
}

var recurrences = map[string]bool{
	"once": true, "daily": true, "weekly": true, "monthly": true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Participant.Name == "" {
		return fmt.Errorf("config.participant.name is required")
	}
	if c.Verification.ConfidenceThreshold < 0 || c.Verification.ConfidenceThreshold > 100 {
		return fmt.Errorf("config.verification.confidence_threshold must be within 0-100")
	}
	if len(c.Verification.ProofMarkers) == 0 {
		return fmt.Errorf("config.verification.proof_markers is required")
	}
	for _, m := range c.Verification.ProofMarkers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("config.verification.proof_markers contains empty marker")
		}
	}
	if len(c.Exercises.Catalog) == 0 {
		return fmt.Errorf("config.exercises.catalog is required")
	}
	for name := range c.Exercises.Catalog {
		if name == "" {
			return fmt.Errorf("config.exercises.catalog contains empty exercise name")
		}
	}
	seen := map[string]bool{}
	for _, g := range c.Challenges.Genesis {
		if g.ID == "" || g.Title == "" {
			return fmt.Errorf("genesis challenge requires id and title")
		}
		if seen[g.ID] {
			return fmt.Errorf("genesis challenge %s duplicated", g.ID)
		}
		seen[g.ID] = true
		if g.TargetDays <= 0 {
			return fmt.Errorf("genesis challenge %s needs target_days > 0", g.ID)
		}
		if g.Category != "" && !categories[g.Category] {
			return fmt.Errorf("genesis challenge %s has unknown category %s", g.ID, g.Category)
		}
		if g.Recurrence != "" && !recurrences[g.Recurrence] {
			return fmt.Errorf("genesis challenge %s has unknown recurrence %s", g.ID, g.Recurrence)
		}
	}
	if c.Relay.MaxEntries < 0 || c.Relay.StaleSecs < 0 || c.Relay.BatchSize < 0 {
		return fmt.Errorf("config.relay values must be non-negative")
	}
	return nil
}

// KnownExercise reports whether the exercise name is in the catalog.
func (c *Config) KnownExercise(name string) bool {
	_, ok := c.Exercises.Catalog[name]
	return ok
}

// TimeBased reports whether the exercise is duration-scored.
func (c *Config) TimeBased(name string) bool {
	ex, ok := c.Exercises.Catalog[name]
	return ok && ex.TimeBased
}

// ProofURLAccepted reports whether a settlement proof link matches a configured marker.
func (c *Config) ProofURLAccepted(url string) bool {
	lowered := strings.ToLower(strings.TrimSpace(url))
	if lowered == "" {
		return false
	}
	for _, m := range c.Verification.ProofMarkers {
		if strings.Contains(lowered, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bitfit.yml")
}

// Load reads and validates config from the workspace, falling back to the
// default config when bitfit.yml does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

const defaultTemplate = `participant:
  name: Satoshi_21

verification:
  confidence_threshold: 80
  proof_markers:
    - twitter.com
    - x.com
    - nostr
    - primal.net

exercises:
  catalog:
    Push-ups:
      description: "Core tight, elbows at 45 degrees, full range of motion"
    Squats:
      description: "Chest up, weight on heels, parallel or below"
    Pull-ups:
      description: "Engage the lats, chest toward the bar"
    Lunges:
      description: "Front knee behind the toes, stay upright"
    Plank:
      description: "Straight line from head to heels"
      time_based: true
    Burpees:
      description: "Explosive movement, land softly"
    Run:
      description: "Steady rhythm, soft foot strikes"
      time_based: true
    Crunches:
      description: "Abs, not neck; small controlled movements"

challenges:
  genesis:
    - id: ch-genesis-strength
      title: Genesis Block Strength
      description: "Complete at least one workout every day for 7 days."
      target_days: 7
      category: genesis
      reward_sats: 2100
      recurrence: once
    - id: ch-squat-sprint
      title: "Satoshi's Squat Sprint"
      description: "Log squats on 30 distinct days."
      target_days: 30
      category: sprint
      reward_sats: 10000
      recurrence: once
    - id: ch-30-day-pow
      title: 30-Day Proof of Work
      description: "30 days of consistent effort. No days off from movement."
      target_days: 30
      category: endurance
      reward_sats: 21000
      recurrence: monthly

oracle:
  enabled: true
  endpoint: ""
  model: vision-oracle-1
  timeout_secs: 20

relay:
  max_entries: 50
  stale_secs: 120
  batch_size: 5
  location: Global Relay
`
