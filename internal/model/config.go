package model

type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
}

type SchedulerConfig struct {
	// PickTimeoutSec is the idle threshold after which a picked task is
	// escalated into a blocked ticket. Non-positive values fall back to
	// the 30s default with a warning.
	PickTimeoutSec int `yaml:"pick_timeout_sec"`

	// ManualMode disables auto-routing: newly observed open ai_to_human
	// tickets are parked in pending until a human promotes them.
	ManualMode bool `yaml:"manual_mode"`
}

type StoreConfig struct {
	Path        string  `yaml:"path"`
	DebounceSec float64 `yaml:"debounce_sec"`
}

type DaemonConfig struct {
	ScanIntervalSec    int    `yaml:"scan_interval_sec"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	APIAddr            string `yaml:"api_addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type LLMConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}
