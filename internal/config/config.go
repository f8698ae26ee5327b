// Package config loads and validates the runtime's typed configuration
// tree, read once at startup, following the teacher's caarlos0/env
// struct-tag pattern.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// ServerConfig is the server{} namespace from the configuration tree.
type ServerConfig struct {
	Host      string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	Port      int    `env:"SERVER_PORT" envDefault:"8765"`
	AdminPort int    `env:"SERVER_ADMIN_PORT" envDefault:"8766"`
	LogLevel  string `env:"SERVER_LOG_LEVEL" envDefault:"info"`
	DebugMode bool   `env:"SERVER_DEBUG_MODE" envDefault:"false"`
	MCPPath   string `env:"SERVER_MCP_PATH" envDefault:"/mcp"`
}

// LLMConfig is the llm{} namespace.
type LLMConfig struct {
	BaseURL        string  `env:"LLM_BASE_URL" envDefault:"http://localhost:11434/v1"`
	DefaultModel   string  `env:"LLM_DEFAULT_MODEL" envDefault:"llama3"`
	Temperature    float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens      int     `env:"LLM_MAX_TOKENS" envDefault:"512"`
	TimeoutSeconds int     `env:"LLM_TIMEOUT_SECONDS" envDefault:"30"`
	Stream         bool    `env:"LLM_STREAM" envDefault:"true"`
}

// MemoryConfig is the memory{} namespace.
type MemoryConfig struct {
	MaxPerPersona         int     `env:"MEMORY_MAX_PER_PERSONA" envDefault:"1000"`
	ImportanceThreshold   float64 `env:"MEMORY_IMPORTANCE_THRESHOLD" envDefault:"0.1"`
	DecayEnabled          bool    `env:"MEMORY_DECAY_ENABLED" envDefault:"true"`
	DecayIntervalSeconds  int     `env:"MEMORY_DECAY_INTERVAL_SECONDS" envDefault:"3600"`
	PruningEnabled        bool    `env:"MEMORY_PRUNING_ENABLED" envDefault:"true"`
	PruningIntervalSeconds int    `env:"MEMORY_PRUNING_INTERVAL_SECONDS" envDefault:"3600"`
	DecayRate             float64 `env:"MEMORY_DECAY_RATE" envDefault:"0.02"`
}

// SessionConfig is the session{} namespace.
type SessionConfig struct {
	MaxContextMessages       int `env:"SESSION_MAX_CONTEXT_MESSAGES" envDefault:"20"`
	ContextSummaryThreshold  int `env:"SESSION_CONTEXT_SUMMARY_THRESHOLD" envDefault:"50"`
	SessionTimeoutHours      int `env:"SESSION_TIMEOUT_HOURS" envDefault:"1"`
	TickIntervalSeconds      int `env:"SESSION_TICK_INTERVAL_SECONDS" envDefault:"300"`
	MaxStreamingSessions     int `env:"SESSION_MAX_STREAMING" envDefault:"64"`
}

// PersonaConfig is the persona{} namespace. Only the Regen* and *Ceiling
// fields are read (by emotion.Worker, wired in cmd/server); the threshold,
// score and cooldown fields are loaded but not read, since
// conversation.Engine and domain.InteractionState use built-in values.
type PersonaConfig struct {
	MinTimeThreshold                 float64 `env:"PERSONA_MIN_TIME_THRESHOLD" envDefault:"30"`
	LowTokenBudget                   int     `env:"PERSONA_LOW_TOKEN_BUDGET" envDefault:"50"`
	LowSocialEnergy                  float64 `env:"PERSONA_LOW_SOCIAL_ENERGY" envDefault:"10"`
	BaseCooldownSeconds              float64 `env:"PERSONA_BASE_COOLDOWN_SECONDS" envDefault:"300"`
	HighContinueScore                int     `env:"PERSONA_HIGH_CONTINUE_SCORE" envDefault:"70"`
	LowContinueScore                 int     `env:"PERSONA_LOW_CONTINUE_SCORE" envDefault:"40"`
	SatisfyingConversationMultiplier float64 `env:"PERSONA_SATISFYING_MULTIPLIER" envDefault:"0.6"`
	UnsatisfyingConversationMultiplier float64 `env:"PERSONA_UNSATISFYING_MULTIPLIER" envDefault:"1.5"`

	RegenEnabled             bool    `env:"PERSONA_REGEN_ENABLED" envDefault:"true"`
	RegenIntervalSeconds     int     `env:"PERSONA_REGEN_INTERVAL_SECONDS" envDefault:"300"`
	AvailableTimeCeiling     float64 `env:"PERSONA_AVAILABLE_TIME_CEILING" envDefault:"3600"`
	SocialEnergyCeiling      float64 `env:"PERSONA_SOCIAL_ENERGY_CEILING" envDefault:"150"`
}

// ConversationConfig is the conversation{} namespace — continue-score
// engine weights and the status-compatibility table.
type ConversationConfig struct {
	MaxTimeScore     float64 `env:"CONVERSATION_MAX_TIME_SCORE" envDefault:"30"`
	MaxTopicScore    float64 `env:"CONVERSATION_MAX_TOPIC_SCORE" envDefault:"25"`
	MaxSocialScore   float64 `env:"CONVERSATION_MAX_SOCIAL_SCORE" envDefault:"20"`
	MaxFatiguePenalty float64 `env:"CONVERSATION_MAX_FATIGUE_PENALTY" envDefault:"15"`
	MaxResourceScore float64 `env:"CONVERSATION_MAX_RESOURCE_SCORE" envDefault:"10"`

	UrgentDecayRate    float64 `env:"CONVERSATION_URGENT_DECAY_RATE" envDefault:"60"`
	ImportantDecayRate float64 `env:"CONVERSATION_IMPORTANT_DECAY_RATE" envDefault:"180"`
	CasualDecayRate    float64 `env:"CONVERSATION_CASUAL_DECAY_RATE" envDefault:"600"`

	StatusHierarchy              []string `env:"CONVERSATION_STATUS_HIERARCHY" envSeparator:","`
	SameStatusCompatibility      float64  `env:"CONVERSATION_SAME_STATUS_COMPAT" envDefault:"10"`
	AdjacentStatusCompatibility  float64  `env:"CONVERSATION_ADJACENT_STATUS_COMPAT" envDefault:"8"`
	DistantStatusCompatibility   float64  `env:"CONVERSATION_DISTANT_STATUS_COMPAT" envDefault:"3"`
	DefaultStatusCompatibility   float64  `env:"CONVERSATION_DEFAULT_STATUS_COMPAT" envDefault:"5"`
	LargeStatusGapThreshold      int      `env:"CONVERSATION_LARGE_STATUS_GAP" envDefault:"2"`
}

// DatabaseConfig is the database{} namespace.
type DatabaseConfig struct {
	SQLitePath string `env:"DATABASE_SQLITE_PATH" envDefault:"./data/persona.db"`
	VectorPath string `env:"DATABASE_VECTOR_PATH" envDefault:"./data/persona_vectors.db"`
	PoolSize   int    `env:"DATABASE_POOL_SIZE" envDefault:"4"`
	EnableWAL  bool   `env:"DATABASE_ENABLE_WAL" envDefault:"true"`
}

// Config is the root configuration value, read once at startup and passed
// explicitly into constructors rather than read at call sites.
type Config struct {
	Server       ServerConfig
	LLM          LLMConfig
	Memory       MemoryConfig
	Session      SessionConfig
	Persona      PersonaConfig
	Conversation ConversationConfig
	Database     DatabaseConfig
}

// Load reads and validates configuration from the environment. godotenv is
// expected to have already been applied by the caller (best-effort) so
// that `.env` values appear as environment variables here.
func Load() (*Config, error) {
	cfg := &Config{
		Conversation: ConversationConfig{
			StatusHierarchy: []string{"novice", "junior", "senior", "elder"},
		},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the rejection/warning rules from §6: reject
// non-positive ports, identical MCP/admin ports, empty sqlite_path; warn
// on missing LLM base_url is the caller's responsibility (logged, not
// fatal) since Validate only returns hard failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: server.port must be positive, got %d", c.Server.Port)
	}
	if c.Server.AdminPort <= 0 {
		return fmt.Errorf("config: server.admin_port must be positive, got %d", c.Server.AdminPort)
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("config: server.port and server.admin_port must differ, both %d", c.Server.Port)
	}
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("config: database.sqlite_path must not be empty")
	}
	return nil
}

// MissingLLMBaseURL reports whether the LLM base URL looks unset, used by
// the caller to log a startup warning without failing validation.
func (c *Config) MissingLLMBaseURL() bool {
	return c.LLM.BaseURL == ""
}
