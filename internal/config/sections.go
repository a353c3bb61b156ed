package config

// PipelineConfig configures the wave orchestrator and overall analysis run.
type PipelineConfig struct {
	MaxParallelism     int     `yaml:"max_parallelism"`
	TotalTimeout       string  `yaml:"total_timeout"`
	WaveTimeout        string  `yaml:"wave_timeout"` // default per-wave execution timeout
	EnableEarlyExit    bool    `yaml:"enable_early_exit"`
	EarlyExitThreshold float64 `yaml:"early_exit_threshold"`
	ManifestDir        string  `yaml:"manifest_dir"`
	WatchManifests     bool    `yaml:"watch_manifests"` // hot-reload manifest changes
	CacheThreshold     float64 `yaml:"cache_threshold"` // min merged confidence to cache a result

	// WaveOverrides lets operators override manifest parameters per wave,
	// keyed by wave name then parameter name. Highest precedence.
	WaveOverrides map[string]map[string]interface{} `yaml:"wave_overrides"`
}

// CacheConfig configures the in-memory fast-path signature cache.
type CacheConfig struct {
	Capacity           int    `yaml:"capacity"`
	TTL                string `yaml:"ttl"`
	MaxHamming         int    `yaml:"max_hamming"`
	PerceptualIndexCap int    `yaml:"perceptual_index_cap"`
}

// StoreConfig configures the durable signature store.
type StoreConfig struct {
	DatabasePath  string  `yaml:"database_path"`
	FlushInterval string  `yaml:"flush_interval"`
	LRUSize       int     `yaml:"lru_size"`
	LRUExpiry     string  `yaml:"lru_expiry"` // sliding expiration for the read-through LRU
	EMAAlpha      float64 `yaml:"ema_alpha"`
}

// EscalationConfig configures when analysis escalates to the vision LLM / OCR.
type EscalationConfig struct {
	TypeConfidenceFloor float64 `yaml:"type_confidence_floor"`
	SharpnessFloor      float64 `yaml:"sharpness_floor"`
	TextLikelinessFloor float64 `yaml:"text_likeliness_floor"`
	MaxCaptionLength    int     `yaml:"max_caption_length"`
	PromptsPath         string  `yaml:"prompts_path"` // optional prompt template YAML
}

// DiscriminatorConfig configures scoring and effectiveness learning.
type DiscriminatorConfig struct {
	DecayRate      float64 `yaml:"decay_rate"`
	PruneThreshold float64 `yaml:"prune_threshold"`
}

// VisionConfig configures the vision LLM and OCR clients.
type VisionConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
	OCRModel string `yaml:"ocr_model"` // empty = use Model for OCR extraction too
}

// LoggingConfig controls categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}
