package temporalx

import "strings"

// Config is filled by the app config layer. An empty Address disables Temporal.
type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	AutoRegisterNamespace  bool `yaml:"auto_register_namespace"`
	NamespaceRetentionDays int  `yaml:"namespace_retention_days"`
	DialTimeoutSeconds     int  `yaml:"dial_timeout_seconds"`
	DialMaxWaitSeconds     int  `yaml:"dial_max_wait_seconds"`
	WorkerConcurrency      int  `yaml:"worker_concurrency"`

	// GroupTimeoutSeconds bounds how long a processing group waits for its result signal.
	GroupTimeoutSeconds int `yaml:"group_timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:              "docprov",
		TaskQueue:              "docprov",
		NamespaceRetentionDays: 7,
		DialTimeoutSeconds:     5,
		DialMaxWaitSeconds:     60,
		WorkerConcurrency:      4,
		GroupTimeoutSeconds:    3600,
	}
}

// Normalized fills zero values from DefaultConfig.
func (c Config) Normalized() Config {
	def := DefaultConfig()
	c.Address = strings.TrimSpace(c.Address)
	c.Namespace = stringsOr(strings.TrimSpace(c.Namespace), def.Namespace)
	c.TaskQueue = stringsOr(strings.TrimSpace(c.TaskQueue), def.TaskQueue)
	if c.NamespaceRetentionDays < 1 || c.NamespaceRetentionDays > 365 {
		c.NamespaceRetentionDays = def.NamespaceRetentionDays
	}
	if c.DialTimeoutSeconds <= 0 {
		c.DialTimeoutSeconds = def.DialTimeoutSeconds
	}
	if c.DialMaxWaitSeconds < 0 {
		c.DialMaxWaitSeconds = 0
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = def.WorkerConcurrency
	}
	if c.GroupTimeoutSeconds <= 0 {
		c.GroupTimeoutSeconds = def.GroupTimeoutSeconds
	}
	return c
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
