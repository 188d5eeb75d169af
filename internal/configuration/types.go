package configuration

type MqttConfiguration struct {
	Address     string `yaml:"address"`
	Port        uint16 `yaml:"port"`
	Topic       string `yaml:"topic"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	UseTLS      bool   `yaml:"use_tls"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type BackoffConfiguration struct {
	MinSeconds         uint32 `yaml:"min_seconds"`
	MaxSeconds         uint32 `yaml:"max_seconds"`
	StableResetSeconds uint32 `yaml:"stable_reset_seconds"`
}

type ExportConfiguration struct {
	// DataDirectory is where graph and series artifacts are written.
	DataDirectory string `yaml:"data_directory"`
	// RSSIPolicy selects the representative signal value for an edge
	// observed multiple times in a window: "latest" or "mean".
	RSSIPolicy string `yaml:"rssi_policy"`
}

type Configuration struct {
	MqttConfiguration    MqttConfiguration    `yaml:"mqtt"`
	BackoffConfiguration BackoffConfiguration `yaml:"backoff"`
	ExportConfiguration  ExportConfiguration  `yaml:"export"`
	DatabasePath         string               `yaml:"database_path"`
	MetricsAddress       string               `yaml:"metrics_address"`
	LogLevel             int                  `yaml:"log_level"` // error=0, warn=1, info=2, debug=3
}
