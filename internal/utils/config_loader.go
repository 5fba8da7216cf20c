package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"netwatch/internal/alert"
	"netwatch/internal/baseline"
	"netwatch/internal/correlator"
	"netwatch/internal/intel"
	"netwatch/internal/pipeline"
	"netwatch/internal/rules"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "configs/netwatch.yaml"

type Config struct {
	Application ApplicationYAMLConfig `yaml:"application"`
	Source      SourceYAMLConfig      `yaml:"source"`
	ThreatIntel ThreatIntelYAMLConfig `yaml:"threat_intel"`
	Detection   DetectionYAMLConfig   `yaml:"detection"`
	Alerting    AlertingYAMLConfig    `yaml:"alerting"`
	Logging     LoggingYAMLConfig     `yaml:"logging"`
}

type ApplicationYAMLConfig struct {
	RulesDir            string `yaml:"rules_dir"`
	RulesExtension      string `yaml:"rules_extension"`
	PrometheusExportURL string `yaml:"prometheus_export_url"`
	APIEnabled          bool   `yaml:"api_enabled"`
	APIPort             string `yaml:"api_port"`
	MaxStoredAlerts     int    `yaml:"max_stored_alerts"`
}

type SourceYAMLConfig struct {
	// Type is one of pcap, hubble or none
	Type         string   `yaml:"type"`
	PcapFile     string   `yaml:"pcap_file"`
	HubbleServer string   `yaml:"hubble_server"`
	Namespaces   []string `yaml:"namespaces"`
	QueueSize    int      `yaml:"queue_size"`
	Backpressure string   `yaml:"backpressure"`
	// CaptureClock times alerts and the correlation window by packet
	// timestamps, so a pcap replay escalates at capture speed
	CaptureClock bool `yaml:"capture_clock"`
}

type ThreatIntelYAMLConfig struct {
	MaliciousIPsFile     string `yaml:"malicious_ips_file"`
	MaliciousDomainsFile string `yaml:"malicious_domains_file"`
	MaliciousHashesFile  string `yaml:"malicious_hashes_file"`
	HitScore             int    `yaml:"hit_score"`
	CorrelateDomains     bool   `yaml:"correlate_domains"`
}

type DetectionYAMLConfig struct {
	UnusualPortThreshold     int `yaml:"unusual_port_threshold"`
	LargeTransferBytes       int `yaml:"large_transfer_bytes"`
	CorrelationWindowSeconds int `yaml:"correlation_window_seconds"`
	EscalationCount          int `yaml:"escalation_count"`
	EscalationBonus          int `yaml:"escalation_bonus"`
}

type AlertingYAMLConfig struct {
	Channels AlertChannelsYAML  `yaml:"channels"`
	File     AlertFileYAML      `yaml:"file"`
	Telegram TelegramYAMLConfig `yaml:"telegram"`
}

type AlertChannelsYAML struct {
	Log      bool `yaml:"log"`
	File     bool `yaml:"file"`
	Telegram bool `yaml:"telegram"`
}

type AlertFileYAML struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TelegramYAMLConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	Enabled         bool   `yaml:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty"`
	MinThreatScore  int    `yaml:"min_threat_score"`
	EscalatedOnly   bool   `yaml:"escalated_only"`
}

type LoggingYAMLConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultConfigFile
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate fills defaults for unset values and rejects impossible ones
func (c *Config) Validate() error {
	if c.Application.RulesDir == "" {
		c.Application.RulesDir = "rules/professional"
	}
	if c.Application.RulesExtension == "" {
		c.Application.RulesExtension = rules.DefaultRulesExtension
	}
	if c.Application.PrometheusExportURL == "" {
		c.Application.PrometheusExportURL = "9100"
	}
	if c.Application.APIPort == "" {
		c.Application.APIPort = "5001"
	}
	if c.Application.MaxStoredAlerts <= 0 {
		c.Application.MaxStoredAlerts = 10000
	}

	switch c.Source.Type {
	case "":
		c.Source.Type = "none"
	case "none", "pcap", "hubble":
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}
	if c.Source.Type == "pcap" && c.Source.PcapFile == "" {
		return fmt.Errorf("source type pcap requires pcap_file")
	}
	if c.Source.HubbleServer == "" {
		c.Source.HubbleServer = "localhost:4245"
	}
	if c.Source.QueueSize <= 0 {
		c.Source.QueueSize = 1024
	}
	policy, err := pipeline.ParseBackpressure(c.Source.Backpressure)
	if err != nil {
		return err
	}
	c.Source.Backpressure = string(policy)

	if c.ThreatIntel.HitScore <= 0 {
		c.ThreatIntel.HitScore = intel.DefaultHitScore
	}

	if c.Detection.UnusualPortThreshold <= 0 {
		c.Detection.UnusualPortThreshold = baseline.DefaultUnusualPortThreshold
	}
	if c.Detection.LargeTransferBytes <= 0 {
		c.Detection.LargeTransferBytes = baseline.DefaultLargeTransferBytes
	}
	if c.Detection.CorrelationWindowSeconds <= 0 {
		c.Detection.CorrelationWindowSeconds = int(correlator.DefaultWindow / time.Second)
	}
	if c.Detection.EscalationCount <= 0 {
		c.Detection.EscalationCount = correlator.DefaultEscalationCount
	}
	if c.Detection.EscalationBonus < 0 {
		c.Detection.EscalationBonus = correlator.DefaultEscalationBonus
	}

	if c.Alerting.File.Path == "" {
		c.Alerting.File.Path = alert.DefaultAlertFile
	}
	if c.Alerting.File.MaxSizeMB <= 0 {
		c.Alerting.File.MaxSizeMB = alert.DefaultAlertMaxSizeMB
	}
	if c.Alerting.File.MaxBackups <= 0 {
		c.Alerting.File.MaxBackups = alert.DefaultAlertMaxBackups
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	c.Logging.Level = strings.ToUpper(c.Logging.Level)
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// GetPrometheusPort extracts port from PrometheusExportURL
func (c *Config) GetPrometheusPort() string {
	exportPort := c.Application.PrometheusExportURL
	if strings.Contains(exportPort, ":") {
		parts := strings.Split(exportPort, ":")
		if len(parts) > 0 {
			exportPort = parts[len(parts)-1]
		}
	}
	return exportPort
}

// CorrelatorConfig converts the detection section for the correlator
func (c *Config) CorrelatorConfig() correlator.Config {
	return correlator.Config{
		Window:           time.Duration(c.Detection.CorrelationWindowSeconds) * time.Second,
		EscalationCount:  c.Detection.EscalationCount,
		EscalationBonus:  c.Detection.EscalationBonus,
		CorrelateDomains: c.ThreatIntel.CorrelateDomains,
	}
}

// IntelFiles converts the threat intel section for the intel loader
func (c *Config) IntelFiles() intel.Files {
	return intel.Files{
		MaliciousIPs:     c.ThreatIntel.MaliciousIPsFile,
		MaliciousDomains: c.ThreatIntel.MaliciousDomainsFile,
		MaliciousHashes:  c.ThreatIntel.MaliciousHashesFile,
	}
}

// GetDefaultConfig returns the configuration used when no file is available
func GetDefaultConfig() *Config {
	return &Config{
		Application: ApplicationYAMLConfig{
			RulesDir:            "rules/professional",
			RulesExtension:      rules.DefaultRulesExtension,
			PrometheusExportURL: "9100",
			APIEnabled:          true,
			APIPort:             "5001",
			MaxStoredAlerts:     10000,
		},
		Source: SourceYAMLConfig{
			Type:         "none",
			HubbleServer: "localhost:4245",
			QueueSize:    1024,
			Backpressure: string(pipeline.BackpressureBlock),
		},
		ThreatIntel: ThreatIntelYAMLConfig{
			MaliciousIPsFile:     "threat_intel/malicious_ips.txt",
			MaliciousDomainsFile: "threat_intel/malicious_domains.txt",
			MaliciousHashesFile:  "threat_intel/malicious_hashes.txt",
			HitScore:             intel.DefaultHitScore,
		},
		Detection: DetectionYAMLConfig{
			UnusualPortThreshold:     baseline.DefaultUnusualPortThreshold,
			LargeTransferBytes:       baseline.DefaultLargeTransferBytes,
			CorrelationWindowSeconds: int(correlator.DefaultWindow / time.Second),
			EscalationCount:          correlator.DefaultEscalationCount,
			EscalationBonus:          correlator.DefaultEscalationBonus,
		},
		Alerting: AlertingYAMLConfig{
			Channels: AlertChannelsYAML{
				Log:  true,
				File: true,
			},
			File: AlertFileYAML{
				Path:       alert.DefaultAlertFile,
				MaxSizeMB:  alert.DefaultAlertMaxSizeMB,
				MaxBackups: alert.DefaultAlertMaxBackups,
			},
			Telegram: TelegramYAMLConfig{
				ParseMode:      "Markdown",
				MinThreatScore: 100,
			},
		},
		Logging: LoggingYAMLConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
