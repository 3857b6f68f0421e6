package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Docker holds container engine client settings.
type Docker struct {
	APIVersion                string `yaml:"api_version" mapstructure:"api_version"`
	FallbackAPIVersion        string `yaml:"fallback_api_version" mapstructure:"fallback_api_version"`
	NegotiationTimeoutSeconds int    `yaml:"negotiation_timeout_seconds" mapstructure:"negotiation_timeout_seconds"`
	StopTimeoutSeconds        int    `yaml:"stop_timeout_seconds" mapstructure:"stop_timeout_seconds"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Sysctl holds kernel tunable settings.
type Sysctl struct {
	PersistFile string `yaml:"persist_file" mapstructure:"persist_file"`
}

// Config is the berthfile: daemon-side settings that are host concerns, not
// stack concerns. The stack file stays separate and declarative. Viper
// decodes through the mapstructure tags; the yaml tags keep the shape
// serializable on its own.
type Config struct {
	DataDir      string `yaml:"data_dir" mapstructure:"data_dir"`
	StackFile    string `yaml:"stack_file" mapstructure:"stack_file"`
	TemplatesDir string `yaml:"templates_dir" mapstructure:"templates_dir"`
	Docker       Docker `yaml:"docker" mapstructure:"docker"`
	Log          Log    `yaml:"log" mapstructure:"log"`
	Sysctl       Sysctl `yaml:"sysctl" mapstructure:"sysctl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:      defaultDataDir(),
		StackFile:    "stack.yaml",
		TemplatesDir: "templates",
		Docker:       Docker{FallbackAPIVersion: "1.43", NegotiationTimeoutSeconds: 3, StopTimeoutSeconds: 30},
		Log:          Log{Level: "info", Format: "text"},
		Sysctl:       Sysctl{PersistFile: "/etc/sysctl.d/90-berth.conf"},
	}
}

func defaultDataDir() string {
	// prefer /var/lib/berth when the system tree exists
	if st, err := os.Stat("/var/lib"); err == nil && st.IsDir() {
		return "/var/lib/berth"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".berth")
}

// SecretsFile is the master secret store path under the data dir.
func (c *Config) SecretsFile() string {
	return filepath.Join(c.DataDir, "secrets", "stack.env")
}

// EnvDir holds the per-service scoped env files.
func (c *Config) EnvDir() string {
	return filepath.Join(c.DataDir, "env")
}

// StateDir holds the embedded deploy-state database.
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// Load reads the berthfile. An explicit path is authoritative; otherwise
// the file is discovered in the working directory, $HOME/.berth and
// /etc/berth. Environment variables with the BERTH_ prefix override file
// values (BERTH_DATA_DIR, BERTH_LOG_LEVEL, ...). A missing berthfile is
// not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("berthfile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir(), ".berth"))
		v.AddConfigPath("/etc/berth/")
	}
	v.SetEnvPrefix("BERTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		// an explicitly named berthfile must exist
		if path != "" {
			return nil, err
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(v, cfg)
	return cfg, nil
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// applyEnvOverrides picks up BERTH_ variables even when no berthfile was
// found, since AutomaticEnv only affects keys viper knows about.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if s := v.GetString("data_dir"); s != "" {
		cfg.DataDir = s
	}
	if s := v.GetString("stack_file"); s != "" {
		cfg.StackFile = s
	}
	if s := v.GetString("templates_dir"); s != "" {
		cfg.TemplatesDir = s
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log_format"); s != "" {
		cfg.Log.Format = s
	}
}
