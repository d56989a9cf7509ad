package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/clauderelay/clauderelay/pkg/types"
)

// Default values applied by Load when the merged configuration leaves
// a knob unset.
const (
	DefaultPort                  = 8080
	DefaultClaudeBinary          = "claude"
	DefaultClaudeTimeoutSeconds  = 300
	DefaultInactivityMinutes     = 30
	DefaultTrackerMaxRetries     = 3
	DefaultSweepIntervalMinutes  = 5
	DefaultBackupIntervalMinutes = 5
	DefaultMaxBackups            = 10
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/clauderelay/)
// 2. Project config (.clauderelay/ in the working directory)
// 3. CLAUDERELAY_CONFIG file
// 4. CLAUDERELAY_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "clauderelay.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "clauderelay.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".clauderelay")
		loadOnce(filepath.Join(directory, "clauderelay.json"), directory)
		loadOnce(filepath.Join(directory, "clauderelay.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "clauderelay.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "clauderelay.jsonc"), projectConfigDir)
	}

	// 3. CLAUDERELAY_CONFIG file override
	if configPath := os.Getenv("CLAUDERELAY_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. CLAUDERELAY_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("CLAUDERELAY_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(content))
	})

	return []byte(str)
}

// mergeConfig merges src into dst, with src taking precedence for set fields.
func mergeConfig(dst, src *types.Config) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogPretty {
		dst.LogPretty = true
	}
	if src.Claude.Binary != "" {
		dst.Claude.Binary = src.Claude.Binary
	}
	if src.Claude.SessionsDir != "" {
		dst.Claude.SessionsDir = src.Claude.SessionsDir
	}
	if src.Claude.Model != "" {
		dst.Claude.Model = src.Claude.Model
	}
	if src.Claude.TimeoutSeconds != 0 {
		dst.Claude.TimeoutSeconds = src.Claude.TimeoutSeconds
	}
	if src.Tracker.InactivityTimeoutMinutes != 0 {
		dst.Tracker.InactivityTimeoutMinutes = src.Tracker.InactivityTimeoutMinutes
	}
	if src.Tracker.MaxRetries != 0 {
		dst.Tracker.MaxRetries = src.Tracker.MaxRetries
	}
	if src.Tracker.SweepIntervalMinutes != 0 {
		dst.Tracker.SweepIntervalMinutes = src.Tracker.SweepIntervalMinutes
	}
	if src.Tracker.Watch {
		dst.Tracker.Watch = true
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Store.BackupsDir != "" {
		dst.Store.BackupsDir = src.Store.BackupsDir
	}
	if src.Store.BackupIntervalMinutes != 0 {
		dst.Store.BackupIntervalMinutes = src.Store.BackupIntervalMinutes
	}
	if src.Store.MaxBackups != 0 {
		dst.Store.MaxBackups = src.Store.MaxBackups
	}
}

// applyEnvOverrides applies CLAUDERELAY_* environment variables.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("CLAUDERELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v := os.Getenv("CLAUDERELAY_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("CLAUDERELAY_CLAUDE_BIN"); v != "" {
		config.Claude.Binary = v
	}
	if v := os.Getenv("CLAUDERELAY_SESSIONS_DIR"); v != "" {
		config.Claude.SessionsDir = v
	}
	if v := os.Getenv("CLAUDERELAY_MODEL"); v != "" {
		config.Claude.Model = v
	}
	if v := os.Getenv("CLAUDERELAY_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("CLAUDERELAY_BACKUPS_DIR"); v != "" {
		config.Store.BackupsDir = v
	}
}

// applyDefaults fills in zero-valued knobs.
func applyDefaults(config *types.Config) {
	paths := GetPaths()

	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.Claude.Binary == "" {
		config.Claude.Binary = DefaultClaudeBinary
	}
	if config.Claude.SessionsDir == "" {
		config.Claude.SessionsDir = ClaudeSessionsPath()
	}
	if config.Claude.TimeoutSeconds == 0 {
		config.Claude.TimeoutSeconds = DefaultClaudeTimeoutSeconds
	}
	if config.Tracker.InactivityTimeoutMinutes == 0 {
		config.Tracker.InactivityTimeoutMinutes = DefaultInactivityMinutes
	}
	if config.Tracker.MaxRetries == 0 {
		config.Tracker.MaxRetries = DefaultTrackerMaxRetries
	}
	if config.Tracker.SweepIntervalMinutes == 0 {
		config.Tracker.SweepIntervalMinutes = DefaultSweepIntervalMinutes
	}
	if config.Store.Path == "" {
		config.Store.Path = paths.StorePath()
	}
	if config.Store.BackupsDir == "" {
		config.Store.BackupsDir = paths.BackupsPath()
	}
	if config.Store.BackupIntervalMinutes == 0 {
		config.Store.BackupIntervalMinutes = DefaultBackupIntervalMinutes
	}
	if config.Store.MaxBackups == 0 {
		config.Store.MaxBackups = DefaultMaxBackups
	}
}
