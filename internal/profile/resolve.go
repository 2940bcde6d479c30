package profile

import "github.com/facilitydesk/chatsync/internal/config"

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(GlobalConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// Load reads and validates the named profile's config.
func Load(name string) (*config.Profile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return config.LoadProfile(ConfigPath(name))
}
