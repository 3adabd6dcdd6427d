package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (token, cache location, database) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PresenceChanged bool
	NewPresence     DiscordConfig
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Discord.Status != new.Discord.Status ||
		old.Discord.ActivityType != new.Discord.ActivityType ||
		old.Discord.Activity != new.Discord.Activity {
		d.PresenceChanged = true
		d.NewPresence = new.Discord
	}

	return d
}
