package chatmind

// Application-wide defaults shared by config discovery and the storage
// drivers.
const (
	DefaultAppName      = "chatmind"
	DefaultConfigPath   = "/etc/chatmind"
	DefaultDataDir      = ".chatmind/data"
	DefaultDatabaseFile = ".chatmind/data/conversations.db"

	// DirectScope is the sentinel scope for conversations held outside any
	// guild (direct messages).
	DirectScope = "direct"
)
