package config

// Backend persists the non-secret settings `profedit config set` writes and
// Load reads back. macOS keeps them in UserDefaults, other platforms in a
// JSON file under XDG_CONFIG_HOME. The session credential never goes here.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
