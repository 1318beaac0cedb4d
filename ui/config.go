package ui

// Config contains TUI-specific configuration.
type Config struct {
	GlamourMaxWidth  uint
	GlamourStyle     string `env:"GLAMOUR_STYLE"`
	EnableMouse      bool
	PreserveNewLines bool

	// Path of the document being read.
	Path string

	// Watch reloads the document when the file changes on disk.
	Watch bool

	// For debugging the UI
	GlamourEnabled bool `env:"PAGECAST_ENABLE_GLAMOUR" envDefault:"true"`
	AutoPlay       bool `env:"PAGECAST_AUTOPLAY"       envDefault:"true"`
}
