package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech engine: gtts, piper or google
engine: "gtts"
# speaking rate offset, from -50% to +100%
rate: "+0%"
# move to the next page when a page finishes
auto_advance: true
# let auto-advance pass over pages without text
skip_empty_pages: false
# pages synthesized ahead of the current one
lookahead: 1
# page extraction: lazy (on first read) or eager (when opened)
store: "lazy"
# reload the document when it changes on disk
watch: true
# style name or JSON path (default "auto")
style: "auto"
# word-wrap at width (0 to use the terminal width)
width: 0
# mouse support
mouse: false
# serve Prometheus metrics on this address, e.g. "localhost:9090"
metrics_addr: ""

cache:
  # window keeps pages around the current one, unbounded keeps everything
  policy: "window"
  # memory ceiling, e.g. "64MB" (0 for none)
  max_bytes: "0"
  # zstd-compress stored audio
  compress: false

synth:
  # pages with fewer characters are treated as empty
  min_text_length: 3
  timeout: "30s"
  # 0 disables throttling
  requests_per_minute: 50

gtts:
  language: "en"
  slow: false

piper:
  binary: "piper"
  # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
  model: ""

google:
  language_code: "en-US"
  # voice_name: "en-US-Standard-A"
  voice_name: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the pagecast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the pagecast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("pagecast config\npagecast config --config path/to/pagecast.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Pagecast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
