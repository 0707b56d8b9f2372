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

const defaultConfig = `# platform voice driver: auto, espeak, say, sapi or fake
engine: "auto"

queue:
  # utterances held before low priority ones are displaced
  capacity: 100
  # how often the dispatcher checks for work (10ms to 1s)
  poll_interval: "50ms"

speech:
  # 0.5 to 2.0
  rate: 1.0
  # 0.5 to 2.0
  pitch: 1.0
  # 0.0 to 1.0
  volume: 1.0
  # voice id, see "voxkit voices"
  voice: ""

neural:
  # model id to use with --neural when none is given
  model: ""
  style: ""
  # where downloaded models live (default: user data directory)
  models_dir: ""
  # read-only directories with preinstalled models
  bundled_dirs: []
  # path to the onnxruntime shared library
  runtime_library: ""
  threads: 0
  playback_sample_rate: 44100

cache:
  enabled: true
  # default: user cache directory
  dir: ""
  memory_mb: 64
  disk_mb: 512
  # zstd level for cached audio
  compression_level: 3

download:
  # http or nats
  source: "http"
  nats_url: "nats://127.0.0.1:4222"
  bucket: "voxkit-models"
  timeout: "30m"

log:
  file: ""
  debug: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the voxkit config file",
	Long:    paragraph(fmt.Sprintf("\n%s the voxkit config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("voxkit config\nvoxkit config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// An invalid file must still be editable.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("voxkit", configFile)
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
