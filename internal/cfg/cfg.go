// Package cfg allows for reading the user's configuration.
package cfg

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

//go:embed default.toml
var defaultProfile []byte

// Profile contains an entire configuration profile.
type Profile struct {
	LogLevel string `toml:"log_level"` // Log verbosity (error .. verbose)
	LogPath  string `toml:"log_path"`  // Log file path, blank for console only

	Display struct {
		IdleHz  int     `toml:"idle_hz"`  // Plugin-UI loop rate
		UIScale float64 `toml:"ui_scale"` // Reported plugin scale factor
	} `toml:"display"`

	Bridge struct {
		Enabled bool   `toml:"enabled"` // Whether to serve the control bridge
		Listen  string `toml:"listen"`  // Bridge listen address
	} `toml:"bridge"`
}

// GetDirectory returns the path to the user's configuration directory.
func GetDirectory() (string, error) {
	// UserConfigDir automatically checks for $XDG_CONFIG_HOME and falls back
	// to $HOME/.config, so we don't need to do any special checks ourselves.
	xdgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return xdgDir + "/plugview/", nil
}

// GetProfile returns a parsed configuration profile.
func GetProfile(name string) (Profile, error) {
	dir, err := GetDirectory()
	if err != nil {
		return Profile{}, fmt.Errorf("get config directory: %w", err)
	}
	return ReadProfile(dir + name + ".toml")
}

// ReadProfile parses and validates the profile at path.
func ReadProfile(path string) (Profile, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read config file: %w", err)
	}
	profile := Profile{}
	if err = toml.Unmarshal(file, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse config file: %w", err)
	}
	if err = validateProfile(&profile); err != nil {
		return Profile{}, fmt.Errorf("validate config: %w", err)
	}
	return profile, nil
}

// MakeProfile makes a new configuration profile with the given name and the
// default settings.
func MakeProfile(name string) error {
	dir, err := GetDirectory()
	if err != nil {
		return fmt.Errorf("get config directory: %w", err)
	}
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			err := os.Mkdir(dir, 0755)
			if err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
		}
	} else {
		if !stat.IsDir() {
			return fmt.Errorf("config directory (%s) is not a directory", dir)
		}
	}
	return os.WriteFile(dir+name+".toml", defaultProfile, 0644)
}

// validateProfile ensures that the user's configuration profile does not
// have any illegal or invalid settings, filling in defaults where a zero
// value has an obvious one.
func validateProfile(conf *Profile) error {
	if conf.Display.IdleHz == 0 {
		conf.Display.IdleHz = 60
	}
	if conf.Display.IdleHz < 1 || conf.Display.IdleHz > 1000 {
		return errors.New("invalid idle rate")
	}
	if conf.Display.UIScale == 0 {
		conf.Display.UIScale = 1.0
	}
	if conf.Display.UIScale < 0.1 || conf.Display.UIScale > 4.0 {
		return errors.New("invalid ui scale")
	}
	if conf.Bridge.Enabled && conf.Bridge.Listen == "" {
		return errors.New("bridge enabled without a listen address")
	}
	return nil
}
