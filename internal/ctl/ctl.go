// Package ctl implements the main controller: it wires the configuration
// profile to the display registry and the control bridge, watches the
// profile for live changes and handles shutdown signals.
package ctl

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"plugview/internal/bridge"
	"plugview/internal/cfg"
	"plugview/internal/display"
	"plugview/internal/log"
)

// Controller manages all of the components necessary for plugview to run
// and handles communication between them.
type Controller struct {
	conf        *cfg.Profile
	profilePath string
	log         *log.Logger

	registry *display.Registry
	bridge   *bridge.Bridge

	signals <-chan os.Signal
}

// Run creates a new controller with the given configuration profile and
// runs it until a shutdown signal arrives.
func Run(conf *cfg.Profile, profilePath string, logger *log.Logger) error {
	c := Controller{
		conf:        conf,
		profilePath: profilePath,
		log:         logger,
	}

	c.registry = display.NewRegistry(logger, display.Options{
		IdleInterval: time.Second / time.Duration(conf.Display.IdleHz),
		UIScale:      conf.Display.UIScale,
	})
	defer c.registry.Shutdown()

	errch := make(chan error, 1)
	if conf.Bridge.Enabled {
		c.bridge = bridge.New(c.registry, logger)
		go func() {
			errch <- c.bridge.ListenAndServe(conf.Bridge.Listen)
		}()
		defer c.bridge.Shutdown()
	}

	if c.profilePath != "" {
		watcher, err := c.watchProfile()
		if err != nil {
			// Live reload is a convenience; run without it.
			logger.Warn("ctl: profile watch failed: %s", err)
		} else {
			defer watcher.Close()
		}
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	c.signals = signals

	logger.Info("ctl: running")
	select {
	case sig := <-c.signals:
		logger.Info("ctl: received %s, shutting down", sig)
		return nil
	case err := <-errch:
		return errors.Wrap(err, "bridge")
	}
}

// Registry exposes the display registry, for embedding hosts that drive
// displays directly instead of through the bridge.
func (c *Controller) Registry() *display.Registry {
	return c.registry
}

// watchProfile reloads the live-tunable settings (log level, UI scale)
// whenever the profile file changes. Structural settings like the bridge
// address still need a restart.
func (c *Controller) watchProfile() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(c.profilePath); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Error("ctl: profile watcher: %s", err)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				conf, err := cfg.ReadProfile(c.profilePath)
				if err != nil {
					c.log.Error("ctl: profile reload: %s", err)
					continue
				}
				c.log.SetLevel(log.LevelFromString(conf.LogLevel))
				c.registry.SetUIScale(conf.Display.UIScale)
				c.log.Info("ctl: profile reloaded (log level %q, ui scale %.2f)",
					conf.LogLevel, conf.Display.UIScale)
				*c.conf = conf
			}
		}
	}()
	return watcher, nil
}
