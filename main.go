package main

import (
	"fmt"
	"os"

	"plugview/internal/cfg"
	"plugview/internal/ctl"
	"plugview/internal/log"
)

var version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printHelp()
	case "--version", "version":
		fmt.Println("plugview", version)
	case "new":
		if len(os.Args) < 3 {
			printHelp()
			os.Exit(1)
		}
		if err := cfg.MakeProfile(os.Args[2]); err != nil {
			fmt.Println("Failed to make profile:", err)
			os.Exit(1)
		}
		fmt.Println("Created profile!")
	default:
		Run()
	}
}

func Run() {
	profileName := os.Args[1]
	profile, err := cfg.GetProfile(profileName)
	if err != nil {
		fmt.Println("Failed to get profile:", err)
		os.Exit(1)
	}

	logger := log.NewLogger(log.LevelFromString(profile.LogLevel), profile.LogPath)
	defer logger.Close()

	dir, err := cfg.GetDirectory()
	if err != nil {
		logger.Error("Failed to get config directory: %s", err)
		os.Exit(1)
	}
	profilePath := dir + profileName + ".toml"

	if err := ctl.Run(&profile, profilePath, logger); err != nil {
		logger.Error("Failed to run: %s", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`
    plugview - in-process X11 display host for plugin UIs
    USAGE:
        plugview [PROFILE]      Run plugview with the given profile.

    SUBCOMMANDS:
        plugview new [PROFILE]  Create a new profile named PROFILE with
                                the default configuration.
        plugview help           Print this message.
        plugview version        Get the version of plugview installed.
    `)
}
