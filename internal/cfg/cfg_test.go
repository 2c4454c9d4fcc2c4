package cfg

import (
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDefaultProfileParses(t *testing.T) {
	profile := Profile{}
	if err := toml.Unmarshal(defaultProfile, &profile); err != nil {
		t.Fatalf("parse default profile: %s", err)
	}
	if err := validateProfile(&profile); err != nil {
		t.Fatalf("validate default profile: %s", err)
	}
	if profile.Display.IdleHz != 60 {
		t.Fatalf("idle_hz = %d", profile.Display.IdleHz)
	}
	if profile.Display.UIScale != 1.0 {
		t.Fatalf("ui_scale = %f", profile.Display.UIScale)
	}
	if !profile.Bridge.Enabled || profile.Bridge.Listen == "" {
		t.Fatalf("bridge = %+v", profile.Bridge)
	}
}

func TestValidateProfile(t *testing.T) {
	p := Profile{}
	// Zero values pick up defaults.
	if err := validateProfile(&p); err != nil {
		t.Fatalf("empty profile rejected: %s", err)
	}
	if p.Display.IdleHz != 60 || p.Display.UIScale != 1.0 {
		t.Fatalf("defaults not applied: %+v", p.Display)
	}

	p = Profile{}
	p.Display.IdleHz = -5
	if err := validateProfile(&p); err == nil {
		t.Fatal("negative idle rate accepted")
	}

	p = Profile{}
	p.Display.UIScale = 9.0
	if err := validateProfile(&p); err == nil {
		t.Fatal("absurd ui scale accepted")
	}

	p = Profile{}
	p.Bridge.Enabled = true
	if err := validateProfile(&p); err == nil {
		t.Fatal("bridge without listen address accepted")
	}
}
