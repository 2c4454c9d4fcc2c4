package plugin_test

import (
	"testing"

	"plugview/internal/plugin"
)

func TestURIDMapStable(t *testing.T) {
	r := plugin.NewURIDRegistry()
	a := r.Map("http://lv2plug.in/ns/ext/atom#Float")
	b := r.Map("http://lv2plug.in/ns/ext/atom#Int")
	if a == 0 || b == 0 {
		t.Fatal("mapped id is 0")
	}
	if a == b {
		t.Fatalf("distinct URIs share id %d", a)
	}
	if again := r.Map("http://lv2plug.in/ns/ext/atom#Float"); again != a {
		t.Fatalf("re-map returned %d, want %d", again, a)
	}
}

func TestURIDUnmap(t *testing.T) {
	r := plugin.NewURIDRegistry()
	id := r.Map("urn:example:param")
	if got := r.Unmap(id); got != "urn:example:param" {
		t.Fatalf("Unmap(%d) = %q", id, got)
	}
	if got := r.Unmap(0); got != "" {
		t.Fatalf("Unmap(0) = %q, want empty", got)
	}
	if got := r.Unmap(999); got != "" {
		t.Fatalf("Unmap(999) = %q, want empty", got)
	}
	if id := r.Map(""); id != 0 {
		t.Fatalf("Map(\"\") = %d, want 0", id)
	}
}
