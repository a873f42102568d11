package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSpecs(t *testing.T) {
	yaml := `panels:
  - id: explorer
    title: Explorer
    group: left
    closable: false

  - id: editor
    title: Editor
    group: center
    floatable: false

  - id: terminal
    group: bottom
`
	dir := t.TempDir()
	path := filepath.Join(dir, "panels.yaml")
	os.WriteFile(path, []byte(yaml), 0644)

	specs, err := LoadSpecs(path)
	if err != nil {
		t.Fatalf("LoadSpecs() error: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}

	e := specs[0]
	if e.ID != "explorer" || e.Group != "left" {
		t.Errorf("specs[0] = %+v", e)
	}
	if e.CanClose() {
		t.Error("explorer should not be closable")
	}
	if !e.CanFloat() {
		t.Error("explorer should be floatable by default")
	}

	if specs[1].CanFloat() {
		t.Error("editor should not be floatable")
	}
	if !specs[2].CanClose() {
		t.Error("terminal should be closable by default")
	}
}

func TestLoadSpecs_MissingFile(t *testing.T) {
	specs, err := LoadSpecs(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSpecs() error: %v", err)
	}
	if specs != nil {
		t.Errorf("specs = %v, want nil", specs)
	}
}

func TestLoadSpecs_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panels.yaml")
	os.WriteFile(path, []byte("panels: [unclosed"), 0644)

	if _, err := LoadSpecs(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := New(
		PanelSpec{ID: "editor", Group: "center"},
		PanelSpec{ID: "explorer", Title: "Explorer", Group: "left"},
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	s, ok := r.Get("editor")
	if !ok {
		t.Fatal("editor not found")
	}
	if s.Title != "editor" {
		t.Errorf("Title = %q, want id fallback", s.Title)
	}
	if r.Contains("missing") {
		t.Error("Contains(missing) = true")
	}
}

func TestRegistry_ReplaceKeepsOrder(t *testing.T) {
	r, _ := New(PanelSpec{ID: "a"}, PanelSpec{ID: "b"})
	r.Register(PanelSpec{ID: "a", Title: "A2"})

	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("List() = %+v", list)
	}
	if list[0].Title != "A2" {
		t.Errorf("Title = %q, want A2", list[0].Title)
	}
}

func TestRegistry_EmptyID(t *testing.T) {
	if _, err := New(PanelSpec{ID: "  "}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestRegistry_Groups(t *testing.T) {
	r, _ := New(
		PanelSpec{ID: "a", Group: "right"},
		PanelSpec{ID: "b", Group: "left"},
		PanelSpec{ID: "c", Group: "left"},
		PanelSpec{ID: "d"},
	)
	got := r.Groups()
	if len(got) != 2 || got[0] != "left" || got[1] != "right" {
		t.Errorf("Groups() = %v", got)
	}
}
