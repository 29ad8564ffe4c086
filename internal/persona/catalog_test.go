package persona

import "testing"

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", c.Len())
	}
	p, ok := c.Get("tech-pioneer")
	if !ok {
		t.Fatal("tech-pioneer not found")
	}
	if p.Backend != "openai" {
		t.Fatalf("tech-pioneer backend = %q, want openai", p.Backend)
	}
	if _, ok := c.GetByName("Margaret Liu"); !ok {
		t.Fatal("GetByName(Margaret Liu) not found")
	}
}

func TestLoadOrderIsStable(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	all := c.All()
	if all[0].ID != "tech-pioneer" || all[1].ID != "market-skeptic" {
		t.Fatalf("unexpected rotation order: %s, %s", all[0].ID, all[1].ID)
	}
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	_, err := parse([]byte(`
[[personas]]
id = "x"
name = "X"
backend = "claude"
`))
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestParseRejectsDuplicateID(t *testing.T) {
	_, err := parse([]byte(`
[[personas]]
id = "x"
name = "X"
backend = "openai"

[[personas]]
id = "x"
name = "Y"
backend = "kimi"
`))
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
}
