package menu

import (
	"reflect"
	"testing"
)

const sampleConfig = `# Warung menu
You take orders for a Malaysian warung.
- Nasi lemak: RM5.50
- Teh ais: RM3.00
- Kopi: RM2.50
Burger - $12.99
- Example item: RM9.99
- X: RM1.00
- Free gift: RM0
- Subtotal: RM11.00
- Total: RM11.00
`

func TestBuild_AcceptsMenuLines(t *testing.T) {
	v := Build(sampleConfig)
	if v.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", v.Len(), v.Entries())
	}

	e, ok := v.Lookup("nasi lemak")
	if !ok {
		t.Fatalf("nasi lemak missing")
	}
	if e.Name != "Nasi lemak" {
		t.Errorf("canonical name must keep original casing, got %q", e.Name)
	}
	if e.Price != 5.50 {
		t.Errorf("price: got %v want 5.50", e.Price)
	}
	if !reflect.DeepEqual(e.Keywords, []string{"nasi", "lemak"}) {
		t.Errorf("keywords: got %v", e.Keywords)
	}

	if _, ok := v.Lookup("burger"); !ok {
		t.Errorf("dollar-priced dash line should be accepted")
	}
}

func TestBuild_RejectsNonMenuLines(t *testing.T) {
	v := Build(sampleConfig)
	for _, key := range []string{"example item", "x", "free gift", "subtotal", "total"} {
		if _, ok := v.Lookup(key); ok {
			t.Errorf("line %q should have been rejected", key)
		}
	}
}

func TestBuild_RejectsUnparsableOrNonPositivePrice(t *testing.T) {
	cases := []string{
		"- Mystery dish: RMabc",
		"- Iced tea: RM0",
		"No prices on this line at all",
	}
	for _, line := range cases {
		if v := Build(line); v.Len() != 0 {
			t.Errorf("line %q produced %d entries", line, v.Len())
		}
	}
}

func TestBuild_PreservesInsertionOrder(t *testing.T) {
	v := Build(sampleConfig)
	entries := v.Entries()
	want := []string{"Nasi lemak", "Teh ais", "Kopi", "Burger"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries", len(entries))
	}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Errorf("position %d: got %q want %q", i, e.Name, want[i])
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a := Build(sampleConfig)
	b := Build(sampleConfig)
	if !reflect.DeepEqual(a.Entries(), b.Entries()) {
		t.Fatalf("identical input must produce identical output")
	}
}

func TestBuild_LowercaseKeyLookup(t *testing.T) {
	v := Build("- Teh Ais: RM3.00")
	if _, ok := v.Lookup("TEH AIS"); !ok {
		t.Fatalf("lookup must be case-insensitive")
	}
}
