package packlist

import (
	"testing"
	"time"

	"github.com/rcliao/movemate/internal/model"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestList(t *testing.T) *List {
	t.Helper()
	return New(stepClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func det(name, category, fragility string) model.DetectedItem {
	return model.DetectedItem{Name: name, Category: category, Fragility: fragility}
}

func TestAdmitReturnsLastNewName(t *testing.T) {
	start := time.Now()
	l := New(nil)

	name, ok := l.Admit([]model.DetectedItem{
		det("Chair", "Furniture", "Low"),
		det("Lamp", "Decor", "High"),
	})
	if !ok || name != "Lamp" {
		t.Fatalf("expected (Lamp, true), got (%q, %v)", name, ok)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", l.Len())
	}

	items := l.Items()
	if items[0].ID == "" || items[1].ID == "" || items[0].ID == items[1].ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", items[0].ID, items[1].ID)
	}
	for _, it := range items {
		if it.Timestamp.Before(start) {
			t.Errorf("item %q timestamp %v before batch start %v", it.Name, it.Timestamp, start)
		}
	}
}

func TestAdmitCaseInsensitiveDuplicate(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("Lamp", "Decor", "High")})

	rev := l.Revision()
	before := l.Items()

	name, ok := l.Admit([]model.DetectedItem{det("LAMP", "Electronics", "Low")})
	if ok || name != "" {
		t.Errorf("expected no-op, got (%q, %v)", name, ok)
	}
	if l.Revision() != rev {
		t.Error("revision changed on no-op admit")
	}
	after := l.Items()
	if len(after) != 1 || after[0] != before[0] {
		t.Errorf("list changed on no-op admit: %+v", after)
	}
	if after[0].Category != "Decor" || after[0].Fragility != model.FragilityHigh {
		t.Errorf("existing item was updated in place: %+v", after[0])
	}
}

func TestAdmitIdempotent(t *testing.T) {
	l := newTestList(t)
	batch := []model.DetectedItem{det("Mug", "Kitchenware", "Medium"), det("mug", "Kitchenware", "Medium"), det("TV", "Electronics", "High")}

	l.Admit(batch)
	if l.Len() != 2 {
		t.Fatalf("expected 2 items after first admit, got %d", l.Len())
	}
	if _, ok := l.Admit(batch); ok {
		t.Error("second identical admit reported a new item")
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 items after second admit, got %d", l.Len())
	}
}

func TestAdmitDuplicateWithinBatch(t *testing.T) {
	l := newTestList(t)

	name, ok := l.Admit([]model.DetectedItem{det("Vase", "Decor", "High"), det("VASE", "Decor", "Low")})
	if !ok || name != "Vase" {
		t.Errorf("expected (Vase, true), got (%q, %v)", name, ok)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 item, got %d", l.Len())
	}
}

func TestAdmitFragilityCoercion(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("Mirror", "Decor", "Extreme")})

	items := l.Items()
	if items[0].Fragility != model.FragilityLow {
		t.Errorf("expected Low, got %q", items[0].Fragility)
	}
}

func TestAdmitKeepsNameVerbatim(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("  Desk Lamp ", " Decor", "Medium")})

	it := l.Items()[0]
	if it.Name != "  Desk Lamp " || it.Category != " Decor" {
		t.Errorf("name/category transformed: %q / %q", it.Name, it.Category)
	}
}

func TestAdmitEmptyBatch(t *testing.T) {
	l := newTestList(t)
	if _, ok := l.Admit(nil); ok {
		t.Error("empty batch reported a new item")
	}
	if l.Revision() != 0 {
		t.Errorf("expected revision 0, got %d", l.Revision())
	}
}

func TestDelete(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("A", "x", "Low"), det("B", "x", "Low"), det("C", "x", "Low")})

	var target model.PackingItem
	for _, it := range l.Items() {
		if it.Name == "B" {
			target = it
		}
	}

	if !l.Delete(target.ID) {
		t.Fatal("expected delete to remove item")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", l.Len())
	}
	if _, ok := l.Find(target.ID); ok {
		t.Error("deleted item still present")
	}
	for _, it := range l.Items() {
		if it.Name == "B" {
			t.Error("deleted item still listed")
		}
	}

	rev := l.Revision()
	if l.Delete("nonexistent") {
		t.Error("delete of unknown id reported removal")
	}
	if l.Len() != 2 || l.Revision() != rev {
		t.Error("delete of unknown id changed the list")
	}
}

func TestDeleteThenReadmit(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("Lamp", "Decor", "High")})
	old := l.Items()[0]
	l.Delete(old.ID)

	name, ok := l.Admit([]model.DetectedItem{det("lamp", "Decor", "High")})
	if !ok || name != "lamp" {
		t.Fatalf("expected readmission, got (%q, %v)", name, ok)
	}
	if l.Items()[0].ID == old.ID {
		t.Error("readmitted item reused old id")
	}
}

func TestClear(t *testing.T) {
	l := newTestList(t)
	l.Clear()
	if l.Len() != 0 {
		t.Fatal("expected empty list")
	}

	l.Admit([]model.DetectedItem{det("A", "x", "Low"), det("B", "x", "Low")})
	l.Clear()
	if l.Len() != 0 || len(l.Items()) != 0 {
		t.Errorf("expected empty list after clear, got %d", l.Len())
	}
}

func TestItemsDescendingByTimestamp(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("first", "x", "Low")})
	l.Admit([]model.DetectedItem{det("second", "x", "Low"), det("third", "x", "Low")})

	items := l.Items()
	for i := 1; i < len(items); i++ {
		if !items[i-1].Timestamp.After(items[i].Timestamp) {
			t.Errorf("items not strictly descending at %d: %v then %v", i, items[i-1].Timestamp, items[i].Timestamp)
		}
	}
	if items[0].Name != "third" || items[2].Name != "first" {
		t.Errorf("unexpected order: %q, %q, %q", items[0].Name, items[1].Name, items[2].Name)
	}
}

func TestItemsTieBreakByInsertion(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(func() time.Time { return fixed })
	l.Admit([]model.DetectedItem{det("a", "x", "Low"), det("b", "x", "Low")})

	items := l.Items()
	if items[0].Name != "b" || items[1].Name != "a" {
		t.Errorf("expected b then a, got %q then %q", items[0].Name, items[1].Name)
	}
	if items[0].ID == items[1].ID {
		t.Error("ids collide within the same millisecond")
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("Lamp", "Decor", "High")})

	items := l.Items()
	items[0].Name = "changed"
	if l.Items()[0].Name != "Lamp" {
		t.Error("Items exposed internal storage")
	}
}

func TestAdmitItemsReturnsCreated(t *testing.T) {
	l := newTestList(t)
	l.Admit([]model.DetectedItem{det("Lamp", "Decor", "High")})

	added := l.AdmitItems([]model.DetectedItem{det("lamp", "x", "Low"), det("Box", "Storage", "Low"), det("Rug", "Decor", "Feather")})
	if len(added) != 2 {
		t.Fatalf("expected 2 created items, got %d", len(added))
	}
	if added[0].Name != "Box" || added[1].Name != "Rug" || added[1].Fragility != model.FragilityLow {
		t.Errorf("unexpected created items: %+v", added)
	}
	if found, ok := l.Find(added[0].ID); !ok || found != added[0] {
		t.Errorf("created item not stored as returned: %+v", found)
	}
}
