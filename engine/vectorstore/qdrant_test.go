package vectorstore

import "testing"

func TestToQdrantValue(t *testing.T) {
	if v := toQdrantValue("hi"); v.GetStringValue() != "hi" {
		t.Errorf("expected string value, got %+v", v)
	}
	if v := toQdrantValue(42); v.GetIntegerValue() != 42 {
		t.Errorf("expected integer value, got %+v", v)
	}
	if v := toQdrantValue(3.14); v.GetDoubleValue() != 3.14 {
		t.Errorf("expected double value, got %+v", v)
	}
	if v := toQdrantValue(true); !v.GetBoolValue() {
		t.Errorf("expected bool value, got %+v", v)
	}
}

func TestQdrantValueToString(t *testing.T) {
	if got := qdrantValueToString(toQdrantValue("hi")); got != "hi" {
		t.Errorf("got %q", got)
	}
	if got := qdrantValueToString(toQdrantValue(3)); got != "3" {
		t.Errorf("got %q", got)
	}
	if got := qdrantValueToString(toQdrantValue(true)); got != "true" {
		t.Errorf("got %q", got)
	}
}

func TestFieldMatch(t *testing.T) {
	c := fieldMatch("source_file_id", "sf1")
	field := c.GetField()
	if field == nil || field.GetKey() != "source_file_id" {
		t.Fatalf("expected field condition on source_file_id, got %+v", c)
	}
	if field.GetMatch().GetKeyword() != "sf1" {
		t.Errorf("expected keyword sf1, got %v", field.GetMatch())
	}
}
