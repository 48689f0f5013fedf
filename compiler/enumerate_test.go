package compiler

import (
	"fmt"
	"strings"
	"testing"
)

func TestEnumeratedClasses_Alphabetical(t *testing.T) {
	// Declaration order deliberately differs from tag order.
	defs := buildSchema(t, `
class Zebra { int n; }
class Apple { int n; }
class Mango { int n; }
host api H { void store(Zebra z, Apple a, Mango m); }
`)
	classes, err := EnumeratedClassesForApi(defs.Apis[0], defs)
	if err != nil {
		t.Fatalf("EnumeratedClassesForApi: %v", err)
	}

	want := []struct {
		name string
		tag  int
	}{
		{"Apple", 128},
		{"Mango", 129},
		{"Zebra", 130},
	}
	if len(classes) != len(want) {
		t.Fatalf("got %d classes, want %d", len(classes), len(want))
	}
	for i, w := range want {
		if classes[i].Name != w.name || classes[i].Tag != w.tag {
			t.Errorf("classes[%d] = %s=%d, want %s=%d", i, classes[i].Name, classes[i].Tag, w.name, w.tag)
		}
	}
}

func TestEnumeratedClasses_ExcludesEnums(t *testing.T) {
	defs := buildSchema(t, `
enum Code { a, b }
class Payload { Code code; }
host api H { Payload fetch(); }
`)
	classes, err := EnumeratedClassesForApi(defs.Apis[0], defs)
	if err != nil {
		t.Fatalf("EnumeratedClassesForApi: %v", err)
	}
	if len(classes) != 1 || classes[0].Name != "Payload" {
		t.Fatalf("classes = %+v, want only Payload", classes)
	}
}

func TestEnumeratedClasses_TagsUniqueInRange(t *testing.T) {
	var b strings.Builder
	b.WriteString("host api H { void store(Object o); }\n")
	for i := 0; i < 127; i++ {
		fmt.Fprintf(&b, "class C%03d { int n; }\n", i)
	}
	defs := buildSchema(t, b.String())

	classes, err := EnumeratedClassesForApi(defs.Apis[0], defs)
	if err != nil {
		t.Fatalf("EnumeratedClassesForApi: %v", err)
	}
	if len(classes) != 127 {
		t.Fatalf("got %d classes, want 127", len(classes))
	}
	seen := make(map[int]bool)
	for _, c := range classes {
		if c.Tag < 128 || c.Tag >= 255 {
			t.Errorf("tag %d for %s out of [128,255)", c.Tag, c.Name)
		}
		if seen[c.Tag] {
			t.Errorf("duplicate tag %d", c.Tag)
		}
		seen[c.Tag] = true
	}
}

func TestEnumeratedClasses_Overflow(t *testing.T) {
	var b strings.Builder
	b.WriteString("host api H { void store(Object o); }\n")
	for i := 0; i < 128; i++ {
		fmt.Fprintf(&b, "class C%03d { int n; }\n", i)
	}
	defs := buildSchema(t, b.String())

	_, err := EnumeratedClassesForApi(defs.Apis[0], defs)
	if err == nil {
		t.Fatal("expected overflow error for 128 custom classes")
	}
	if !strings.Contains(err.Error(), "split the api") {
		t.Errorf("error %q should tell the user to split the api", err.Error())
	}
}

func TestEnumeratedClasses_PureFunctionOfNameSet(t *testing.T) {
	// Same type set reachable through different declaration orders must
	// yield identical assignments.
	a := buildSchema(t, `
class B { int n; }
class A { B b; }
host api H { A fetch(); }
`)
	b := buildSchema(t, `
class A { B b; }
class B { int n; }
host api H { B store(A a); }
`)

	ca, err := EnumeratedClassesForApi(a.Apis[0], a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := EnumeratedClassesForApi(b.Apis[0], b)
	if err != nil {
		t.Fatal(err)
	}
	if len(ca) != len(cb) {
		t.Fatalf("lengths differ: %d vs %d", len(ca), len(cb))
	}
	for i := range ca {
		if ca[i].Name != cb[i].Name || ca[i].Tag != cb[i].Tag {
			t.Errorf("assignment %d differs: %s=%d vs %s=%d", i, ca[i].Name, ca[i].Tag, cb[i].Name, cb[i].Tag)
		}
	}
}
