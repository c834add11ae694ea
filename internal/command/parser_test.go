package command

import "testing"

func TestParseBasicCommand(t *testing.T) {
	cmd, err := Parse("begin(T1)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "begin" || len(cmd.Args) != 1 || cmd.Args[0] != "T1" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseMultiArgCommand(t *testing.T) {
	cmd, err := Parse("W(T1, x2, 101)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"T1", "x2", "101"}
	if cmd.Name != "W" || len(cmd.Args) != 3 {
		t.Fatalf("got %+v", cmd)
	}
	for i, a := range want {
		if cmd.Args[i] != a {
			t.Fatalf("arg %d: got %q, want %q", i, cmd.Args[i], a)
		}
	}
}

func TestParseNoArgCommand(t *testing.T) {
	cmd, err := Parse("dump()")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "dump" || len(cmd.Args) != 0 {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseBlankLineIsNil(t *testing.T) {
	cmd, err := Parse("   ")
	if err != nil || cmd != nil {
		t.Fatalf("got %+v, %v", cmd, err)
	}
}

func TestParseMalformedLine(t *testing.T) {
	if _, err := Parse("not a command"); err == nil {
		t.Fatalf("expected an error for a malformed line")
	}
}

func TestParseIDHelpers(t *testing.T) {
	n, err := parseID("T42", "T")
	if err != nil || n != 42 {
		t.Fatalf("got %d, %v", n, err)
	}
	if _, err := parseID("x1", "T"); err == nil {
		t.Fatalf("expected an error for a mismatched prefix")
	}
}
