package session

import "testing"

func TestParseAgentID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		raw      string
		wantSess string
		wantSub  string
		wantErr  bool
	}{
		{"main agent", "abc-123", "abc-123", "", false},
		{"subagent", "abc-123/subagents/7", "abc-123", "7", false},
		{"trailing whitespace", " abc-123 ", "abc-123", "", false},
		{"empty", "", "", "", true},
		{"wrong middle segment", "abc/agents/7", "", "", true},
		{"missing subagent id", "abc/subagents/", "", "", true},
		{"too many segments", "a/subagents/b/c", "", "", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			id, err := ParseAgentID(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAgentID(%q) succeeded, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if id.SessionID != tc.wantSess || id.Subagent != tc.wantSub {
				t.Errorf("got %q/%q, want %q/%q", id.SessionID, id.Subagent, tc.wantSess, tc.wantSub)
			}
		})
	}
}

func TestAgentID_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"s1", "s1/subagents/worker-2"} {
		id, err := ParseAgentID(raw)
		if err != nil {
			t.Fatal(err)
		}
		if id.String() != raw {
			t.Errorf("round trip %q -> %q", raw, id.String())
		}
	}
}

func TestSameSession(t *testing.T) {
	t.Parallel()
	a, _ := ParseAgentID("s1")
	b, _ := ParseAgentID("s1/subagents/3")
	c, _ := ParseAgentID("s2")
	if !a.SameSession(b) {
		t.Error("main and subagent of same session should match")
	}
	if a.SameSession(c) {
		t.Error("different sessions should not match")
	}
	if a.SameSession(nil) {
		t.Error("nil should not match")
	}
}

func TestNormalizeSessionID(t *testing.T) {
	t.Parallel()
	valid := "2f1f9e9a-7b93-4f7e-bb6c-0f36a3a2d111"
	got, err := NormalizeSessionID(valid)
	if err != nil || got != valid {
		t.Errorf("valid UUID changed: %q, %v", got, err)
	}
	if _, err := NormalizeSessionID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
	generated, err := NormalizeSessionID("")
	if err != nil || generated == "" {
		t.Errorf("empty id should generate: %q, %v", generated, err)
	}
}

func TestDir_Markers(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	marker := SkillsLoadedMarker("s1/subagents/7")
	if d.HasMarker(marker) {
		t.Error("marker should be absent initially")
	}
	if err := d.SetMarker(marker); err != nil {
		t.Fatal(err)
	}
	if !d.HasMarker(marker) {
		t.Error("marker should exist after SetMarker")
	}
	if err := d.ClearMarker(marker); err != nil {
		t.Fatal(err)
	}
	if d.HasMarker(marker) {
		t.Error("marker should be gone after ClearMarker")
	}
	// Idempotent clear.
	if err := d.ClearMarker(marker); err != nil {
		t.Errorf("second ClearMarker: %v", err)
	}
}

func TestDir_FailureCount(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if n := d.FailureCount("Bash"); n != 0 {
		t.Errorf("initial count = %d, want 0", n)
	}
	for want := 1; want <= 3; want++ {
		n, err := d.IncrementFailureCount("Bash")
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("count = %d, want %d", n, want)
		}
	}
	if err := d.ResetFailureCount("Bash"); err != nil {
		t.Fatal(err)
	}
	if n := d.FailureCount("Bash"); n != 0 {
		t.Errorf("count after reset = %d, want 0", n)
	}
}
