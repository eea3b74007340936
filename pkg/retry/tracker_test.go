package retry

import "testing"

func TestBlockAfterTwoIdenticalFailures(t *testing.T) {
	tr := NewTracker()
	target := TargetSignature("write_file", []string{"/tmp/a.py"})

	if blocked, _ := tr.ShouldBlock("write_file", target); blocked {
		t.Fatal("fresh key should not be blocked")
	}

	tr.RecordFailure("write_file", target, "permission denied")
	if blocked, _ := tr.ShouldBlock("write_file", target); blocked {
		t.Fatal("one failure should only warn, not block")
	}

	tr.RecordFailure("write_file", target, "permission denied")
	blocked, guidance := tr.ShouldBlock("write_file", target)
	if !blocked {
		t.Fatal("two identical failures should block the third attempt")
	}
	if guidance == "" {
		t.Error("blocked result should carry guidance text")
	}
}

func TestDifferentErrorRestartsCount(t *testing.T) {
	tr := NewTracker()
	target := TargetSignature("write_file", []string{"/tmp/a.py"})

	tr.RecordFailure("write_file", target, "permission denied")
	tr.RecordFailure("write_file", target, "disk full")
	if blocked, _ := tr.ShouldBlock("write_file", target); blocked {
		t.Fatal("a different error signature must restart the count")
	}
	if got := tr.FailureCount("write_file", target); got != 1 {
		t.Errorf("FailureCount = %d, want 1", got)
	}
}

func TestSuccessResets(t *testing.T) {
	tr := NewTracker()
	target := TargetSignature("read_file", []string{"/tmp/b.py"})

	tr.RecordFailure("read_file", target, "no such file")
	tr.RecordFailure("read_file", target, "no such file")
	tr.RecordSuccess("read_file", target)

	if blocked, _ := tr.ShouldBlock("read_file", target); blocked {
		t.Fatal("success must reset the key to OK")
	}
	if got := tr.FailureCount("read_file", target); got != 0 {
		t.Errorf("FailureCount = %d, want 0", got)
	}
}

func TestTargetSignatureNormalization(t *testing.T) {
	a := TargetSignature("edit", []string{"/src/main.go", "/src/util.go"})
	b := TargetSignature("edit", []string{"/src/util.go", " /SRC/MAIN.GO "})
	if a != b {
		t.Error("signature should be order and case insensitive over keys")
	}

	c := TargetSignature("edit", []string{"/src/other.go"})
	if a == c {
		t.Error("different targets should produce different signatures")
	}
}

func TestErrorSignatureNormalization(t *testing.T) {
	a := errorSignature("Permission   Denied")
	b := errorSignature("permission denied")
	if a != b {
		t.Error("error signature should normalize case and whitespace")
	}
}
