package preprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResolveUnknownName(t *testing.T) {
	_, err := Resolve([]string{"normalize_whitespace", "compile_with_gcc"})
	if err == nil {
		t.Fatal("expected error for unknown preprocessor")
	}
	if !strings.Contains(err.Error(), "compile_with_gcc") {
		t.Errorf("error should name the unknown preprocessor, got %v", err)
	}
}

func TestResolvePreservesOrder(t *testing.T) {
	steps, err := Resolve([]string{"strip_comments", "normalize_whitespace"})
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Name != "strip_comments" || steps[1].Name != "normalize_whitespace" {
		t.Errorf("step order not preserved: %v, %v", steps[0].Name, steps[1].Name)
	}
}

func TestStripComments(t *testing.T) {
	in := "int x; // trailing\n/* block\ncomment */int y;\n"
	out, err := StripComments(in)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "trailing") || strings.Contains(out, "comment") {
		t.Errorf("comments survived: %q", out)
	}
	if !strings.Contains(out, "int x;") || !strings.Contains(out, "int y;") {
		t.Errorf("code removed: %q", out)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	out, err := NormalizeWhitespace("a\t b  \r\nb\n\n\n")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "\t") || strings.Contains(out, "\r") {
		t.Errorf("tabs or carriage returns survived: %q", out)
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Errorf("should end with exactly one newline: %q", out)
	}
}

func TestNormalizeWhitespaceEmptyFile(t *testing.T) {
	if _, err := NormalizeWhitespace("  \n\t\n"); err == nil {
		t.Fatal("expected error for file that is empty after normalization")
	}
}

func TestMinimumLineCount(t *testing.T) {
	fn := MinimumLineCount(3)

	if _, err := fn("one\ntwo\n"); err == nil {
		t.Fatal("expected error for too few lines")
	}
	if _, err := fn("one\ntwo\nthree\n"); err != nil {
		t.Fatalf("three lines should pass: %v", err)
	}
}

func TestVerifyBalancedBrackets(t *testing.T) {
	if _, err := VerifyBalancedBrackets("void f() { if (x) { y[0] = 1; } }"); err != nil {
		t.Fatalf("balanced input rejected: %v", err)
	}
	if _, err := VerifyBalancedBrackets("void f() { }"); err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyBalancedBrackets("void f() { } }"); err == nil {
		t.Fatal("expected error for extra close brace")
	}
	if _, err := VerifyBalancedBrackets("void f() {"); err == nil {
		t.Fatal("expected error for unclosed brace")
	}
	if _, err := VerifyBalancedBrackets("void f( ]"); err == nil {
		t.Fatal("expected error for mismatched pair")
	}
}

func TestRunFileStepOrder(t *testing.T) {
	var order []string
	steps := []Step{
		{Name: "first", Fn: func(text string) (string, error) {
			order = append(order, "first")
			return text + "1", nil
		}},
		{Name: "second", Fn: func(text string) (string, error) {
			order = append(order, "second")
			return text + "2", nil
		}},
	}

	out, err := RunFile(File{Path: "f", Text: "x"}, steps)
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "x12" {
		t.Errorf("got %q, want %q", out.Text, "x12")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("steps ran out of order: %v", order)
	}
}

func TestRunFileReportsStepAndPath(t *testing.T) {
	steps := []Step{
		{Name: "failing_step", Fn: func(string) (string, error) {
			return "", errors.New("boom")
		}},
	}

	_, err := RunFile(File{Path: "bad.cl", Text: "x"}, steps)
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *PreprocessingError
	if !errors.As(err, &perr) {
		t.Fatalf("got %T, want *PreprocessingError", err)
	}
	if perr.Step != "failing_step" || perr.Path != "bad.cl" {
		t.Errorf("error should carry step and path: %+v", perr)
	}
}

func TestRunDropsFailingFilesAndKeepsOrder(t *testing.T) {
	steps := []Step{
		{Name: "reject_bad", Fn: func(text string) (string, error) {
			if strings.Contains(text, "bad") {
				return "", errors.New("rejected")
			}
			return text, nil
		}},
	}

	files := make([]File, 20)
	for i := range files {
		text := fmt.Sprintf("ok-%d", i)
		if i%3 == 0 {
			text = fmt.Sprintf("bad-%d", i)
		}
		files[i] = File{Path: fmt.Sprintf("f%d", i), Text: text}
	}

	result := Run(context.Background(), files, steps, 4)

	wantKept := 0
	for i := range files {
		if i%3 != 0 {
			wantKept++
		}
	}
	if len(result.Kept) != wantKept {
		t.Fatalf("kept: got %d, want %d", len(result.Kept), wantKept)
	}
	if len(result.Dropped)+len(result.Kept) != len(files) {
		t.Fatalf("every file must be kept or dropped: %d + %d != %d",
			len(result.Kept), len(result.Dropped), len(files))
	}

	// Output order must match input order for deterministic corpus assembly.
	prev := -1
	for _, f := range result.Kept {
		var idx int
		fmt.Sscanf(f.Path, "f%d", &idx)
		if idx <= prev {
			t.Fatalf("kept files out of order: %d after %d", idx, prev)
		}
		prev = idx
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []File{{Path: "a", Text: "x"}, {Path: "b", Text: "y"}}
	steps := []Step{{Name: "id", Fn: func(text string) (string, error) { return text, nil }}}

	result := Run(ctx, files, steps, 2)
	if len(result.Kept)+len(result.Dropped) > len(files) {
		t.Fatal("cancelled run produced more outcomes than inputs")
	}
}
