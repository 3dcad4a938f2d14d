package preprocess

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var registry = map[string]Func{
	"strip_comments":              StripComments,
	"normalize_whitespace":        NormalizeWhitespace,
	"strip_duplicate_empty_lines": StripDuplicateEmptyLines,
	"minimum_line_count_3":        MinimumLineCount(3),
	"verify_balanced_brackets":    VerifyBalancedBrackets,
}

func knownNames() string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	trailingWSRe   = regexp.MustCompile(`[ \t]+\n`)
)

// StripComments removes C-style block and line comments.
func StripComments(text string) (string, error) {
	text = blockCommentRe.ReplaceAllString(text, "")
	text = lineCommentRe.ReplaceAllString(text, "")
	return text, nil
}

// NormalizeWhitespace converts tabs to spaces, strips trailing whitespace and
// carriage returns, and ensures the file ends with a single newline.
func NormalizeWhitespace(text string) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "  ")
	text = trailingWSRe.ReplaceAllString(text, "\n")
	text = strings.Trim(text, "\n ")
	if text == "" {
		return "", fmt.Errorf("file is empty after whitespace normalization")
	}
	return text + "\n", nil
}

// StripDuplicateEmptyLines collapses runs of blank lines into one.
func StripDuplicateEmptyLines(text string) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	lastBlank := false
	for _, line := range lines {
		blank := strings.TrimSpace(line) == ""
		if blank && lastBlank {
			continue
		}
		lastBlank = blank
		out = append(out, line)
	}
	return strings.Join(out, "\n"), nil
}

// MinimumLineCount rejects files with fewer than n non-blank lines.
func MinimumLineCount(n int) Func {
	return func(text string) (string, error) {
		count := 0
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				count++
			}
		}
		if count < n {
			return "", fmt.Errorf("file contains %d lines, minimum is %d", count, n)
		}
		return text, nil
	}
}

// VerifyBalancedBrackets rejects files whose braces, parentheses or square
// brackets do not balance. This is a cheap stand-in for a full compile check.
func VerifyBalancedBrackets(text string) (string, error) {
	var stack []rune
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	for _, r := range text {
		switch r {
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return "", fmt.Errorf("unbalanced %q", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return text, nil
}
