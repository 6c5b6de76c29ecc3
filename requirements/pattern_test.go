package requirements

import "testing"

func TestPatternFullMatch(t *testing.T) {
	testCases := []struct {
		pattern string
		input   string
		want    bool
	}{
		{`^\d{9}$`, "123456789", true},
		{`^\d{9}$`, "12345", false},
		{`\d{3}`, "12345", false},
		{`\d{3}`, "123", true},
		{`a|ab`, "ab", true},
		{`^\d{5}$`, "12345\n", false},
		{`^(?=.*\d)[^<>]{3,200}$`, "123 Main Street", true},
		{`^(?=.*\d)[^<>]{3,200}$`, "Main Street", false},
		{`^[A-Z]{2}$`, "ÜS", false},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern+"/"+tc.input, func(t *testing.T) {
			p, err := CompilePattern(tc.pattern)
			if err != nil {
				t.Fatalf("CompilePattern() failed: %v", err)
			}
			if got := p.MatchString(tc.input); got != tc.want {
				t.Errorf("MatchString(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestCompilePatternInvalid(t *testing.T) {
	for _, src := range []string{`^([0-9]{8}$`, `[z-a]`, `(?<`, `a)(b`} {
		if _, err := CompilePattern(src); err == nil {
			t.Errorf("CompilePattern(%q) should fail", src)
		}
	}
}
