package ocr

import "testing"

func TestNormalizeStripsNoise(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  AB3F9\n", "AB3F9"},
		{"a b-c_1.2", "abc12"},
		{"\tXk2M9\r\n", "Xk2M9"},
		{"!!!", ""},
		{"", ""},
		{"ÀB3 ü9", "B39"},
		{"x K2m 9", "xK2m9"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotentAndPure(t *testing.T) {
	inputs := []string{"AB3F9", " a-B_c ", "日本語42", "\n\n", "{x:1}", "Ab3\u200bF9"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		if len(once) > len(in) {
			t.Fatalf("Normalize(%q) grew: %q", in, once)
		}
		for i := 0; i < len(once); i++ {
			if !isAlnum(once[i]) {
				t.Fatalf("Normalize(%q) kept %q", in, once[i])
			}
		}
	}
}

func TestBandContains(t *testing.T) {
	if AcceptBand.Contains("abc") || !AcceptBand.Contains("abcd") || !AcceptBand.Contains("abcdef") || AcceptBand.Contains("abcdefg") {
		t.Fatalf("AcceptBand bounds are wrong")
	}
	if !CloudBand.Contains("abc") || !CloudBand.Contains("abcdefg") || CloudBand.Contains("ab") {
		t.Fatalf("CloudBand bounds are wrong")
	}
}

func TestNewCandidatePreservesCase(t *testing.T) {
	c := NewCandidate(" xK2m9 ", "tesseract", "morphology")
	if c.Text != "xK2m9" || !c.Valid {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Raw != " xK2m9 " || c.Backend != "tesseract" || c.Variant != "morphology" {
		t.Fatalf("metadata lost: %+v", c)
	}
	if NewCandidate("AB", "vision", "").Valid {
		t.Fatalf("short read must not be valid")
	}
}
