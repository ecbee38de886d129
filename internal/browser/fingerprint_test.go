package browser

import (
	"math/rand"
	"strings"
	"testing"
)

func TestNewFingerprintDeterministic(t *testing.T) {
	a := NewFingerprint(rand.New(rand.NewSource(42)), []string{"ko-KR", "en-US"})
	b := NewFingerprint(rand.New(rand.NewSource(42)), []string{"ko-KR", "en-US"})
	if a != b {
		t.Errorf("same seed produced different fingerprints:\n%+v\n%+v", a, b)
	}
}

func TestNewFingerprintConsistency(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		fp := NewFingerprint(r, []string{"ko-KR", "ja-JP", "xx-YY"})

		if !strings.Contains(fp.UserAgent, "Chrome/") {
			t.Fatalf("unexpected user agent %q", fp.UserAgent)
		}
		if strings.Contains(fp.UserAgent, "Headless") {
			t.Fatalf("user agent leaks headless: %q", fp.UserAgent)
		}
		switch {
		case strings.Contains(fp.UserAgent, "Windows") && fp.Platform != "Win32",
			strings.Contains(fp.UserAgent, "Macintosh") && fp.Platform != "MacIntel",
			strings.Contains(fp.UserAgent, "Linux") && fp.Platform != "Linux x86_64":
			t.Fatalf("platform %q does not match user agent %q", fp.Platform, fp.UserAgent)
		}
		if fp.Width <= 0 || fp.Height <= 0 || fp.DeviceScale <= 0 {
			t.Fatalf("invalid viewport %dx%d@%v", fp.Width, fp.Height, fp.DeviceScale)
		}
		if !strings.HasPrefix(fp.AcceptLanguage, fp.Locale) {
			t.Fatalf("accept-language %q does not start with locale %q", fp.AcceptLanguage, fp.Locale)
		}
		if fp.Locale == "ko-KR" && fp.Timezone != "Asia/Seoul" {
			t.Fatalf("ko-KR got timezone %q", fp.Timezone)
		}
		if fp.Timezone == "" {
			t.Fatal("timezone must never be empty, even for unknown locales")
		}
	}
}

func TestNewFingerprintDefaultLocale(t *testing.T) {
	fp := NewFingerprint(rand.New(rand.NewSource(7)), nil)
	if fp.Locale != "en-US" {
		t.Errorf("expected en-US, got %q", fp.Locale)
	}
	if fp.AcceptLanguage != "en-US,en;q=0.9" {
		t.Errorf("unexpected accept-language %q", fp.AcceptLanguage)
	}
}

func TestAcceptLanguageAndLanguages(t *testing.T) {
	tests := []struct {
		locale string
		header string
		langs  []string
	}{
		{"en-US", "en-US,en;q=0.9", []string{"en-US", "en"}},
		{"en-GB", "en-GB,en;q=0.9,en-US;q=0.8", []string{"en-GB", "en", "en-US"}},
		{"ko-KR", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7", []string{"ko-KR", "ko", "en-US", "en"}},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			got := acceptLanguage(tt.locale)
			if got != tt.header {
				t.Errorf("acceptLanguage(%q) = %q, want %q", tt.locale, got, tt.header)
			}
			langs := Fingerprint{AcceptLanguage: got}.Languages()
			if strings.Join(langs, "|") != strings.Join(tt.langs, "|") {
				t.Errorf("Languages() = %v, want %v", langs, tt.langs)
			}
		})
	}
}

func TestFingerprintScriptEscapesValues(t *testing.T) {
	fp := Fingerprint{
		Platform:       `Win32"; alert(1); "`,
		AcceptLanguage: "en-US,en;q=0.9",
		Width:          1366,
		Height:         768,
		DeviceScale:    1,
	}
	script, err := fingerprintScript(fp)
	if err != nil {
		t.Fatalf("fingerprintScript: %v", err)
	}
	if strings.Contains(script, `"Win32"; alert(1)`) {
		t.Error("platform value was not JSON-escaped")
	}
	if !strings.Contains(script, `"width":1366`) {
		t.Errorf("script missing width: %s", script)
	}
}
