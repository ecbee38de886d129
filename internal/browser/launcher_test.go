package browser

import (
	"testing"

	"github.com/Rorqualx/crawlpool/internal/config"
)

func testFingerprint() Fingerprint {
	return Fingerprint{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		Platform:       "Linux x86_64",
		Locale:         "ko-KR",
		AcceptLanguage: "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
		Timezone:       "Asia/Seoul",
		Width:          1366,
		Height:         768,
		DeviceScale:    1,
	}
}

func TestNewLauncherAntiDetectionFlags(t *testing.T) {
	l := newLauncher(&config.Config{Headless: true}, testFingerprint())

	if got := l.Get("disable-blink-features"); got != "AutomationControlled" {
		t.Errorf("disable-blink-features = %q", got)
	}
	if l.Has("enable-automation") {
		t.Error("enable-automation must not be set")
	}
	if got := l.Get("headless"); got != "new" {
		t.Errorf("headless = %q, want new", got)
	}
	if got := l.Get("window-size"); got != "1366,768" {
		t.Errorf("window-size = %q", got)
	}
	if got := l.Get("accept-lang"); got != "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7" {
		t.Errorf("accept-lang = %q", got)
	}
	if got := l.Get("force-webrtc-ip-handling-policy"); got != "disable_non_proxied_udp" {
		t.Errorf("webrtc policy = %q", got)
	}
}

func TestNewLauncherOptionalFlags(t *testing.T) {
	plain := newLauncher(&config.Config{Headless: false}, testFingerprint())
	if plain.Has("proxy-server") {
		t.Error("proxy-server set without a proxy")
	}
	if plain.Has("ignore-certificate-errors") {
		t.Error("cert errors ignored without opt-in")
	}
	if plain.Has("headless") {
		t.Error("headed mode must not carry the headless flag")
	}

	cfg := &config.Config{
		Headless:         true,
		ProxyURL:         "http://proxy.internal:3128",
		IgnoreCertErrors: true,
		BrowserPath:      "/opt/chrome/chrome",
	}
	l := newLauncher(cfg, testFingerprint())
	if got := l.Get("proxy-server"); got != cfg.ProxyURL {
		t.Errorf("proxy-server = %q", got)
	}
	if !l.Has("ignore-certificate-errors") {
		t.Error("ignore-certificate-errors missing")
	}
	if got := l.Get("rod-bin"); got != cfg.BrowserPath {
		t.Errorf("bin = %q, want %q", got, cfg.BrowserPath)
	}
}
