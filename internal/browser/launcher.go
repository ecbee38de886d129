package browser

import (
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/security"
)

// newLauncher builds the Chrome launcher for one session.
// A launcher can only launch once, so every session gets its own.
//
// Flag choices keep automation from showing through:
//  1. AutomationControlled blink feature off, so navigator.webdriver is false
//  2. no enable-automation switch
//  3. SwiftShader WebGL so the GPU fingerprint is not empty
//  4. language and window size taken from the session fingerprint
func newLauncher(cfg *config.Config, fp Fingerprint) *launcher.Launcher {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	// Rod launches headless by default; headed mode needs an explicit opt-out
	// and a DISPLAY (Xvfb in containers).
	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	// Container security flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if cfg.ProxyURL != "" {
		l = l.Set("proxy-server", cfg.ProxyURL)
		log.Debug().Str("proxy", security.RedactProxyURL(cfg.ProxyURL)).Msg("Browser proxy configured")
	}

	// WebRTC must never reveal the host address, proxy or not.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")
	l = l.Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns")
	l = l.Set("enable-features", "NetworkService,NetworkServiceInProcess")

	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	if cfg.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors").
			Set("ignore-ssl-errors")
	}

	l = l.Set("accept-lang", fp.AcceptLanguage).
		Set("lang", fp.Locale)

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	l = l.Set("window-size", fp.WindowSize())

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("safebrowsing-disable-auto-update")

	// Several pages share one renderer budget.
	l = l.Set("js-flags", "--max-old-space-size=512").
		Set("disable-ipc-flooding-protection").
		Set("disable-renderer-backgrounding").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows")

	l = l.Set("disable-gpu-sandbox")

	// Do NOT use --disable-gpu on ARM: it breaks SwiftShader WebGL.
	if isARM() {
		l = l.Set("disable-gpu-compositing")
		log.Debug().Msg("ARM detected: using software compositing")
	}

	return l
}

func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
