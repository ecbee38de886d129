package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// applyStealth patches a fresh page before its first navigation.
// The go-rod/stealth bundle covers the well known headless tells; the
// fingerprint script then aligns navigator with the session fingerprint.
func applyStealth(page *rod.Page, fp Fingerprint) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("stealth script: %w", err)
	}

	script, err := fingerprintScript(fp)
	if err != nil {
		return err
	}
	if _, err := page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("fingerprint script: %w", err)
	}
	return nil
}

// applyFingerprint sets the protocol level overrides. Failures of the
// optional emulation calls are logged, not returned: a page with the default
// timezone is still usable.
func applyFingerprint(page *rod.Page, fp Fingerprint) error {
	if err := SetUserAgent(page, fp); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	if err := SetViewport(page, fp.Width, fp.Height, fp.DeviceScale); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}

	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(page); err != nil {
		log.Warn().Err(err).Str("timezone", fp.Timezone).Msg("Failed to override timezone")
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: fp.Locale}).Call(page); err != nil {
		log.Warn().Err(err).Str("locale", fp.Locale).Msg("Failed to override locale")
	}
	return nil
}

// SetUserAgent overrides the UA string, Accept-Language and navigator.platform.
func SetUserAgent(page *rod.Page, fp Fingerprint) error {
	return page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage,
		Platform:       fp.Platform,
	})
}

// SetViewport sets the page viewport size.
func SetViewport(page *rod.Page, width, height int, scale float64) error {
	if scale <= 0 {
		scale = 1
	}
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: scale,
		Mobile:            false,
	})
}

const fingerprintTemplate = `(() => {
  const fp = %s;
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'languages', Object.freeze(fp.languages.slice()));
  define(Navigator.prototype, 'language', fp.languages[0]);
  define(Navigator.prototype, 'platform', fp.platform);
  define(Navigator.prototype, 'hardwareConcurrency', fp.cores);
  define(Navigator.prototype, 'deviceMemory', fp.memory);
  define(Screen.prototype, 'width', fp.width);
  define(Screen.prototype, 'height', fp.height);
  define(Screen.prototype, 'availWidth', fp.width);
  define(Screen.prototype, 'availHeight', fp.height - 40);
  define(window, 'devicePixelRatio', fp.scale);
})();`

// fingerprintScript renders the navigator/screen overrides for fp.
// Values are embedded as JSON so no string in fp can break out of the literal.
func fingerprintScript(fp Fingerprint) (string, error) {
	data, err := json.Marshal(map[string]any{
		"languages": fp.Languages(),
		"platform":  fp.Platform,
		"cores":     fp.HardwareCores,
		"memory":    fp.DeviceMemoryGB,
		"width":     fp.Width,
		"height":    fp.Height,
		"scale":     fp.DeviceScale,
	})
	if err != nil {
		return "", fmt.Errorf("encode fingerprint: %w", err)
	}
	return fmt.Sprintf(fingerprintTemplate, data), nil
}
