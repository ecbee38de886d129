package browser

import (
	"fmt"
	"math/rand"
	"strings"
)

// Fingerprint is the browser identity shared by every page of one session.
// A new one is drawn for each session so consecutive bursts of work do not
// present the same identity.
type Fingerprint struct {
	UserAgent      string
	Platform       string
	Locale         string
	AcceptLanguage string
	Timezone       string
	Width          int
	Height         int
	DeviceScale    float64
	HardwareCores  int
	DeviceMemoryGB int
}

type viewport struct {
	width, height int
	scale         float64
}

var viewports = []viewport{
	{1920, 1080, 1},
	{1680, 1050, 1},
	{1600, 900, 1},
	{1536, 864, 1.25},
	{1440, 900, 2},
	{1366, 768, 1},
	{1280, 800, 2},
}

type agent struct {
	ua       string
	platform string
}

// chromeMajors are recent stable releases. Chrome freezes the minor version
// fields in the UA string, so only the major varies.
var chromeMajors = []int{128, 129, 130, 131}

var agentTemplates = []agent{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", "Win32"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", "MacIntel"},
	{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", "Linux x86_64"},
}

// localeTimezones maps a locale to timezones plausible for it.
var localeTimezones = map[string][]string{
	"ko-KR": {"Asia/Seoul"},
	"ja-JP": {"Asia/Tokyo"},
	"zh-CN": {"Asia/Shanghai"},
	"en-US": {"America/New_York", "America/Chicago", "America/Los_Angeles"},
	"en-GB": {"Europe/London"},
	"de-DE": {"Europe/Berlin"},
	"fr-FR": {"Europe/Paris"},
}

const defaultLocale = "en-US"

// NewFingerprint draws a fingerprint from r. Locales restricts the locale to
// the given candidates; an empty list means en-US.
func NewFingerprint(r *rand.Rand, locales []string) Fingerprint {
	vp := viewports[r.Intn(len(viewports))]
	tpl := agentTemplates[r.Intn(len(agentTemplates))]
	major := chromeMajors[r.Intn(len(chromeMajors))]

	locale := defaultLocale
	if len(locales) > 0 {
		locale = locales[r.Intn(len(locales))]
	}

	zones, ok := localeTimezones[locale]
	if !ok {
		zones = localeTimezones[defaultLocale]
	}

	return Fingerprint{
		UserAgent:      fmt.Sprintf(tpl.ua, major),
		Platform:       tpl.platform,
		Locale:         locale,
		AcceptLanguage: acceptLanguage(locale),
		Timezone:       zones[r.Intn(len(zones))],
		Width:          vp.width,
		Height:         vp.height,
		DeviceScale:    vp.scale,
		HardwareCores:  []int{4, 8, 12, 16}[r.Intn(4)],
		DeviceMemoryGB: []int{4, 8, 16}[r.Intn(3)],
	}
}

// acceptLanguage builds a header value such as "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7".
func acceptLanguage(locale string) string {
	base, _, _ := strings.Cut(locale, "-")
	if locale == defaultLocale {
		return "en-US,en;q=0.9"
	}
	if base == "en" {
		return locale + ",en;q=0.9,en-US;q=0.8"
	}
	return locale + "," + base + ";q=0.9,en-US;q=0.8,en;q=0.7"
}

// Languages returns the navigator.languages value matching AcceptLanguage.
func (f Fingerprint) Languages() []string {
	var langs []string
	for _, part := range strings.Split(f.AcceptLanguage, ",") {
		lang, _, _ := strings.Cut(part, ";")
		langs = append(langs, strings.TrimSpace(lang))
	}
	return langs
}

// WindowSize is the --window-size launcher value.
func (f Fingerprint) WindowSize() string {
	return fmt.Sprintf("%d,%d", f.Width, f.Height)
}
