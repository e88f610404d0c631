package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/emrgen/docview/internal/model"
	"github.com/mssola/useragent"
)

const (
	Unknown = "Unknown"

	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"

	maxUserAgent = 512
)

// Classifier derives the client metadata of a session from a user agent string.
type Classifier interface {
	Classify(userAgent string) model.ClientMeta
}

// ClassifierFunc adapts a function to a Classifier.
type ClassifierFunc func(userAgent string) model.ClientMeta

func (f ClassifierFunc) Classify(userAgent string) model.ClientMeta {
	return f(userAgent)
}

var _ Classifier = (*UserAgentClassifier)(nil)

// UserAgentClassifier reduces user agents to device, browser and OS families.
type UserAgentClassifier struct{}

func NewUserAgentClassifier() *UserAgentClassifier {
	return &UserAgentClassifier{}
}

func (c *UserAgentClassifier) Classify(userAgent string) model.ClientMeta {
	raw := strings.ToValidUTF8(strings.TrimSpace(userAgent), "")
	if len(raw) > maxUserAgent {
		cut := maxUserAgent
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}

	meta := model.ClientMeta{
		DeviceType:      Unknown,
		Browser:         Unknown,
		OperatingSystem: Unknown,
		UserAgent:       raw,
	}
	if raw == "" {
		return meta
	}

	ua := useragent.New(raw)
	meta.DeviceType = deviceType(raw, ua)
	meta.Browser = browserFamily(raw, ua)
	meta.OperatingSystem = osFamily(raw)

	return meta
}

func deviceType(raw string, ua *useragent.UserAgent) string {
	switch {
	case ua.Bot():
		return DeviceBot
	case strings.Contains(raw, "iPad"), strings.Contains(raw, "Tablet"):
		return DeviceTablet
	// android tablets drop the Mobile token
	case strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile"):
		return DeviceTablet
	case ua.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// chromium forks identify as Chrome too, so their tokens are checked first
var forks = []struct {
	token  string
	family string
}{
	{"Edg/", "Edge"},
	{"EdgA/", "Edge"},
	{"EdgiOS/", "Edge"},
	{"Edge/", "Edge"},
	{"OPR/", "Opera"},
	{"SamsungBrowser/", "Samsung Internet"},
	{"CriOS/", "Chrome"},
	{"FxiOS/", "Firefox"},
}

func browserFamily(raw string, ua *useragent.UserAgent) string {
	for _, fork := range forks {
		if strings.Contains(raw, fork.token) {
			return fork.family
		}
	}

	name, _ := ua.Browser()
	if name == "" {
		return Unknown
	}

	return name
}

// osFamily matches mobile platforms before desktop ones: iOS agents claim
// Mac OS X and Android agents claim Linux.
func osFamily(raw string) string {
	switch {
	case strings.Contains(raw, "iPhone"), strings.Contains(raw, "iPad"), strings.Contains(raw, "iPod"):
		return "iOS"
	case strings.Contains(raw, "Android"):
		return "Android"
	case strings.Contains(raw, "Windows"):
		return "Windows"
	case strings.Contains(raw, "CrOS"):
		return "ChromeOS"
	case strings.Contains(raw, "Macintosh"), strings.Contains(raw, "Mac OS X"):
		return "MacOS"
	case strings.Contains(raw, "Linux"):
		return "Linux"
	default:
		return Unknown
	}
}
