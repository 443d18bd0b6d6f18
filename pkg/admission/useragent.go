package admission

import "strings"

// inAppBrowserMarkers identify embedded webviews that cannot complete an
// OAuth redirect flow (no address bar, cookie jar isolated from the real
// browser). The shared-chat flow uses this to bounce the user out to the
// system browser before starting OAuth.
var inAppBrowserMarkers = []string{
	"FBAN", "FBAV", // Facebook
	"Instagram",
	"Line/",
	"MicroMessenger", // WeChat
	"Twitter",
	"LinkedInApp",
	"GSA/", // Google Search App
}

// DetectInAppBrowser reports whether userAgent identifies an in-app
// webview that needs redirecting to a real browser, and which one matched.
// An empty or unrecognized user agent never redirects.
func DetectInAppBrowser(userAgent string) (redirect bool, marker string) {
	if userAgent == "" {
		return false, ""
	}
	for _, m := range inAppBrowserMarkers {
		if strings.Contains(userAgent, m) {
			return true, m
		}
	}
	return false, ""
}
