package browser

import (
	"net/url"
	"strings"
)

// Platform represents a known applicant tracking system.
type Platform string

const (
	// PlatformGreenhouse is the Greenhouse ATS platform
	PlatformGreenhouse Platform = "greenhouse"
	// PlatformLever is the Lever ATS platform
	PlatformLever Platform = "lever"
	// PlatformWorkday is the Workday ATS platform
	PlatformWorkday Platform = "workday"
	// PlatformAshby is the Ashby ATS platform
	PlatformAshby Platform = "ashby"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the applicant tracking system from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(host, "greenhouse.io"):
		return PlatformGreenhouse
	case strings.Contains(host, "lever.co"):
		return PlatformLever
	case strings.Contains(host, "workday.com"), strings.Contains(host, "myworkdayjobs.com"):
		return PlatformWorkday
	case strings.Contains(host, "ashbyhq.com"):
		return PlatformAshby
	}
	return PlatformUnknown
}

// ContentSelectors returns the containers that hold a page's main content, most specific first.
// Application forms are included because the agent reads them.
func ContentSelectors(platform Platform) []string {
	common := []string{"main", "article", "[role='main']", "#content", ".content"}
	switch platform {
	case PlatformGreenhouse:
		return append([]string{"#application_form", ".application--container", ".job__description", ".job-post-container"}, common...)
	case PlatformLever:
		return append([]string{".application-form", ".posting-page", ".section-wrapper.page-full-width"}, common...)
	case PlatformWorkday:
		return append([]string{"[data-automation-id='applyFlowPage']", "[data-automation-id='jobPostingPage']"}, common...)
	case PlatformAshby:
		return append([]string{".ashby-application-form-container", ".ashby-job-posting-right-pane"}, common...)
	default:
		return common
	}
}

// NoiseSelectors returns elements removed before a page is shown to inference.
func NoiseSelectors(platform Platform) []string {
	common := []string{
		"script", "style", "noscript", "svg", "iframe", "template",
		"nav", "footer",
		".ad", ".advertisement", ".ads", ".sidebar",
		".social-share", ".share-buttons", ".social-links",
		".cookie-banner", ".cookie-consent", ".gdpr-notice", "#onetrust-consent-sdk",
	}
	switch platform {
	case PlatformGreenhouse:
		return append(common, ".post-apply")
	case PlatformLever:
		return append(common, ".main-footer")
	case PlatformWorkday:
		return append(common, "[data-automation-id='footerContainer']")
	default:
		return common
	}
}
