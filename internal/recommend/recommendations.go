// Package recommend derives improvement recommendations from a completed
// test's raw audit payload. The catalog is a static lookup keyed by audit id;
// an audit with no catalog entry simply produces no recommendation.
package recommend

import (
	"encoding/json"
	"sort"
)

// Recommendation is one actionable improvement suggestion
type Recommendation struct {
	AuditID     string  `json:"auditId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Impact      string  `json:"impact"`
	Score       float64 `json:"score"`
}

// failingThreshold is Lighthouse's boundary below which an audit is not
// considered passing
const failingThreshold = 0.9

// catalog maps audit ids to their static recommendation text
var catalog = map[string]struct {
	Title       string
	Description string
	Impact      string
}{
	"render-blocking-resources": {
		Title:       "Eliminate render-blocking resources",
		Description: "Inline critical CSS and defer non-critical scripts so the first paint is not blocked on network round trips.",
		Impact:      "high",
	},
	"unused-javascript": {
		Title:       "Reduce unused JavaScript",
		Description: "Split bundles and lazy-load code that is not needed for the initial view.",
		Impact:      "high",
	},
	"unused-css-rules": {
		Title:       "Reduce unused CSS",
		Description: "Remove unused rules from stylesheets and defer CSS not used for above-the-fold content.",
		Impact:      "medium",
	},
	"uses-optimized-images": {
		Title:       "Efficiently encode images",
		Description: "Compress images and serve them at the dimensions they are displayed at.",
		Impact:      "high",
	},
	"modern-image-formats": {
		Title:       "Serve images in next-gen formats",
		Description: "Use WebP or AVIF instead of JPEG and PNG where browser support allows.",
		Impact:      "medium",
	},
	"offscreen-images": {
		Title:       "Defer offscreen images",
		Description: "Lazy-load images below the fold so they do not compete with critical resources.",
		Impact:      "medium",
	},
	"uses-text-compression": {
		Title:       "Enable text compression",
		Description: "Serve text-based responses with gzip or brotli compression.",
		Impact:      "high",
	},
	"server-response-time": {
		Title:       "Reduce initial server response time",
		Description: "Cut time to first byte with caching, a CDN, or faster backend rendering.",
		Impact:      "high",
	},
	"uses-long-cache-ttl": {
		Title:       "Serve static assets with an efficient cache policy",
		Description: "Set long max-age headers on immutable static assets.",
		Impact:      "low",
	},
	"total-byte-weight": {
		Title:       "Avoid enormous network payloads",
		Description: "Trim the total transfer size of the page; large payloads cost users data and slow loads.",
		Impact:      "medium",
	},
	"dom-size": {
		Title:       "Avoid an excessive DOM size",
		Description: "Large DOM trees increase memory use and slow style calculations.",
		Impact:      "low",
	},
	"largest-contentful-paint-element": {
		Title:       "Optimize the Largest Contentful Paint element",
		Description: "Preload the LCP image or ensure the LCP text is rendered without waiting on web fonts.",
		Impact:      "high",
	},
	"layout-shift-elements": {
		Title:       "Avoid large layout shifts",
		Description: "Reserve space for images, ads, and embeds so late-loading content does not move the page.",
		Impact:      "medium",
	},
	"third-party-summary": {
		Title:       "Reduce the impact of third-party code",
		Description: "Load third-party scripts lazily or remove those that do not pay for their cost.",
		Impact:      "medium",
	},
	"redirects": {
		Title:       "Avoid multiple page redirects",
		Description: "Each redirect adds a network round trip before any content can load.",
		Impact:      "medium",
	},
	"font-display": {
		Title:       "Ensure text remains visible during webfont load",
		Description: "Use font-display: swap so text renders with a fallback font while webfonts load.",
		Impact:      "low",
	},
}

// rawAudits mirrors the slice of the lighthouse payload recommendations
// are derived from
type rawAudits struct {
	LighthouseResult struct {
		Audits map[string]struct {
			Score *float64 `json:"score"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// impactRank orders recommendations high before medium before low
var impactRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// FromRawResult extracts recommendations for the failing audits in a raw
// lighthouse payload. A nil or unparseable payload yields no recommendations.
func FromRawResult(raw json.RawMessage) []Recommendation {
	if len(raw) == 0 {
		return nil
	}

	var payload rawAudits
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	var recs []Recommendation
	for auditID, audit := range payload.LighthouseResult.Audits {
		if audit.Score == nil || *audit.Score >= failingThreshold {
			continue
		}
		entry, ok := catalog[auditID]
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			AuditID:     auditID,
			Title:       entry.Title,
			Description: entry.Description,
			Impact:      entry.Impact,
			Score:       *audit.Score,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if impactRank[recs[i].Impact] != impactRank[recs[j].Impact] {
			return impactRank[recs[i].Impact] < impactRank[recs[j].Impact]
		}
		if recs[i].Score != recs[j].Score {
			return recs[i].Score < recs[j].Score
		}
		return recs[i].AuditID < recs[j].AuditID
	})

	return recs
}
