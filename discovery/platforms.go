package discovery

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"feedscout/models"

	log "github.com/sirupsen/logrus"
)

// Platform derives feed candidates from a publishing platform's URL
// conventions. Detect must be pure; it may return relative references, which
// are resolved against the target URL.
type Platform interface {
	Name() string
	Detect(u *url.URL) []string
}

type platformFunc struct {
	name   string
	detect func(u *url.URL) []string
}

func (p platformFunc) Name() string               { return p.name }
func (p platformFunc) Detect(u *url.URL) []string { return p.detect(u) }

// NewPlatform wraps a detection function as a Platform
func NewPlatform(name string, detect func(u *url.URL) []string) Platform {
	return platformFunc{name: name, detect: detect}
}

// DefaultPlatforms returns the built-in registry in evaluation order
func DefaultPlatforms() []Platform {
	return []Platform{
		NewPlatform("substack", substack),
		NewPlatform("medium", medium),
		NewPlatform("wordpress", wordpress),
		NewPlatform("ghost", ghost),
		NewPlatform("youtube", youtube),
		NewPlatform("blogger", blogger),
		NewPlatform("tumblr", tumblr),
		NewPlatform("reddit", reddit),
		NewPlatform("github", github),
	}
}

// ProbePlatformPatterns runs every registered platform against targetURL and
// probes the candidates they produce, keeping registry order
func (d *Discoverer) ProbePlatformPatterns(ctx context.Context, targetURL string) []models.DiscoveredFeed {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil
	}

	return d.probeCandidates(ctx, d.platformCandidates(canonical(target)))
}

func (d *Discoverer) platformCandidates(target *url.URL) []Candidate {
	candidates := []Candidate{}
	for _, platform := range d.platforms {
		for _, ref := range platform.Detect(target) {
			parsed, err := url.Parse(ref)
			if err != nil {
				log.WithFields(log.Fields{
					"platform":  platform.Name(),
					"reference": ref,
				}).Warn("Platform produced an unparseable reference")
				continue
			}
			candidates = append(candidates, Candidate{
				URL:    canonical(target.ResolveReference(parsed)).String(),
				Source: SourcePlatform,
			})
		}
	}
	return candidates
}

func hostIs(u *url.URL, hosts ...string) bool {
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		if host == h {
			return true
		}
	}
	return false
}

func hostHasSuffix(u *url.URL, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(u.Hostname()), suffix)
}

// pathname is the escaped path, "/" when empty
func pathname(u *url.URL) string {
	if p := u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}

func substack(u *url.URL) []string {
	if hostHasSuffix(u, ".substack.com") {
		return []string{origin(u) + "/feed"}
	}
	return nil
}

func medium(u *url.URL) []string {
	if hostIs(u, "medium.com") || hostHasSuffix(u, ".medium.com") {
		return []string{origin(u) + "/feed" + pathname(u)}
	}
	return nil
}

// WordPress and Ghost have no reliable URL signature, so they always
// contribute their default feed locations
func wordpress(*url.URL) []string {
	return []string{"/feed", "/feed/atom"}
}

func ghost(*url.URL) []string {
	return []string{"/rss/"}
}

var youtubeChannel = regexp.MustCompile(`^/(?:channel/|c/|user/|@)([^/]+)`)

func youtube(u *url.URL) []string {
	if !hostIs(u, "youtube.com", "www.youtube.com", "m.youtube.com") {
		return nil
	}
	match := youtubeChannel.FindStringSubmatch(u.EscapedPath())
	if match == nil {
		return nil
	}
	return []string{"https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(match[1])}
}

func blogger(u *url.URL) []string {
	if hostHasSuffix(u, ".blogspot.com") {
		return []string{origin(u) + "/feeds/posts/default"}
	}
	return nil
}

func tumblr(u *url.URL) []string {
	if hostHasSuffix(u, ".tumblr.com") {
		return []string{origin(u) + "/rss"}
	}
	return nil
}

var subreddit = regexp.MustCompile(`^/r/([^/]+)`)

func reddit(u *url.URL) []string {
	if !hostIs(u, "reddit.com", "www.reddit.com", "old.reddit.com") {
		return nil
	}
	match := subreddit.FindStringSubmatch(u.EscapedPath())
	if match == nil {
		return nil
	}
	return []string{"https://www.reddit.com/r/" + match[1] + "/.rss"}
}

var githubRepo = regexp.MustCompile(`^/([^/]+)/([^/]+)`)

func github(u *url.URL) []string {
	if !hostIs(u, "github.com", "www.github.com") {
		return nil
	}
	match := githubRepo.FindStringSubmatch(u.EscapedPath())
	if match == nil {
		return nil
	}
	repo := "https://github.com/" + match[1] + "/" + strings.TrimSuffix(match[2], ".git")
	return []string{repo + "/releases.atom", repo + "/commits.atom"}
}
