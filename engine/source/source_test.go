package source

import (
	"testing"

	"github.com/beaconrag/beacon/engine/domain"
)

func TestDocument_ContentHash_Deterministic(t *testing.T) {
	d1 := Document{Body: []byte("hello world")}
	d2 := Document{Body: []byte("hello world")}
	d3 := Document{Body: []byte("different")}

	if d1.ContentHash() != d2.ContentHash() {
		t.Error("expected identical bodies to hash identically")
	}
	if d1.ContentHash() == d3.ContentHash() {
		t.Error("expected different bodies to hash differently")
	}
}

func TestRegistry_RegisterAndFor(t *testing.T) {
	r := NewRegistry()
	crawler := NewWebCrawler(DefaultWebCrawlerConfig)
	r.Register(SchemeHTTPS, crawler)

	got, err := r.For(SchemeHTTPS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != crawler {
		t.Error("expected registered adapter to be returned")
	}
}

func TestRegistry_ForUnknownScheme(t *testing.T) {
	r := NewRegistry()
	_, err := r.For(SchemeS3)
	if domain.CodeOf(err) != domain.CodeSourceNotFound {
		t.Errorf("expected CodeSourceNotFound, got %v", domain.CodeOf(err))
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, prefix, err := parseS3URL("s3://my-bucket/docs/manuals/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "my-bucket" || prefix != "docs/manuals/" {
		t.Errorf("got bucket=%q prefix=%q", bucket, prefix)
	}
}

func TestParseS3URL_BadScheme(t *testing.T) {
	if _, _, err := parseS3URL("https://example.com/x"); err == nil {
		t.Error("expected error for non-object-store scheme")
	}
}

func TestParseRobotsDisallow(t *testing.T) {
	robots := `
User-agent: *
Disallow: /private
Disallow: /admin

User-agent: Googlebot
Disallow: /only-google
`
	disallow := parseRobotsDisallow(robots)
	if len(disallow) != 2 {
		t.Fatalf("expected 2 disallow rules, got %d: %v", len(disallow), disallow)
	}
	if !robotsDisallows(disallow, "https://x.com/private/doc.pdf") {
		t.Error("expected /private to be disallowed")
	}
	if robotsDisallows(disallow, "https://x.com/public/doc.pdf") {
		t.Error("expected /public to be allowed")
	}
}

func TestCleanText_StripsScriptAndStyle(t *testing.T) {
	html := `<html><body><script>alert(1)</script><style>.x{}</style><p>Hello   World</p></body></html>`
	text, err := CleanText([]byte(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello World" {
		t.Errorf("expected %q, got %q", "Hello World", text)
	}
}
