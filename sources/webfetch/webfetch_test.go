package webfetch

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	f := NewFetcher(time.Second, 1<<20)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://doi.org/10.1000/abc", false},
		{"plain http", "http://example.org/paper", true},
		{"localhost", "https://localhost/admin", true},
		{"loopback ip", "https://127.0.0.1/secrets", true},
		{"private ip", "https://192.168.1.10/", true},
		{"link local", "https://169.254.169.254/latest/meta-data", true},
		{"internal domain", "https://db.prod.internal/", true},
		{"mdns domain", "https://printer.local/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.validateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURL(%q) = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.0.0.1", "172.16.5.5", "192.168.0.1", "127.0.0.1", "169.254.1.1", "100.64.0.1", "::1", "fe80::1"}
	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("isPrivateIP(%s) = false, want true", s)
		}
	}
	public := []string{"8.8.8.8", "151.101.1.140", "2606:4700::1111"}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("isPrivateIP(%s) = true, want false", s)
		}
	}
}

func TestConvertExtractsReadableArticle(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Elexacaftor in rare CFTR genotypes</title></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<h1>Elexacaftor in rare CFTR genotypes</h1>
<p>Triple combination therapy improved sweat chloride concentration in carriers of
rare CFTR variants. The effect persisted across the 24-week observation window and
was consistent between the adolescent and adult cohorts enrolled in the study.</p>
<p>Treatment was well tolerated; discontinuations were rare and unrelated to the
study drug. These findings extend modulator eligibility discussions beyond the
F508del population that dominated earlier trials.</p>
</article>
<footer>Published by Example Press</footer>
</body>
</html>`

	e := NewEnricher(NewFetcher(time.Second, 1<<20))
	article, err := e.Convert([]byte(page), "https://example.org/paper")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if !strings.Contains(article.Title, "Elexacaftor") {
		t.Errorf("title = %q", article.Title)
	}
	if !strings.Contains(article.Markdown, "sweat chloride") {
		t.Errorf("markdown missing article text: %q", article.Markdown)
	}
	if strings.Contains(article.Markdown, "<p>") {
		t.Error("markdown still contains HTML tags")
	}
}
