package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// Sink writes exported reports to an output directory.
type Sink struct {
	dir string
}

// NewSink creates a sink rooted at dir.
func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// Export writes the session's research output in the given format and
// returns the written path.
func (s *Sink) Export(sess *session.Session, format Format) (string, error) {
	info, ok := GetFormatInfo(format)
	if !ok {
		return "", fmt.Errorf("unknown export format: %s", format)
	}

	var data []byte
	switch format {
	case FormatMarkdown:
		if sess.Report == "" {
			return "", fmt.Errorf("session has no synthesized report")
		}
		data = []byte(sess.Report)
	case FormatJSON:
		var err error
		if data, err = renderJSON(sess); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s%s", sanitize(sess.ID), time.Now().UTC().Format("20060102-150405"), info.Extension)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
