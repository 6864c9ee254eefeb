// internal/browser/snapshot.go
package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// SummarizeHTML parses a page and extracts its title, forms and field
// names, and link/input counts. The digest is logged when the automation
// finds the page in a state it does not recognize: it answers "what was
// actually there" without shipping the whole DOM into the log.
func SummarizeHTML(r io.Reader) (schemas.PageSummary, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return schemas.PageSummary{}, fmt.Errorf("parsing page: %w", err)
	}

	var summary schemas.PageSummary
	var walk func(n *html.Node, form *schemas.FormSummary)
	walk = func(n *html.Node, form *schemas.FormSummary) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					summary.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				if attrValue(n, "href") != "" {
					summary.Links++
				}
			case "form":
				f := schemas.FormSummary{
					ID:     attrValue(n, "id"),
					Action: attrValue(n, "action"),
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c, &f)
				}
				summary.Forms = append(summary.Forms, f)
				return
			case "input", "select", "textarea":
				summary.Inputs++
				if form != nil {
					if name := fieldName(n); name != "" {
						form.Fields = append(form.Fields, name)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, form)
		}
	}
	walk(doc, nil)
	return summary, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func fieldName(n *html.Node) string {
	if id := attrValue(n, "id"); id != "" {
		return id
	}
	return attrValue(n, "name")
}

// Diagnose captures the current DOM, logs a structural summary, and writes
// a compressed snapshot when a snapshot directory is configured. Failures
// here are logged, never propagated: diagnostics must not mask the error
// that triggered them.
func (s *Session) Diagnose(ctx context.Context, step string) schemas.PageSummary {
	dom, err := s.OuterHTML(ctx)
	if err != nil {
		s.logger.Debug("Could not capture DOM for diagnostics.", zap.Error(err))
		return schemas.PageSummary{}
	}

	summary, err := SummarizeHTML(strings.NewReader(dom))
	if err != nil {
		s.logger.Debug("Could not summarize captured DOM.", zap.Error(err))
	}

	formIDs := make([]string, 0, len(summary.Forms))
	for _, f := range summary.Forms {
		formIDs = append(formIDs, f.ID)
	}
	s.logger.Warn("Page state diagnostics.",
		zap.String("step", step),
		zap.String("title", summary.Title),
		zap.Strings("forms", formIDs),
		zap.Int("links", summary.Links),
		zap.Int("inputs", summary.Inputs),
	)

	if dir := s.cfg.Browser.SnapshotDir; dir != "" {
		if path, err := writeSnapshot(dir, step, dom); err != nil {
			s.logger.Debug("Could not write page snapshot.", zap.Error(err))
		} else {
			s.logger.Info("Page snapshot written.", zap.String("path", path))
		}
	}
	return summary
}

// writeSnapshot stores the DOM brotli-compressed under dir.
func writeSnapshot(dir, step, dom string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expanding snapshot dir: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.html.br",
		time.Now().UTC().Format("20060102T150405"), sanitizeStep(step))
	path := filepath.Join(expanded, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	w := brotli.NewWriter(f)
	if _, err := w.Write([]byte(dom)); err != nil {
		return "", fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("flushing snapshot: %w", err)
	}
	return path, nil
}

func sanitizeStep(step string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, step)
}
