package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eringen/spacetraveling/logger"
)

// fileSafeUID reports whether uid names a single directory under post/.
func fileSafeUID(uid string) bool {
	return uid != "" && uid != "." && !strings.Contains(uid, "..") &&
		!strings.ContainsAny(uid, "/\\\x00")
}

// BuildResult summarizes a static export.
type BuildResult struct {
	Pages  int
	Assets int
}

// Build renders every page into outDir as static files: index.html,
// post/<uid>/index.html, feed.xml, sitemap.xml, robots.txt and the
// embedded assets under public/.
func (a *App) Build(ctx context.Context, outDir string) (BuildResult, error) {
	if err := a.Init(); err != nil {
		return BuildResult{}, err
	}
	var res BuildResult

	uids, err := a.Source.ListAllUIDs(ctx, a.Config.Prismic.DocumentType)
	if err != nil {
		return res, fmt.Errorf("list paths: %w", err)
	}

	home, err := a.renderHome(ctx, "")
	if err != nil {
		return res, fmt.Errorf("render /: %w", err)
	}
	if err := writeFile(outDir, "index.html", home.Body); err != nil {
		return res, err
	}
	res.Pages++

	var errs []error
	for _, uid := range uids {
		if !fileSafeUID(uid) {
			errs = append(errs, fmt.Errorf("skip %q: uid is not usable as a file name", uid))
			continue
		}
		page, err := a.renderArticle(ctx, uid, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("render %s: %w", PostPath(uid), err))
			continue
		}
		if err := writeFile(outDir, filepath.Join("post", uid, "index.html"), page.Body); err != nil {
			return res, err
		}
		res.Pages++
	}

	feed, err := a.renderFeed(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("render feed: %w", err))
	} else if err := writeFile(outDir, "feed.xml", feed.Body); err != nil {
		return res, err
	}
	sitemap, err := a.renderSitemap(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("render sitemap: %w", err))
	} else if err := writeFile(outDir, "sitemap.xml", sitemap.Body); err != nil {
		return res, err
	}

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	err = fs.WalkDir(assets, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		body, err := fs.ReadFile(assets, path)
		if err != nil {
			return err
		}
		dst := filepath.Join("public", path)
		if path == "robots.txt" {
			dst = path
		}
		res.Assets++
		return writeFile(outDir, dst, body)
	})
	if err != nil {
		return res, err
	}

	a.Logger.Info("static build finished",
		logger.String("out", outDir),
		logger.Int("pages", res.Pages),
		logger.Int("assets", res.Assets),
		logger.Int("failed", len(errs)),
	)
	return res, errors.Join(errs...)
}

func writeFile(root, name string, body []byte) error {
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
