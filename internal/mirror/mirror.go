// Package mirror lists and fetches MRT archives from the public route
// collector mirrors (RouteViews and RIPE RIS).
package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Kind distinguishes full-table RIB dumps from incremental update archives.
type Kind string

const (
	KindRIB     Kind = "rib"
	KindUpdates Kind = "updates"
)

// Router is one selectable archive source on a mirror.
type Router struct {
	Name string
	URL  string // base URL of the router's archive tree
}

// RemoteFile is one archive discovered in a mirror's directory index.
type RemoteFile struct {
	Name        string
	URL         string
	Kind        Kind
	Timestamp   time.Time
	Compression string // "gz" or "bz2"
}

// Mirror is the capability set shared by the backends: enumerate routers,
// list a router's archives for a month, and fetch one archive.
type Mirror interface {
	Name() string
	ListRouters(ctx context.Context) ([]Router, error)
	ListFiles(ctx context.Context, router Router, month time.Time) ([]RemoteFile, error)
	Fetch(ctx context.Context, f RemoteFile, w io.Writer) error
}

// archive filenames embed YYYYMMDD.HHMM; bview is RIPE's RIB naming. The
// compression suffix is absent on files already staged locally.
var filenameRe = regexp.MustCompile(`^(rib|bview|updates)\.(\d{8})\.(\d{4})(?:\.(gz|bz2))?$`)

// ParseFilename classifies an archive filename and extracts its embedded
// timestamp. Returns false for names that are not MRT archives.
func ParseFilename(name string) (Kind, time.Time, string, bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, "", false
	}
	ts, err := time.ParseInLocation("20060102.1504", m[2]+"."+m[3], time.UTC)
	if err != nil {
		return "", time.Time{}, "", false
	}
	kind := KindUpdates
	if m[1] == "rib" || m[1] == "bview" {
		kind = KindRIB
	}
	return kind, ts, m[4], true
}

var hrefRe = regexp.MustCompile(`href="([^"?#][^"]*)"`)

type client struct {
	http *http.Client
}

func newClient() *client {
	return &client{http: &http.Client{Timeout: 2 * time.Minute}}
}

// listIndex fetches an HTTP directory index and returns the linked names,
// with any trailing slash kept so callers can tell directories apart.
func (c *client) listIndex(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing %s: status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", url, err)
	}

	var names []string
	for _, m := range hrefRe.FindAllStringSubmatch(string(body), -1) {
		name := m[1]
		// index pages link their own parents and absolute URLs; keep
		// only relative entries
		if strings.HasPrefix(name, "/") || strings.Contains(name, "://") || strings.HasPrefix(name, "..") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// fetch streams one URL into w.
func (c *client) fetch(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %s", url, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	return nil
}

// collectFiles turns index entries into classified RemoteFiles sorted by
// embedded timestamp.
func collectFiles(baseURL string, names []string) []RemoteFile {
	var files []RemoteFile
	for _, name := range names {
		kind, ts, comp, ok := ParseFilename(name)
		if !ok {
			continue
		}
		files = append(files, RemoteFile{
			Name:        name,
			URL:         strings.TrimSuffix(baseURL, "/") + "/" + name,
			Kind:        kind,
			Timestamp:   ts,
			Compression: comp,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files
}
