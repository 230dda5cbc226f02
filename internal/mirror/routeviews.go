package mirror

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"
)

const routeViewsBase = "http://archive.routeviews.org"

// RouteViews serves archives at
// <base>/<router>/bgpdata/YYYY.MM/{RIBS,UPDATES}/<file>. The default
// collector lives directly under /bgpdata.
type RouteViews struct {
	base string
	c    *client
}

func NewRouteViews() *RouteViews {
	return &RouteViews{base: routeViewsBase, c: newClient()}
}

func (rv *RouteViews) Name() string { return "routeviews" }

func (rv *RouteViews) ListRouters(ctx context.Context) ([]Router, error) {
	names, err := rv.c.listIndex(ctx, rv.base+"/")
	if err != nil {
		return nil, err
	}

	var routers []Router
	for _, name := range names {
		if !strings.HasSuffix(name, "/") {
			continue
		}
		name = strings.TrimSuffix(name, "/")
		switch {
		case name == "bgpdata":
			routers = append(routers, Router{Name: "route-views2", URL: rv.base + "/bgpdata"})
		case strings.HasPrefix(name, "route-views"):
			routers = append(routers, Router{Name: name, URL: rv.base + "/" + name + "/bgpdata"})
		}
	}
	sort.Slice(routers, func(i, j int) bool { return routers[i].Name < routers[j].Name })
	return routers, nil
}

func (rv *RouteViews) ListFiles(ctx context.Context, router Router, month time.Time) ([]RemoteFile, error) {
	monthDir := router.URL + "/" + month.UTC().Format("2006.01")

	var files []RemoteFile
	for _, sub := range []string{"RIBS", "UPDATES"} {
		dir := monthDir + "/" + sub + "/"
		names, err := rv.c.listIndex(ctx, dir)
		if err != nil {
			return nil, err
		}
		files = append(files, collectFiles(dir, names)...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files, nil
}

func (rv *RouteViews) Fetch(ctx context.Context, f RemoteFile, w io.Writer) error {
	return rv.c.fetch(ctx, f.URL, w)
}
