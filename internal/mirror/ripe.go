package mirror

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"
)

const ripeBase = "https://data.ris.ripe.net"

// RIPE RIS serves archives at <base>/rrcNN/YYYY.MM/<file>, with RIB dumps
// named bview.* and updates named updates.*.
type RIPE struct {
	base string
	c    *client
}

func NewRIPE() *RIPE {
	return &RIPE{base: ripeBase, c: newClient()}
}

func (rp *RIPE) Name() string { return "ripe" }

func (rp *RIPE) ListRouters(ctx context.Context) ([]Router, error) {
	names, err := rp.c.listIndex(ctx, rp.base+"/")
	if err != nil {
		return nil, err
	}

	var routers []Router
	for _, name := range names {
		if !strings.HasSuffix(name, "/") {
			continue
		}
		name = strings.TrimSuffix(name, "/")
		if strings.HasPrefix(name, "rrc") {
			routers = append(routers, Router{Name: name, URL: rp.base + "/" + name})
		}
	}
	sort.Slice(routers, func(i, j int) bool { return routers[i].Name < routers[j].Name })
	return routers, nil
}

func (rp *RIPE) ListFiles(ctx context.Context, router Router, month time.Time) ([]RemoteFile, error) {
	dir := router.URL + "/" + month.UTC().Format("2006.01") + "/"
	names, err := rp.c.listIndex(ctx, dir)
	if err != nil {
		return nil, err
	}
	files := collectFiles(dir, names)
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files, nil
}

func (rp *RIPE) Fetch(ctx context.Context, f RemoteFile, w io.Writer) error {
	return rp.c.fetch(ctx, f.URL, w)
}
