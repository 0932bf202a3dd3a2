package acquire

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/registry"
)

// Resource is one remote file to fetch
type Resource struct {
	URL  string
	Name string
	Year int
	// RelPath is the destination relative to the sink root:
	// {subpath}/{year}/{file}
	RelPath string
}

// Resolver turns a descriptor into the list of resources to fetch
type Resolver interface {
	Resolve(ctx context.Context, d registry.Descriptor) ([]Resource, error)
}

// Getter issues GET requests. *httpclient.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

var (
	yearInName  = regexp.MustCompile(`(20[1-2]\d)`)
	unsafeChars = regexp.MustCompile(`[^\w\-.]`)
)

// CatalogResolver lists a CKAN package's resources through package_show
type CatalogResolver struct {
	BaseURL string
	Client  Getter
	Now     func() time.Time
}

type packageShowResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Resources []catalogResource `json:"resources"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type catalogResource struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

// Resolve fetches the package metadata and keeps resources of the descriptor's
// format whose name carries a year inside the descriptor's range.
func (r *CatalogResolver) Resolve(ctx context.Context, d registry.Descriptor) ([]Resource, error) {
	endpoint := strings.TrimRight(r.BaseURL, "/") + "/api/3/action/package_show?id=" + url.QueryEscape(d.Source)

	resp, err := r.Client.Get(ctx, endpoint)
	if err != nil {
		return nil, &AcquisitionError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AcquisitionError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AcquisitionError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read catalog response")}
	}

	var pkg packageShowResponse
	if err := json.Unmarshal(body, &pkg); err != nil {
		return nil, &AcquisitionError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode catalog response")}
	}
	if !pkg.Success {
		msg := "catalog reported success=false"
		if pkg.Error != nil && pkg.Error.Message != "" {
			msg = pkg.Error.Message
		}
		return nil, &AcquisitionError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	var out []Resource
	for _, res := range pkg.Result.Resources {
		if res.URL == "" || !strings.EqualFold(res.Format, string(d.Format)) {
			continue
		}
		m := yearInName.FindString(res.Name)
		if m == "" {
			continue
		}
		year, _ := strconv.Atoi(m)
		if !d.InRange(year, now) {
			continue
		}
		file := resourceFileName(res)
		out = append(out, Resource{
			URL:     res.URL,
			Name:    res.Name,
			Year:    year,
			RelPath: filepath.Join(d.Subpath, strconv.Itoa(year), file),
		})
	}
	return out, nil
}

// resourceFileName sanitizes the resource name and appends the format extension
// when the name does not already end with it.
func resourceFileName(res catalogResource) string {
	if res.Name == "" {
		if i := strings.LastIndex(res.URL, "/"); i >= 0 && i < len(res.URL)-1 {
			return res.URL[i+1:]
		}
		return "unknown"
	}
	safe := unsafeChars.ReplaceAllString(res.Name, "_")
	ext := "." + strings.ToLower(res.Format)
	if res.Format != "" && !strings.HasSuffix(strings.ToLower(safe), ext) {
		safe += ext
	}
	return safe
}

// TemplateResolver expands a URL template once per year.
// Placeholders are {year} and any key in the descriptor's params.
type TemplateResolver struct {
	Now func() time.Time
}

// Resolve never touches the network
func (r *TemplateResolver) Resolve(_ context.Context, d registry.Descriptor) ([]Resource, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	var out []Resource
	for _, year := range d.Years(now) {
		u := expandTemplate(d.Source, d.Params, year)
		if strings.Contains(u, "{") {
			return nil, errors.NewInvalidRequestError("dataset %s: unresolved placeholder in %s", d.Name, u)
		}
		ys := strconv.Itoa(year)
		out = append(out, Resource{
			URL:     u,
			Name:    d.Name + "_" + ys,
			Year:    year,
			RelPath: filepath.Join(d.Subpath, ys, d.Name+"_"+ys+".csv"),
		})
	}
	return out, nil
}

func expandTemplate(tmpl string, params map[string]string, year int) string {
	pairs := []string{"{year}", strconv.Itoa(year)}
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", url.QueryEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
