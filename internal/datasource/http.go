package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sourcegraph/conc/pool"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/jsonutil"
	"github.com/deploymenttheory/go-flash-composer/internal/common/urlutil"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
)

// versionPlaceholders are replaced by the version in the URL and body.
var versionPlaceholders = []string{"$VERSION", "$1"}

const defaultTimeout = 30 * time.Second

// RequestConfig describes how to fetch one version's table.
type RequestConfig struct {
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Body    string            `mapstructure:"body"`
	Headers map[string]string `mapstructure:"headers"`
	// DataPath is a dotted path to the name/value object inside the response.
	DataPath string `mapstructure:"data_path"`
	// Timeout in seconds, 30 when unset.
	Timeout int `mapstructure:"timeout"`
}

type httpConfig struct {
	Request RequestConfig `mapstructure:"request"`
}

// ParseRequestConfig reads { "request": { "url": ..., ... } } from a .json file
// or inline text.
func ParseRequestConfig(input string) (RequestConfig, error) {
	var (
		doc map[string]interface{}
		err error
	)
	if strings.HasSuffix(strings.ToLower(input), ".json") {
		doc, err = jsonutil.ReadJSONFile(input)
	} else {
		doc, err = jsonutil.Decode([]byte(input))
	}
	if err != nil {
		return RequestConfig{}, fmt.Errorf("%w: %v", errs.ErrDataSourceConfig, err)
	}

	var cfg httpConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &cfg,
	})
	if err != nil {
		return RequestConfig{}, err
	}
	if err := dec.Decode(doc); err != nil {
		return RequestConfig{}, fmt.Errorf("%w: %v", errs.ErrDataSourceConfig, err)
	}

	req := cfg.Request
	if req.URL == "" {
		return RequestConfig{}, fmt.Errorf("%w: request.url is required", errs.ErrDataSourceConfig)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	req.Method = strings.ToUpper(req.Method)
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return RequestConfig{}, fmt.Errorf("%w: unsupported method %s", errs.ErrDataSourceConfig, req.Method)
	}
	return req, nil
}

// NewHTTP fetches one table per version, concurrently. Any failed request
// fails the whole source.
func NewHTTP(ctx context.Context, input string, versions []string) (*Source, error) {
	if err := checkVersions(versions); err != nil {
		return nil, err
	}
	req, err := ParseRequestConfig(input)
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	client := &http.Client{Timeout: timeout}

	tables := make([]map[string]interface{}, len(versions))
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	for i, ver := range versions {
		i, ver := i, ver
		p.Go(func(ctx context.Context) error {
			t, err := fetch(ctx, client, req, ver)
			if err != nil {
				return fmt.Errorf("version %q: %w", ver, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	byVersion := make(map[string]map[string]interface{}, len(versions))
	for i, ver := range versions {
		byVersion[ver] = tables[i]
	}
	return &Source{kind: "http", tables: byVersion}, nil
}

func substitute(s, version string) string {
	for _, p := range versionPlaceholders {
		s = strings.ReplaceAll(s, p, version)
	}
	return s
}

func fetch(ctx context.Context, client *http.Client, cfg RequestConfig, version string) (map[string]interface{}, error) {
	url := substitute(cfg.URL, version)
	if err := urlutil.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDataSourceConfig, err)
	}
	logger.LogInfo("Fetching data source", map[string]interface{}{
		"url":     url,
		"version": version,
	})

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(substitute(cfg.Body, version))
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDataSourceConfig, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.LogError("Data source request failed", err, map[string]interface{}{"url": url})
		return nil, fmt.Errorf("%w: %v", errs.ErrRetrievalFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP status %d", errs.ErrRetrievalFailed, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", errs.ErrRetrievalFailed, err)
	}
	doc, err := jsonutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRetrievalFailed, err)
	}

	if cfg.DataPath == "" {
		return doc, nil
	}
	inner, ok := jsonutil.GetValue(doc, cfg.DataPath)
	if !ok {
		return nil, fmt.Errorf("%w: data_path %q not in response", errs.ErrRetrievalFailed, cfg.DataPath)
	}
	table, ok := inner.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: data_path %q is not an object", errs.ErrRetrievalFailed, cfg.DataPath)
	}
	return table, nil
}
