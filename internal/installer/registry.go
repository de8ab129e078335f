package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/manifest"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// abbreviated metadata document, the format npm clients request
	installAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"
	lockFile      = ".package-lock.json"
	fetchLimit    = 8
)

var (
	// ErrPackageNotFound is returned when the registry has no such package.
	ErrPackageNotFound = errors.New("package not found")
	// ErrNoMatchingVersion is returned when no published version satisfies a range.
	ErrNoMatchingVersion = errors.New("no matching version")
)

// Client fetches package metadata from an npm compatible registry.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
}

// NewClient creates a registry client with retries and a circuit breaker.
func NewClient(cfg config.InstallerConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.RegistryURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "devcontainer-installer/1.0").
		SetHeader("Accept", installAccept)
	restyClient.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	breaker := resilience.New("registry", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("registry circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{resty: restyClient, breaker: breaker}
}

// Packument is the abbreviated package document.
type Packument struct {
	Name     string                 `json:"name"`
	DistTags map[string]string      `json:"dist-tags"`
	Versions map[string]versionInfo `json:"versions"`
}

type versionInfo struct {
	Version string `json:"version"`
}

// Fetch returns the metadata document for a package.
func (c *Client) Fetch(ctx context.Context, name string) (*Packument, error) {
	var doc Packument
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := c.resty.R().
			SetContext(ctx).
			Get("/" + url.PathEscape(name))
		if err != nil {
			return fmt.Errorf("fetch %s: %w", name, err)
		}
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return resilience.Permanent(fmt.Errorf("%s: %w", name, ErrPackageNotFound))
		case resp.IsError():
			return fmt.Errorf("fetch %s: registry returned %s", name, resp.Status())
		}
		if err := sonic.Unmarshal(resp.Body(), &doc); err != nil {
			return resilience.Permanent(fmt.Errorf("decode metadata for %s: %w", name, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Registry installs dependencies by resolving versions against a registry
// and writing package stubs into node_modules.
type Registry struct {
	fs     vfs.FileSystem
	client *Client
	logger *logging.Logger
}

// NewFactory returns a Factory sharing one registry client.
func NewFactory(cfg config.InstallerConfig, logger *logging.Logger) Factory {
	client := NewClient(cfg, logger)
	return func(fs vfs.FileSystem) Installer {
		return NewRegistry(fs, client, logger)
	}
}

// NewRegistry creates a registry installer for fs.
func NewRegistry(fs vfs.FileSystem, client *Client, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{fs: fs, client: client, logger: logger.Named("installer")}
}

// Install reads the manifest, resolves every dependency and writes
// node_modules/<name>/package.json plus a lock file.
func (r *Registry) Install(ctx context.Context, onProgress func(line string)) (*Result, error) {
	start := time.Now()
	progress := func(format string, args ...any) {
		if onProgress != nil {
			onProgress(fmt.Sprintf(format, args...))
		}
	}

	root := r.fs.WorkDir()
	data, err := r.fs.ReadFile(path.Join(root, manifest.FileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}

	deps := m.AllDependencies()
	progress("resolving %d packages for %s", len(deps), m.Name)

	resolved := make([]Package, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() error {
			doc, err := r.client.Fetch(gctx, dep.Name)
			if err != nil {
				return err
			}
			version, err := Resolve(doc, dep.Range)
			if err != nil {
				return fmt.Errorf("%s@%s: %w", dep.Name, dep.Range, err)
			}
			resolved[i] = Package{Name: dep.Name, Version: version, Dev: dep.Dev}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		progress("ERR! %v", err)
		return nil, err
	}

	modules := path.Join(root, "node_modules")
	for _, pkg := range resolved {
		stub, err := sonic.Marshal(map[string]string{"name": pkg.Name, "version": pkg.Version})
		if err != nil {
			return nil, err
		}
		if err := r.fs.WriteFile(path.Join(modules, pkg.Name, manifest.FileName), stub); err != nil {
			return nil, fmt.Errorf("write %s: %w", pkg.Name, err)
		}
		progress("+ %s@%s", pkg.Name, pkg.Version)
	}

	if err := r.writeLock(modules, resolved); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	progress("added %d packages in %s", len(resolved), elapsed.Round(time.Millisecond))
	r.logger.Info("dependencies installed",
		zap.String("project", m.Name),
		zap.Int("packages", len(resolved)),
		zap.Duration("duration", elapsed))

	return &Result{Packages: resolved, Duration: elapsed}, nil
}

func (r *Registry) writeLock(modules string, pkgs []Package) error {
	entries := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		entries["node_modules/"+p.Name] = p.Version
	}
	lock, err := sonic.ConfigStd.Marshal(map[string]any{"lockfileVersion": 3, "packages": entries})
	if err != nil {
		return err
	}
	if err := r.fs.WriteFile(path.Join(modules, lockFile), lock); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// sortedVersions returns the published versions, highest first.
func sortedVersions(doc *Packument) []string {
	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	return versions
}
