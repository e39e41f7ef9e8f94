// Package reporting implements the two read-only reporters: images
// declared by the catalog (no runtime polling) and containers
// actually active in the runtime.
package reporting

import (
	"context"

	"execengine/internal/catalog"
	"execengine/internal/containerdriver"
)

// ImageEntry is one distinct image referenced by the catalog, along
// with the programs that use it.
type ImageEntry struct {
	Image    string   `json:"image"`
	Programs []string `json:"programs"`
}

// ImageReporter derives a listing of declared images purely from the
// catalog snapshot; it never talks to the container runtime.
type ImageReporter struct {
	catalog *catalog.Catalog
}

// NewImageReporter returns a reporter bound to cat.
func NewImageReporter(cat *catalog.Catalog) *ImageReporter {
	return &ImageReporter{catalog: cat}
}

// List returns one entry per distinct image string referenced by an
// enabled, non-compose program, plus the default image (which always
// appears, even with no programs referencing it explicitly).
func (r *ImageReporter) List() []ImageEntry {
	settings := r.catalog.Settings()
	byImage := make(map[string][]string)

	if settings.DefaultImage != "" {
		byImage[settings.DefaultImage] = nil
	}

	for _, p := range r.catalog.AllPrograms() {
		if !p.Enabled || p.IsCompose() {
			continue
		}
		image := p.Image
		if image == "" {
			image = settings.DefaultImage
		}
		if image == "" {
			continue
		}
		byImage[image] = append(byImage[image], p.ID)
	}

	out := make([]ImageEntry, 0, len(byImage))
	for image, programs := range byImage {
		out = append(out, ImageEntry{Image: image, Programs: programs})
	}
	return out
}

// ContainerReporter is a thin passthrough over ContainerDriver's
// listing and log-fetch operations.
type ContainerReporter struct {
	driver containerdriver.Driver
}

// NewContainerReporter returns a reporter bound to driver.
func NewContainerReporter(driver containerdriver.Driver) *ContainerReporter {
	return &ContainerReporter{driver: driver}
}

// ListActive returns every container the driver currently considers
// active.
func (r *ContainerReporter) ListActive(ctx context.Context) ([]containerdriver.ActiveContainer, error) {
	return r.driver.ListActive(ctx)
}

// LogsForImage returns captured logs for every active container
// running exactly the given image reference.
func (r *ContainerReporter) LogsForImage(ctx context.Context, image string) ([]containerdriver.ImageLogs, error) {
	return r.driver.LogsForImage(ctx, image)
}
