// Package config holds the engine settings, read from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/pyramid"
	"github.com/pdok/mosaic/source"
)

type Config struct {
	// Workers is the number of goroutines layout and placement run on.
	Workers   int `yaml:"workers" default:"4" validate:"gte=1,lte=256"`
	CacheSize int `yaml:"cacheSize" default:"64" validate:"gte=0"`
	// PrefetchZoomDelta is how many zoom levels above the ideal one are loaded too.
	PrefetchZoomDelta uint8   `yaml:"prefetchZoomDelta" default:"4" validate:"lte=10"`
	TileSize          float64 `yaml:"tileSize" default:"512" validate:"gt=0,lte=4096"`
	MinZoom           uint8   `yaml:"minZoom" default:"0" validate:"lte=24"`
	MaxZoom           uint8   `yaml:"maxZoom" default:"22" validate:"gtefield=MinZoom,lte=24"`
	// CellSize of the collision grid in pixels.
	CellSize           float64       `yaml:"cellSize" default:"64" validate:"gt=0"`
	FadeDuration       time.Duration `yaml:"fadeDuration" default:"300ms" validate:"gte=0"`
	ShowCollisionBoxes bool          `yaml:"showCollisionBoxes"`
}

// Default returns the configuration with every default applied.
func Default() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Errorf("defaults of config should be valid: %w", err))
	}
	return c
}

// Load reads path. Keys that are missing keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ZoomRange is the zoom range for sources that do not tell their own.
func (c Config) ZoomRange() pyramid.ZoomRange {
	return pyramid.ZoomRange{Min: c.MinZoom, Max: c.MaxZoom}
}

// CollisionCellSize falls back to the collision default for a zero cell size.
func (c Config) CollisionCellSize() float64 {
	if c.CellSize <= 0 {
		return collision.DefaultCellSize
	}
	return c.CellSize
}

// Apply copies the settings that tiles share into ctx.
func (c Config) Apply(ctx source.Context) source.Context {
	ctx.CacheSize = c.CacheSize
	ctx.CellSize = c.CollisionCellSize()
	return ctx
}
