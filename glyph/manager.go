package glyph

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/go-spatial/geom"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/logging"
)

// Requestor receives the glyphs it asked for, on the main goroutine.
type Requestor interface {
	OnGlyphsAvailable(Positions)
}

type request struct {
	deps   Dependencies
	ranges map[FontStack]map[Range]struct{}
}

type rangeState struct {
	loading bool
	loaded  bool
}

type stackEntry struct {
	ranges map[Range]*rangeState
	glyphs map[rune]Glyph
}

// Manager loads glyph metrics per range on a background scheduler. All methods must be
// called on the main goroutine, the one mainLoop runs tasks on.
type Manager struct {
	mainLoop actor.Scheduler
	loader   actor.Scheduler
	fonts    map[string]*opentype.Font
	fallback *opentype.Font
	stacks   map[FontStack]*stackEntry
	pending  map[Requestor]*request
}

// NewManager uses the Go Regular font for every font stack that has no registered font.
func NewManager(mainLoop, loader actor.Scheduler) (*Manager, error) {
	fallback, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("could not parse fallback font: %w", err)
	}
	return &Manager{
		mainLoop: mainLoop,
		loader:   loader,
		fonts:    make(map[string]*opentype.Font),
		fallback: fallback,
		stacks:   make(map[FontStack]*stackEntry),
		pending:  make(map[Requestor]*request),
	}, nil
}

// AddFont registers a TrueType or OpenType font under name.
func (m *Manager) AddFont(name string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("could not parse font %q: %w", name, err)
	}
	m.fonts[name] = f
	return nil
}

func (m *Manager) fontFor(stack FontStack) *opentype.Font {
	if f, ok := m.fonts[stack]; ok {
		return f
	}
	return m.fallback
}

func (m *Manager) entry(stack FontStack) *stackEntry {
	e, ok := m.stacks[stack]
	if !ok {
		e = &stackEntry{ranges: make(map[Range]*rangeState), glyphs: make(map[rune]Glyph)}
		m.stacks[stack] = e
	}
	return e
}

// GetGlyphs answers requestor once all ranges deps fall in are loaded. A new request of the
// same requestor replaces its previous one.
func (m *Manager) GetGlyphs(requestor Requestor, deps Dependencies) {
	req := &request{deps: deps, ranges: make(map[FontStack]map[Range]struct{})}
	for stack, runes := range deps {
		e := m.entry(stack)
		for r := range runes {
			rng := RangeOf(r)
			state, ok := e.ranges[rng]
			if ok && state.loaded {
				continue
			}
			if req.ranges[stack] == nil {
				req.ranges[stack] = make(map[Range]struct{})
			}
			req.ranges[stack][rng] = struct{}{}
			if !ok {
				state = &rangeState{}
				e.ranges[rng] = state
			}
			if !state.loading {
				state.loading = true
				m.load(stack, rng)
			}
		}
	}
	if len(req.ranges) == 0 {
		delete(m.pending, requestor)
		requestor.OnGlyphsAvailable(m.positions(deps))
		return
	}
	m.pending[requestor] = req
}

// RemoveRequestor drops the pending request of requestor, it will not be called anymore.
func (m *Manager) RemoveRequestor(requestor Requestor) {
	delete(m.pending, requestor)
}

// Pending is the number of requestors waiting for glyphs.
func (m *Manager) Pending() int {
	return len(m.pending)
}

func (m *Manager) load(stack FontStack, rng Range) {
	f := m.fontFor(stack)
	m.loader.Schedule(func() {
		glyphs, err := loadRange(f, rng)
		m.mainLoop.Schedule(func() {
			if err != nil {
				logging.L().Warn("could not load glyph range", zap.String("fontstack", stack),
					zap.Int32("start", rng.Start), zap.Error(err))
			}
			m.onRangeLoaded(stack, rng, glyphs)
		})
	})
}

func (m *Manager) onRangeLoaded(stack FontStack, rng Range, glyphs map[rune]Glyph) {
	e := m.entry(stack)
	for r, g := range glyphs {
		e.glyphs[r] = g
	}
	e.ranges[rng] = &rangeState{loaded: true}

	for requestor, req := range m.pending {
		ranges, ok := req.ranges[stack]
		if !ok {
			continue
		}
		delete(ranges, rng)
		if len(ranges) == 0 {
			delete(req.ranges, stack)
		}
		if len(req.ranges) == 0 {
			delete(m.pending, requestor)
			requestor.OnGlyphsAvailable(m.positions(req.deps))
		}
	}
}

func (m *Manager) positions(deps Dependencies) Positions {
	p := make(Positions, len(deps))
	for stack, runes := range deps {
		e := m.entry(stack)
		glyphs := make(map[rune]Glyph, len(runes))
		for r := range runes {
			if g, ok := e.glyphs[r]; ok {
				glyphs[r] = g
			}
		}
		p[stack] = glyphs
	}
	return p
}

// loadRange computes the metrics of every glyph the font has in rng. It runs off the main goroutine
// with its own face, faces are not safe for concurrent use.
func loadRange(f *opentype.Font, rng Range) (map[rune]Glyph, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: BaseSize, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, err
	}
	defer face.Close()

	var buf sfnt.Buffer
	glyphs := make(map[rune]Glyph)
	for r := rng.Start; r <= rng.End; r++ {
		if index, err := f.GlyphIndex(&buf, r); err != nil || index == 0 {
			continue
		}
		bounds, advance, ok := face.GlyphBounds(r)
		if !ok {
			continue
		}
		glyphs[r] = Glyph{
			ID:      r,
			Advance: toFloat(advance),
			Bounds: geom.Extent{
				toFloat(bounds.Min.X), toFloat(bounds.Min.Y),
				toFloat(bounds.Max.X), toFloat(bounds.Max.Y),
			},
		}
	}
	return glyphs, nil
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
