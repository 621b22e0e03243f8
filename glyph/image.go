package glyph

// Image is the size of an icon in pixels.
type Image struct {
	Width, Height float64
	PixelRatio    float64
}

// ImageRequestor receives the icons it asked for, on the main goroutine.
type ImageRequestor interface {
	OnImagesAvailable(map[string]Image)
}

// ImageManager is the registry of icons. Requests wait until every icon they name was added,
// or until the registry is marked loaded, after which missing icons are left out.
// It is used from the main goroutine only.
type ImageManager struct {
	images  map[string]Image
	loaded  bool
	pending map[ImageRequestor]map[string]struct{}
}

func NewImageManager() *ImageManager {
	return &ImageManager{
		images:  make(map[string]Image),
		pending: make(map[ImageRequestor]map[string]struct{}),
	}
}

func (m *ImageManager) AddImage(name string, img Image) {
	if img.PixelRatio == 0 {
		img.PixelRatio = 1
	}
	m.images[name] = img
	m.notify()
}

// SetLoaded marks that no more images are coming and answers all pending requests.
func (m *ImageManager) SetLoaded(loaded bool) {
	m.loaded = loaded
	m.notify()
}

func (m *ImageManager) GetImages(requestor ImageRequestor, deps map[string]struct{}) {
	if m.satisfied(deps) {
		delete(m.pending, requestor)
		requestor.OnImagesAvailable(m.subset(deps))
		return
	}
	m.pending[requestor] = deps
}

func (m *ImageManager) RemoveRequestor(requestor ImageRequestor) {
	delete(m.pending, requestor)
}

func (m *ImageManager) satisfied(deps map[string]struct{}) bool {
	if m.loaded {
		return true
	}
	for name := range deps {
		if _, ok := m.images[name]; !ok {
			return false
		}
	}
	return true
}

func (m *ImageManager) subset(deps map[string]struct{}) map[string]Image {
	result := make(map[string]Image, len(deps))
	for name := range deps {
		if img, ok := m.images[name]; ok {
			result[name] = img
		}
	}
	return result
}

func (m *ImageManager) notify() {
	for requestor, deps := range m.pending {
		if m.satisfied(deps) {
			delete(m.pending, requestor)
			requestor.OnImagesAvailable(m.subset(deps))
		}
	}
}
