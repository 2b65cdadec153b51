package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // jpeg backgrounds
	"image/png"
	"io/fs"
	"sync"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/spreads"
)

// Renderer loads assets and produces PNG spread images. Decoded assets are
// cached; it is safe for concurrent use.
type Renderer struct {
	backgrounds fs.FS
	cards       fs.FS
	logger      *logx.Logger
	cache       map[string]image.Image
	mu          sync.Mutex
}

// NewRenderer reads backgrounds as back{id}.png or back{id}.jpg and card faces
// by their catalog image name.
func NewRenderer(backgrounds, cards fs.FS) *Renderer {
	return &Renderer{
		backgrounds: backgrounds,
		cards:       cards,
		logger:      logx.NewLogger("imaging"),
		cache:       make(map[string]image.Image),
	}
}

// Render composes the spread image for cards and encodes it as PNG.
func (r *Renderer) Render(spread spreads.Spread, cards []deck.Card) ([]byte, error) {
	bg, err := r.background(spread.BackgroundID)
	if err != nil {
		return nil, err
	}

	faces := make([]image.Image, len(cards))
	for i, c := range cards {
		if faces[i], err = r.load(r.cards, "card", c.Image); err != nil {
			return nil, err
		}
	}

	img, err := Compose(bg, faces, spread.Layout, spread.Scale)
	if err != nil {
		return nil, fmt.Errorf("failed to compose %s: %w", spread.Key, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode spread image: %w", err)
	}
	r.logger.Debug("Rendered %s image (%d bytes)", spread.Key, buf.Len())
	return buf.Bytes(), nil
}

func (r *Renderer) background(id int) (image.Image, error) {
	var lastErr error
	for _, ext := range []string{"png", "jpg"} {
		img, err := r.load(r.backgrounds, "background", fmt.Sprintf("back%d.%s", id, ext))
		if err == nil {
			return img, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Renderer) load(fsys fs.FS, kind, name string) (image.Image, error) {
	key := kind + "/" + name

	r.mu.Lock()
	img, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return img, nil
	}

	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s %s: %w", kind, name, err)
	}
	defer f.Close()

	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, name, err)
	}

	r.mu.Lock()
	r.cache[key] = img
	r.mu.Unlock()
	return img, nil
}
