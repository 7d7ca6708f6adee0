// Package workspace holds one user's document session: the active image
// pair, the viewer transform and the editable OCR text.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/images"
	"github.com/3ltranslate/legtrans/internal/ocr"
	"github.com/3ltranslate/legtrans/internal/translation"
	"github.com/3ltranslate/legtrans/internal/viewer"
)

var (
	ErrBusy    = errors.New("an OCR or translation request is already running")
	ErrNoImage = errors.New("no image loaded")
	ErrNoText  = errors.New("no text to translate")
)

// Workspace is safe for concurrent use. Long-running calls mark it busy
// instead of holding the lock.
type Workspace struct {
	owner      string
	ocr        *ocr.Service
	translator *translation.Service
	// credentials is the owner's OCR key provider; nil uses the service default
	credentials credentials.Provider

	mu       sync.Mutex
	source   *images.Source
	adjusted *images.Adjusted
	view     *viewer.Viewer
	text     string
	busy     bool
}

// Snapshot is a point-in-time copy for rendering
type Snapshot struct {
	Owner     string           `json:"owner"`
	Source    *images.Source   `json:"source,omitempty"`
	Adjusted  *images.Adjusted `json:"adjusted,omitempty"`
	Transform viewer.Transform `json:"transform"`
	ViewState string           `json:"view_state"`
	Text      string           `json:"text"`
	Busy      bool             `json:"busy"`
}

func New(owner string, ocrSvc *ocr.Service, translator *translation.Service) *Workspace {
	return &Workspace{
		owner:      owner,
		ocr:        ocrSvc,
		translator: translator,
		view:       viewer.New(),
	}
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Owner:     w.owner,
		Source:    w.source,
		Adjusted:  w.adjusted,
		Transform: w.view.Transform(),
		ViewState: w.view.State().String(),
		Text:      w.text,
		Busy:      w.busy,
	}
}

// LoadImage replaces the active pair, resets the view and clears the text
func (w *Workspace) LoadImage(src *images.Source) error {
	if src == nil || len(src.Data) == 0 {
		return images.ErrEmptyImage
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.source = src
	w.adjusted = &images.Adjusted{Image: src.Image, Factor: images.NeutralContrast}
	w.view.Reset()
	w.text = ""
	slog.Info("Image loaded", "owner", w.owner, "filename", src.Filename, "type", src.MIMEType, "size", len(src.Data))
	return nil
}

// SetContrast recomputes the adjusted image. On failure the previous
// adjusted image stays active.
func (w *Workspace) SetContrast(factor float64) (*images.Adjusted, error) {
	w.mu.Lock()
	src := w.source
	w.mu.Unlock()
	if src == nil {
		return nil, ErrNoImage
	}

	adjusted, err := images.AdjustContrast(src, factor)
	if err != nil {
		slog.Warn("Contrast adjustment failed, keeping previous preview", "owner", w.owner, "factor", factor, "err", err)
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// a newer image may have been loaded meanwhile
	if w.source != src {
		return nil, ErrNoImage
	}
	w.adjusted = adjusted
	return adjusted, nil
}

// View applies a pointer or wheel event and returns the new transform
func (w *Workspace) View(e viewer.Event) (viewer.Transform, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.view.Apply(e) {
		return w.view.Transform(), fmt.Errorf("unknown view event %q", e.Type)
	}
	return w.view.Transform(), nil
}

// SetText replaces the editable text
func (w *Workspace) SetText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = text
}

func (w *Workspace) Text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.text
}

func (w *Workspace) acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	return nil
}

func (w *Workspace) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
}

// RunOCR extracts text from the adjusted image and stores it as the
// editable text on success.
func (w *Workspace) RunOCR(ctx context.Context, models []string, language string) (*ocr.Result, error) {
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	w.mu.Lock()
	img := w.adjusted
	w.mu.Unlock()
	if img == nil {
		return nil, ErrNoImage
	}

	res, err := w.ocr.Extract(ctx, ocr.Request{
		Image:       img.Data,
		MIMEType:    img.MIMEType,
		Models:      models,
		Language:    language,
		Credentials: w.credentials,
	})
	if err != nil {
		return nil, err
	}

	w.SetText(res.Text)
	return res, nil
}

// Translate translates text, or the current editable text when text is empty
func (w *Workspace) Translate(ctx context.Context, text string) (*translation.Result, error) {
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	if text == "" {
		text = w.Text()
	} else {
		w.SetText(text)
	}
	if text == "" {
		return nil, ErrNoText
	}
	return w.translator.Translate(ctx, w.owner, text)
}
