// Package artifact persists generated images, their JSON sidecars, and
// the append-only manifest, using atomic temp-then-rename writes.
package artifact

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"

	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/errs"
)

// Store writes artifacts into outDir and maintains manifest.jsonl.
type Store struct {
	outDir     string
	manifestMu sync.Mutex
}

// New builds a Store rooted at outDir, creating it if necessary.
func New(outDir string) (*Store, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errs.New(errs.KindOutDirUnwritable, fmt.Errorf("create out_dir %s: %w", outDir, err))
	}
	return &Store{outDir: outDir}, nil
}

// baseName produces the shared filename stem for one artifact's image,
// sidecar, and thumbnail.
func baseName(a domain.Artifact) string {
	return fmt.Sprintf("%08d-%s-%s", a.NumericID, a.Provider, a.Model)
}

// Save atomically writes the image, JSON sidecar, and (if thumb is
// non-nil) a thumbnail for a. It fills in a.ImagePath/SidecarPath/
// ThumbPath as a side effect.
func (s *Store) Save(png []byte, a *domain.Artifact, thumb []byte) error {
	base := baseName(*a)

	imagePath := filepath.Join(s.outDir, base+".png")
	if err := atomicWrite(imagePath, png); err != nil {
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("write image: %w", err))
	}
	a.ImagePath = imagePath

	sidecarPath := filepath.Join(s.outDir, base+".json")
	sidecar, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		cleanupFile(imagePath)
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("marshal sidecar: %w", err))
	}
	if err := atomicWrite(sidecarPath, sidecar); err != nil {
		cleanupFile(imagePath)
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("write sidecar: %w", err))
	}
	a.SidecarPath = sidecarPath

	if thumb != nil {
		thumbPath := filepath.Join(s.outDir, base+"_thumb.png")
		if err := atomicWrite(thumbPath, thumb); err != nil {
			cleanupFile(imagePath)
			cleanupFile(sidecarPath)
			return errs.New(errs.KindPersistenceFailed, fmt.Errorf("write thumbnail: %w", err))
		}
		a.ThumbPath = thumbPath
	}

	return nil
}

// AppendManifest appends one line to manifest.jsonl under a mutex
// serializing all writers, with an explicit flush per line.
func (s *Store) AppendManifest(entry domain.ManifestEntry) error {
	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.outDir, "manifest.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("open manifest: %w", err))
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("marshal manifest entry: %w", err))
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errs.New(errs.KindPersistenceFailed, fmt.Errorf("write manifest entry: %w", err))
	}
	return f.Sync()
}

// List enumerates *.png artifacts in outDir, sorted by modification time
// descending.
func (s *Store) List() ([]domain.ImageListing, error) {
	entries, err := os.ReadDir(s.outDir)
	if err != nil {
		return nil, fmt.Errorf("read out_dir: %w", err)
	}

	var listings []domain.ImageListing
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") || strings.HasSuffix(e.Name(), "_thumb.png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		listings = append(listings, domain.ImageListing{
			Name:      e.Name(),
			URL:       "/images/" + e.Name(),
			CreatedMs: info.ModTime().UnixMilli(),
			SizeBytes: info.Size(),
			SizeLabel: sizeLabel(info.Size()),
		})
	}

	sort.Slice(listings, func(i, j int) bool { return listings[i].CreatedMs > listings[j].CreatedMs })
	return listings, nil
}

// Serve resolves name to a path inside outDir, rejecting any name that
// could escape the directory.
func (s *Store) Serve(name string) (string, error) {
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", errs.New(errs.KindPathUnsafe, fmt.Errorf("unsafe image name %q", name))
	}
	path := filepath.Join(s.outDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", errs.New(errs.KindPathUnsafe, fmt.Errorf("image %q not found", name))
	}
	return path, nil
}

// Thumbnail resizes a PNG image so its longer side is at most maxPx,
// reusing the same draw.CatmullRom scaling idiom the Deduper uses for
// its downscale step.
func Thumbnail(png []byte, maxPx int) ([]byte, error) {
	src, err := decodePNG(png)
	if err != nil {
		return nil, fmt.Errorf("decode image for thumbnail: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxPx && h <= maxPx {
		return png, nil
	}

	scale := float64(maxPx) / float64(w)
	if h > w {
		scale = float64(maxPx) / float64(h)
	}
	dstW, dstH := int(float64(w)*scale), int(float64(h)*scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := encodePNG(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}

func encodePNG(w *bytes.Buffer, img image.Image) error {
	return png.Encode(w, img)
}

// atomicWrite writes data to a sibling temp file and renames it over
// path, unlinking the temp file on any failure.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp-" + randSuffix()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func cleanupFile(path string) {
	os.Remove(path)
}

func randSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(b[:])
}

// sizeLabel renders a human-readable byte count for image listings.
func sizeLabel(n int64) string {
	return humanize.Bytes(uint64(n))
}
