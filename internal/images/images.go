// Package images validates uploaded product images and reconciles stored image lists.
//
// Nothing here returns an error value or panics to the caller: every operation reports
// problems as human-readable strings inside its result, and callers check Valid before
// trusting the accepted images.
package images

import (
	"fmt"
	"strings"
)

const (
	// MaxImages is the capacity of one owner's image collection.
	MaxImages = 5
	// MaxFileSize is the per-file upload limit in bytes.
	MaxFileSize = 5 << 20
	// UploadPrefix is prepended to the file name of locally stored uploads.
	UploadPrefix = "/uploads/"
)

// AllowedTypes lists accepted MIME types in the order they are reported to users.
var AllowedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

// UploadedFile is what the upload layer hands over for one file.
type UploadedFile struct {
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	Mimetype     string `json:"mimetype"`
	Path         string `json:"path"`
	OriginalName string `json:"originalname"`
}

// ImageDescriptor is an accepted, normalized image.
type ImageDescriptor struct {
	Path         string `json:"path"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	Mimetype     string `json:"mimetype"`
	OriginalName string `json:"originalName"`
}

// Ref is anything that resolves to a stored image reference.
type Ref interface {
	ImageRef() string
}

// Path is a bare image reference.
type Path string

func (p Path) ImageRef() string { return string(p) }

func (d ImageDescriptor) ImageRef() string { return d.Path }

// ValidationResult is the outcome of ValidateImageFiles.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Images   []ImageDescriptor `json:"images"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// Duplicate records a repeated reference: Indices holds the first occurrence and the repeat.
type Duplicate struct {
	Value   string `json:"value"`
	Indices [2]int `json:"indices"`
}

type DuplicateResult[T Ref] struct {
	HasDuplicates bool        `json:"hasDuplicates"`
	UniqueImages  []T         `json:"uniqueImages"`
	Duplicates    []Duplicate `json:"duplicates"`
}

type CombineResult[T Ref] struct {
	Valid  bool     `json:"valid"`
	Images []T      `json:"images"`
	Errors []string `json:"errors"`
}

// Preview is a display projection of one image.
type Preview struct {
	URL   string `json:"url"`
	Alt   string `json:"alt"`
	Index int    `json:"index"`
}

// ValidateImageFiles checks a batch of uploads. A batch larger than MaxImages is rejected as a
// whole; otherwise every file is checked and rejected files are reported without stopping the batch.
func ValidateImageFiles(files []*UploadedFile) ValidationResult {
	res := ValidationResult{
		Images:   []ImageDescriptor{},
		Errors:   []string{},
		Warnings: []string{},
	}
	if len(files) == 0 {
		res.Valid = true
		return res
	}
	if len(files) > MaxImages {
		res.Errors = append(res.Errors, fmt.Sprintf("too many images: at most %d files can be uploaded", MaxImages))
		return res
	}

	for i, file := range files {
		img, msg := validateFile(i, file)
		if msg != "" {
			res.Errors = append(res.Errors, msg)
			continue
		}
		res.Images = append(res.Images, img)
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func validateFile(i int, file *UploadedFile) (img ImageDescriptor, msg string) {
	defer func() {
		if r := recover(); r != nil {
			img = ImageDescriptor{}
			msg = fmt.Sprintf("file %d could not be processed: %v", i+1, r)
		}
	}()

	if file == nil || file.Filename == "" {
		return img, fmt.Sprintf("file %d is missing or corrupted", i+1)
	}
	if file.Size > MaxFileSize {
		return img, fmt.Sprintf("file %q is too large: the limit is %dMB", file.Filename, MaxFileSize>>20)
	}
	if !isAllowedType(file.Mimetype) {
		return img, fmt.Sprintf("file %q has unsupported type %q: allowed types are %s",
			file.Filename, file.Mimetype, strings.Join(AllowedTypes, ", "))
	}

	var path string
	switch {
	case file.Path == "":
		return img, fmt.Sprintf("file %q has no valid path", file.Filename)
	case isRemote(file.Path):
		path = file.Path
	default:
		path = UploadPrefix + file.Filename
	}

	original := file.OriginalName
	if original == "" {
		original = file.Filename
	}
	return ImageDescriptor{
		Path:         path,
		Filename:     file.Filename,
		Size:         file.Size,
		Mimetype:     file.Mimetype,
		OriginalName: original,
	}, ""
}

func isAllowedType(mimetype string) bool {
	for _, allowed := range AllowedTypes {
		if mimetype == allowed {
			return true
		}
	}
	return false
}

func isRemote(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// NormalizeRef is the comparison form of a reference. It is never stored.
func NormalizeRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// CheckDuplicateImages keeps the first occurrence of every reference and records each repeat.
func CheckDuplicateImages[T Ref](images []T) DuplicateResult[T] {
	res := DuplicateResult[T]{
		UniqueImages: make([]T, 0, len(images)),
		Duplicates:   []Duplicate{},
	}
	firstSeen := make(map[string]int, len(images))
	for i, img := range images {
		key := NormalizeRef(img.ImageRef())
		if first, ok := firstSeen[key]; ok {
			res.Duplicates = append(res.Duplicates, Duplicate{Value: img.ImageRef(), Indices: [2]int{first, i}})
			continue
		}
		firstSeen[key] = i
		res.UniqueImages = append(res.UniqueImages, img)
	}
	res.HasDuplicates = len(res.Duplicates) > 0
	return res
}

// CombineImages appends newImages to existing and checks capacity and duplicates.
// On duplicates the result is invalid but Images still carries the unique set.
func CombineImages[T Ref](existing, newImages []T) CombineResult[T] {
	combined := make([]T, 0, len(existing)+len(newImages))
	combined = append(combined, existing...)
	combined = append(combined, newImages...)

	if len(combined) > MaxImages {
		return CombineResult[T]{
			Images: []T{},
			Errors: []string{fmt.Sprintf("too many images: at most %d allowed, got %d", MaxImages, len(combined))},
		}
	}

	dups := CheckDuplicateImages(combined)
	if dups.HasDuplicates {
		errs := make([]string, 0, len(dups.Duplicates))
		for _, d := range dups.Duplicates {
			errs = append(errs, fmt.Sprintf("duplicate image %q at positions %d and %d", d.Value, d.Indices[0], d.Indices[1]))
		}
		return CombineResult[T]{Images: dups.UniqueImages, Errors: errs}
	}
	return CombineResult[T]{Valid: true, Images: combined, Errors: []string{}}
}

// FindImagesToDelete returns the elements of oldImages that are absent from newImages.
// Only surrounding whitespace is ignored here; the comparison is case-sensitive.
func FindImagesToDelete[T Ref](oldImages, newImages []T) []T {
	out := make([]T, 0, len(oldImages))
	if len(oldImages) == 0 {
		return out
	}
	keep := make(map[string]struct{}, len(newImages))
	for _, img := range newImages {
		keep[strings.TrimSpace(img.ImageRef())] = struct{}{}
	}
	for _, img := range oldImages {
		if _, ok := keep[strings.TrimSpace(img.ImageRef())]; !ok {
			out = append(out, img)
		}
	}
	return out
}

// CreateImagePreview projects images into display records.
func CreateImagePreview[T Ref](images []T) []Preview {
	out := make([]Preview, 0, len(images))
	for i, img := range images {
		out = append(out, Preview{
			URL:   img.ImageRef(),
			Alt:   fmt.Sprintf("Image %d", i+1),
			Index: i,
		})
	}
	return out
}

// Paths extracts the references of descriptors in order.
func Paths[T Ref](images []T) []Path {
	out := make([]Path, 0, len(images))
	for _, img := range images {
		out = append(out, Path(img.ImageRef()))
	}
	return out
}

// ToPaths converts plain strings into references.
func ToPaths(refs []string) []Path {
	out := make([]Path, 0, len(refs))
	for _, ref := range refs {
		out = append(out, Path(ref))
	}
	return out
}
