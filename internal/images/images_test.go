package images

import (
	"reflect"
	"strings"
	"testing"
)

func pngFile(name string) *UploadedFile {
	return &UploadedFile{Filename: name, Size: 1024, Mimetype: "image/png", Path: "uploads/" + name}
}

func TestValidateImageFilesEmpty(t *testing.T) {
	res := ValidateImageFiles(nil)
	if !res.Valid || len(res.Images) != 0 || len(res.Errors) != 0 {
		t.Fatalf("empty batch should be trivially valid: %+v", res)
	}
}

func TestValidateImageFilesTooMany(t *testing.T) {
	files := make([]*UploadedFile, MaxImages+1)
	for i := range files {
		// Even broken entries are not inspected once the batch is over the limit.
		if i%2 == 0 {
			files[i] = pngFile("a.png")
		}
	}
	res := ValidateImageFiles(files)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "5") {
		t.Fatalf("expected exactly one error naming the limit, got %v", res.Errors)
	}
	if len(res.Images) != 0 {
		t.Fatalf("images must not be populated: %v", res.Images)
	}
}

func TestValidateImageFilesPerFileErrors(t *testing.T) {
	files := []*UploadedFile{
		pngFile("ok.png"),
		nil,
		{Filename: "", Size: 10, Mimetype: "image/png", Path: "x"},
		{Filename: "big.jpg", Size: MaxFileSize + 1, Mimetype: "image/jpeg", Path: "uploads/big.jpg"},
		{Filename: "doc.pdf", Size: 10, Mimetype: "application/pdf", Path: "uploads/doc.pdf"},
	}
	res := ValidateImageFiles(files)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if len(res.Errors) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(res.Errors), res.Errors)
	}
	if !strings.Contains(res.Errors[0], "file 2") || !strings.Contains(res.Errors[0], "missing or corrupted") {
		t.Fatalf("unexpected first error: %q", res.Errors[0])
	}
	if !strings.Contains(res.Errors[2], "big.jpg") || !strings.Contains(res.Errors[2], "5MB") {
		t.Fatalf("size error should name file and limit: %q", res.Errors[2])
	}
	if !strings.Contains(res.Errors[3], "image/webp") {
		t.Fatalf("type error should list allowed types: %q", res.Errors[3])
	}
	if len(res.Images) != 1 || res.Images[0].Filename != "ok.png" {
		t.Fatalf("expected the valid file to be accepted: %+v", res.Images)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings should be empty: %v", res.Warnings)
	}
}

func TestValidateImageFilesPathResolution(t *testing.T) {
	files := []*UploadedFile{
		{Filename: "local.webp", Size: 1, Mimetype: "image/webp", Path: "/tmp/multer/abc"},
		{Filename: "remote.jpg", Size: 1, Mimetype: "image/jpeg", Path: "https://cdn.example.com/remote.jpg", OriginalName: "Beach.jpg"},
		{Filename: "nopath.png", Size: 1, Mimetype: "image/png"},
	}
	res := ValidateImageFiles(files)
	if res.Valid {
		t.Fatalf("missing path must be reported")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "no valid path") {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	want := []ImageDescriptor{
		{Path: "/uploads/local.webp", Filename: "local.webp", Size: 1, Mimetype: "image/webp", OriginalName: "local.webp"},
		{Path: "https://cdn.example.com/remote.jpg", Filename: "remote.jpg", Size: 1, Mimetype: "image/jpeg", OriginalName: "Beach.jpg"},
	}
	if !reflect.DeepEqual(res.Images, want) {
		t.Fatalf("descriptors mismatch:\nwant %+v\ngot  %+v", want, res.Images)
	}
}

func TestValidateImageFilesAcceptedCount(t *testing.T) {
	files := []*UploadedFile{pngFile("1.png"), pngFile("2.png"), {Filename: "3.gif", Mimetype: "image/gif", Path: "p"}}
	res := ValidateImageFiles(files)
	if got := len(res.Images); got != len(files)-len(res.Errors) {
		t.Fatalf("accepted=%d errors=%d total=%d", got, len(res.Errors), len(files))
	}
	for _, img := range res.Images {
		if img.Path == "" {
			t.Fatalf("accepted image without path: %+v", img)
		}
	}
}

func TestCheckDuplicateImagesCaseInsensitive(t *testing.T) {
	res := CheckDuplicateImages([]Path{"a", " A ", "b"})
	if !res.HasDuplicates {
		t.Fatalf("expected duplicates")
	}
	if !reflect.DeepEqual(res.UniqueImages, []Path{"a", "b"}) {
		t.Fatalf("unique mismatch: %v", res.UniqueImages)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].Indices != [2]int{0, 1} {
		t.Fatalf("duplicate entry mismatch: %+v", res.Duplicates)
	}
	if res.Duplicates[0].Value != " A " {
		t.Fatalf("duplicate value should be the original string, got %q", res.Duplicates[0].Value)
	}
}

func TestCheckDuplicateImagesDescriptors(t *testing.T) {
	imgs := []ImageDescriptor{{Path: "/uploads/x.png"}, {Path: "/uploads/y.png"}, {Path: "/UPLOADS/X.PNG"}, {Path: "/uploads/x.png"}}
	res := CheckDuplicateImages(imgs)
	if len(res.UniqueImages) != 2 || len(res.Duplicates) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Duplicates[1].Indices != [2]int{0, 3} {
		t.Fatalf("repeat should point at first occurrence: %+v", res.Duplicates[1])
	}
}

func TestCombineImages(t *testing.T) {
	tests := []struct {
		name      string
		existing  []Path
		added     []Path
		valid     bool
		images    []Path
		errSubstr string
	}{
		{
			name:     "within limit",
			existing: []Path{"/u/1.png", "/u/2.png"},
			added:    []Path{"/u/3.png"},
			valid:    true,
			images:   []Path{"/u/1.png", "/u/2.png", "/u/3.png"},
		},
		{
			name:      "over limit",
			existing:  []Path{"1", "2", "3", "4"},
			added:     []Path{"5", "6"},
			images:    []Path{},
			errSubstr: "6",
		},
		{
			name:      "duplicates reported with unique set",
			existing:  []Path{"/u/1.png"},
			added:     []Path{"/U/1.png", "/u/2.png"},
			images:    []Path{"/u/1.png", "/u/2.png"},
			errSubstr: "positions 0 and 1",
		},
		{
			name:   "both empty",
			valid:  true,
			images: []Path{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := CombineImages(tc.existing, tc.added)
			if res.Valid != tc.valid {
				t.Fatalf("valid=%v want %v (errors %v)", res.Valid, tc.valid, res.Errors)
			}
			if !reflect.DeepEqual(res.Images, tc.images) {
				t.Fatalf("images mismatch: want %v got %v", tc.images, res.Images)
			}
			if tc.errSubstr != "" && (len(res.Errors) == 0 || !strings.Contains(res.Errors[0], tc.errSubstr)) {
				t.Fatalf("expected error containing %q, got %v", tc.errSubstr, res.Errors)
			}
		})
	}
}

func TestFindImagesToDelete(t *testing.T) {
	got := FindImagesToDelete([]Path{"/u/1.png", "/u/2.png"}, []Path{"/u/1.png"})
	if !reflect.DeepEqual(got, []Path{"/u/2.png"}) {
		t.Fatalf("unexpected delete set: %v", got)
	}

	old := []Path{"/u/1.png", "/u/2.png", "/u/2.png"}
	if got := FindImagesToDelete(old, nil); !reflect.DeepEqual(got, old) {
		t.Fatalf("full replacement should delete everything: %v", got)
	}
	if got := FindImagesToDelete(old, []Path{}); !reflect.DeepEqual(got, old) {
		t.Fatalf("full replacement should delete everything: %v", got)
	}
	if got := FindImagesToDelete(nil, []Path{"/u/1.png"}); len(got) != 0 {
		t.Fatalf("nothing to delete from an empty list: %v", got)
	}
	if got := FindImagesToDelete([]Path{" /u/1.png"}, []Path{"/u/1.png "}); len(got) != 0 {
		t.Fatalf("surrounding whitespace should be ignored: %v", got)
	}
}

func TestCreateImagePreview(t *testing.T) {
	got := CreateImagePreview([]Path{"/u/a.png", "/u/b.png"})
	want := []Preview{
		{URL: "/u/a.png", Alt: "Image 1", Index: 0},
		{URL: "/u/b.png", Alt: "Image 2", Index: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("preview mismatch: %+v", got)
	}
}
