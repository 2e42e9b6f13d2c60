package tests

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"image/color"
	"net/http"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

func Test_uploadApi_create(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	workerToken := getToken(t, worker)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", "", nil)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("no files", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, map[string]string{"lol": "cat"})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "no files provided"})}, rec)
	})

	t.Run("refused type", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
			formFile{field: "files", name: "evil.exe", contentType: "application/octet-stream", content: []byte("MZ lol")})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "this file type is not allowed"}),
		}, rec)
	})

	t.Run("too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), int(conf.Upload.MaxDocumentSize)+1)
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
			formFile{field: "files", name: "big.txt", contentType: "text/plain", content: big})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "file exceeds the maximum allowed size"}),
		}, rec)
	})

	t.Run("content type falls back to the extension", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
			formFile{field: "files", name: "notes.pdf", contentType: "", content: []byte("%PDF-1.4 lol")})
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var files []upload.StoredFile
		if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(files) != 1 || files[0].Kind != upload.KindDocument {
			t.Errorf("failed! unexpected files %+v", files)
		}
	})

	t.Run("created", func(t *testing.T) {
		content := pngBytes(t)
		sum := sha256.Sum256(content)

		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
			formFile{field: "files", name: "site.png", contentType: "image/png", content: content},
			formFile{field: "files", name: "report.txt", contentType: "text/plain", content: []byte("all good")},
		)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var files []upload.StoredFile
		if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("failed! len(files) = %d; want 2", len(files))
		}

		img, doc := files[0], files[1]
		if img.Kind != upload.KindImage || img.OriginalName != "site.png" || img.UploadedBy != worker.ID {
			t.Errorf("failed! unexpected image record %+v", img)
		}
		if img.Size != int64(len(content)) {
			t.Errorf("failed! Size = %d; want %d", img.Size, len(content))
		}
		if img.Checksum != hex.EncodeToString(sum[:]) {
			t.Errorf("failed! Checksum = %s; want %s", img.Checksum, hex.EncodeToString(sum[:]))
		}
		if doc.Kind != upload.KindDocument || doc.OriginalName != "report.txt" {
			t.Errorf("failed! unexpected document record %+v", doc)
		}
	})
}

func Test_uploadApi_download(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	workerToken := getToken(t, worker)

	content := []byte("daily report: all good")
	req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
		formFile{field: "files", name: "report.txt", contentType: "text/plain", content: content})
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var files []upload.StoredFile
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	f := files[0]

	t.Run("Unknown id", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/uploads/lol", workerToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("roundtrip", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/uploads/"+f.ID, workerToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if !bytes.Equal(rec.Body.Bytes(), content) {
			t.Error("failed! downloaded content differs from the upload")
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("failed! Content-Type = %s", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="report.txt"`) {
			t.Errorf("failed! Content-Disposition = %s", cd)
		}
	})

	t.Run("documents have no thumbnail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/uploads/"+f.ID+"/thumbnail", workerToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})
}

func Test_uploadApi_thumbnail(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	workerToken := getToken(t, worker)

	// a source image bigger than the thumbnail bound
	img := imaging.New(conf.Upload.ThumbnailSize*4, conf.Upload.ThumbnailSize*2, color.NRGBA{R: 30, G: 90, B: 160, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("imaging.Encode() failed: %v", err)
	}

	req, rec := newMultipartRequest(t, http.MethodPost, "/v1/uploads", workerToken, nil,
		formFile{field: "files", name: "pano.png", contentType: "image/png", content: buf.Bytes()})
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var files []upload.StoredFile
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/uploads/"+files[0].ID+"/thumbnail", workerToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	thumb, err := imaging.Decode(rec.Body)
	if err != nil {
		t.Fatalf("imaging.Decode() failed: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() > conf.Upload.ThumbnailSize || bounds.Dy() > conf.Upload.ThumbnailSize {
		t.Errorf("failed! thumbnail %dx%d exceeds the %dpx bound", bounds.Dx(), bounds.Dy(), conf.Upload.ThumbnailSize)
	}
}
