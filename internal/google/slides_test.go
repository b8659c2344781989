package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"
)

type renderHarness struct {
	mux      *http.ServeMux
	server   *httptest.Server
	renderer *SlidesRenderer

	batchUpdates []*slides.BatchUpdatePresentationRequest
	deletedTemp  bool
}

// Один мок-сервер обслуживает и Drive, и Slides: их маршруты не пересекаются.
func setupRenderer(t *testing.T) *renderHarness {
	t.Helper()
	ctx := context.Background()

	h := &renderHarness{mux: http.NewServeMux()}
	h.server = httptest.NewServer(h.mux)
	t.Cleanup(h.server.Close)

	driveSrv, _ := drive.NewService(ctx, option.WithEndpoint(h.server.URL), option.WithoutAuthentication())
	slidesSrv, _ := slides.NewService(ctx, option.WithEndpoint(h.server.URL), option.WithoutAuthentication())

	logger := zerolog.Nop()
	driveSvc := &DriveService{service: driveSrv, retry: fastPolicy(0), logger: &logger}
	h.renderer = &SlidesRenderer{
		service: slidesSrv,
		drive:   driveSvc,
		client:  h.server.Client(),
		retry:   fastPolicy(0),
		logger:  &logger,
	}
	return h
}

// registerRenderRoutes wires the happy-path endpoints: template copy,
// batch updates, presentation fetch, thumbnail export and cleanup.
func (h *renderHarness) registerRenderRoutes(pres slides.Presentation) {
	h.mux.HandleFunc("/files/tpl-1/copy", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(drive.File{Id: "tmp-1"})
	})
	h.mux.HandleFunc("/files/tmp-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			h.deletedTemp = true
			w.WriteHeader(http.StatusNoContent)
		}
	})
	h.mux.HandleFunc("/v1/presentations/tmp-1:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		var req slides.BatchUpdatePresentationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		h.batchUpdates = append(h.batchUpdates, &req)
		_ = json.NewEncoder(w).Encode(slides.BatchUpdatePresentationResponse{})
	})
	h.mux.HandleFunc("/v1/presentations/tmp-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pres)
	})
	h.mux.HandleFunc("/v1/presentations/tmp-1/pages/p1/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slides.Thumbnail{ContentUrl: h.server.URL + "/thumb.png"})
	})
	h.mux.HandleFunc("/thumb.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\x89PNG fake slide export"))
	})
	h.mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(drive.File{Id: "art-1"})
	})
}

func TestSlidesRenderer_Render(t *testing.T) {
	h := setupRenderer(t)
	h.registerRenderRoutes(slides.Presentation{
		Slides: []*slides.Page{{ObjectId: "p1"}},
	})

	artifactID, err := h.renderer.Render(context.Background(), "tpl-1",
		map[string]string{"{{TEXT}}": "hello"}, "", "out-1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if artifactID != "art-1" {
		t.Errorf("expected art-1, got %q", artifactID)
	}
	if !h.deletedTemp {
		t.Error("temporary template copy was not deleted")
	}

	if len(h.batchUpdates) != 1 {
		t.Fatalf("expected 1 batch update, got %d", len(h.batchUpdates))
	}
	reqs := h.batchUpdates[0].Requests
	if len(reqs) != 1 || reqs[0].ReplaceAllText == nil {
		t.Fatalf("expected one ReplaceAllText request, got %+v", reqs)
	}
	if got := reqs[0].ReplaceAllText.ContainsText.Text; got != "{{TEXT}}" {
		t.Errorf("placeholder = %q, want {{TEXT}}", got)
	}
	if got := reqs[0].ReplaceAllText.ReplaceText; got != "hello" {
		t.Errorf("replacement = %q, want hello", got)
	}
}

func TestSlidesRenderer_RenderWithImage(t *testing.T) {
	h := setupRenderer(t)
	h.registerRenderRoutes(slides.Presentation{
		Slides: []*slides.Page{{
			ObjectId: "p1",
			PageElements: []*slides.PageElement{
				{ObjectId: "title-1"},
				{ObjectId: "el-1", Image: &slides.Image{}},
			},
		}},
	})

	_, err := h.renderer.Render(context.Background(), "tpl-1",
		map[string]string{"{{TEXT}}": "hello"}, "https://example.com/img.png", "out-1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Сначала текст, затем замена картинок.
	if len(h.batchUpdates) != 2 {
		t.Fatalf("expected 2 batch updates, got %d", len(h.batchUpdates))
	}
	imgReqs := h.batchUpdates[1].Requests
	if len(imgReqs) != 1 || imgReqs[0].ReplaceImage == nil {
		t.Fatalf("expected one ReplaceImage request, got %+v", imgReqs)
	}
	ri := imgReqs[0].ReplaceImage
	if ri.ImageObjectId != "el-1" {
		t.Errorf("image object = %q, want el-1", ri.ImageObjectId)
	}
	if ri.Url != "https://example.com/img.png" {
		t.Errorf("image url = %q", ri.Url)
	}
	if ri.ImageReplaceMethod != "CENTER_CROP" {
		t.Errorf("replace method = %q", ri.ImageReplaceMethod)
	}
}

func TestSlidesRenderer_RenderNoSlides(t *testing.T) {
	h := setupRenderer(t)
	h.registerRenderRoutes(slides.Presentation{})

	_, err := h.renderer.Render(context.Background(), "tpl-1", nil, "", "out-1")
	if err == nil {
		t.Fatal("expected error for empty presentation")
	}
	var rerr *models.RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RenderError, got %T", err)
	}
	if rerr.TemplateID != "tpl-1" {
		t.Errorf("template id = %q", rerr.TemplateID)
	}
	if !strings.Contains(err.Error(), "no slides") {
		t.Errorf("unexpected message: %v", err)
	}
	// Очистка обязана сработать и при ошибке.
	if !h.deletedTemp {
		t.Error("temporary copy must be deleted on failure too")
	}
}

func TestSlidesRenderer_RenderCopyFails(t *testing.T) {
	h := setupRenderer(t)
	// Без маршрутов копирование шаблона отвечает 404.

	_, err := h.renderer.Render(context.Background(), "tpl-1", nil, "", "out-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var rerr *models.RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RenderError, got %T", err)
	}
	if !strings.Contains(err.Error(), "copy template") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestSlidesRenderer_ThumbnailFetchFails(t *testing.T) {
	h := setupRenderer(t)
	h.mux.HandleFunc("/files/tpl-1/copy", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(drive.File{Id: "tmp-1"})
	})
	h.mux.HandleFunc("/files/tmp-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.mux.HandleFunc("/v1/presentations/tmp-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slides.Presentation{
			Slides: []*slides.Page{{ObjectId: "p1"}},
		})
	})
	h.mux.HandleFunc("/v1/presentations/tmp-1/pages/p1/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slides.Thumbnail{ContentUrl: h.server.URL + "/broken.png"})
	})
	h.mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := h.renderer.Render(context.Background(), "tpl-1", nil, "", "out-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unexpected status 500") {
		t.Errorf("unexpected message: %v", err)
	}
}
