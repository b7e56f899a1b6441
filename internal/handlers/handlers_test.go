package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/agri-inference/internal/auth"
	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/gate"
	"github.com/example/agri-inference/internal/market"
	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
	"github.com/example/agri-inference/internal/registry"
	"github.com/example/agri-inference/internal/storage"
	"github.com/example/agri-inference/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubPredictor struct {
	kind  predictor.Kind
	out   predictor.RawOutput
	err   error
	calls int
}

func (s *stubPredictor) Kind() predictor.Kind { return s.kind }

func (s *stubPredictor) Predict(ctx context.Context, in predictor.FeatureVector) (predictor.RawOutput, error) {
	s.calls++
	return s.out, s.err
}

func (s *stubPredictor) Close() error { return nil }

type stubPipeline struct {
	err error
}

func (s *stubPipeline) Transform(in features.Input) (predictor.FeatureVector, error) {
	if s.err != nil {
		return predictor.FeatureVector{}, s.err
	}
	return predictor.FeatureVector{Data: []float32{0}, Shape: []int64{1, 1}}, nil
}

type stubMarket struct {
	err error
}

func (s stubMarket) Lookup(ctx context.Context, q market.Query) (*market.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &market.Record{Commodity: q.Commodity, Market: q.Market, Price: 1850, Unit: "INR/quintal"}, nil
}

type testServer struct {
	router   *gin.Engine
	crop     *stubPredictor
	disease  *stubPredictor
	pipeline *stubPipeline
	uploads  *storage.UploadStore
}

type serverOptions struct {
	withDisease bool
	market      PriceLookup
	adminAuth   gin.HandlerFunc
	maxUpload   int64
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	crop := &stubPredictor{kind: predictor.Classifier, out: predictor.RawOutput{ClassIndex: 1}}
	disease := &stubPredictor{kind: predictor.ImageClassifier, out: predictor.RawOutput{Probabilities: []float32{0.55, 0.45}}}
	pipeline := &stubPipeline{}
	ones := []float64{1, 1, 1, 1, 1, 1, 1}
	zeros := make([]float64, features.CropFieldCount)
	artifacts := []*registry.Artifact{
		{
			ID: registry.Crop, Kind: predictor.Classifier, Predictor: crop,
			Pipeline: features.NewCropPipeline(
				&features.MinMaxScaler{Min: zeros, Scale: ones},
				&features.StandardScaler{Mean: zeros, Scale: ones},
			),
		},
		{
			ID: registry.Yield, Kind: predictor.Regressor,
			Predictor: &stubPredictor{kind: predictor.Regressor, out: predictor.RawOutput{Scalar: 36613.5}},
			Pipeline:  &stubPipeline{},
		},
	}
	if opts.withDisease {
		artifacts = append(artifacts, &registry.Artifact{
			ID: registry.Disease, Kind: predictor.ImageClassifier, Predictor: disease, Pipeline: pipeline,
		})
	}
	models := registry.New(gate.NewCatalog([]gate.Disease{
		{Name: "Apple scab", Cause: "Fungus", Cure: "Fungicide"},
		{Name: "Healthy"},
	}), artifacts...)

	uploads, err := storage.NewUploadStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}

	tmpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("failed to parse templates: %v", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(CORS())
	RegisterRoutes(router, Dependencies{
		Predictions:   usecase.NewPredictionUseCase(models, usecase.NewLRUCache(16, time.Minute), nil, zap.NewNop()),
		Models:        models,
		Uploads:       uploads,
		Market:        opts.market,
		AdminAuth:     opts.adminAuth,
		MaxUploadSize: opts.maxUpload,
		Logger:        zap.NewNop(),
	})
	return &testServer{router: router, crop: crop, disease: disease, pipeline: pipeline, uploads: uploads}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return body
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPredictCropAPIReturnsLabel(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(jsonRequest("/api/predict_crop",
		`{"Nitrogen":90,"Phosphorus":42,"Potassium":43,"Temperature":20.8,"Humidity":82,"pH":6.5,"Rainfall":202.9}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}
	if got := decodeBody(t, resp)["prediction"]; got != "Rice" {
		t.Fatalf("expected Rice, got %v", got)
	}
	if resp.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected %s header to be set", RequestIDHeader)
	}
}

func TestPredictCropAPIIsIdempotent(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})
	body := `{"Nitrogen":90,"Phosphorus":42,"Potassium":43,"Temperature":20.8,"Humidity":82,"pH":6.5,"Rainfall":202.9}`

	first := srv.do(jsonRequest("/api/predict_crop", body))
	second := srv.do(jsonRequest("/api/predict_crop", body))

	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
}

func TestPredictCropAPIMissingFieldIsBadRequest(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(jsonRequest("/api/predict_crop",
		`{"Phosphorus":42,"Potassium":43,"Temperature":20.8,"Humidity":82,"pH":6.5,"Rainfall":202.9}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	msg, _ := decodeBody(t, resp)["error"].(string)
	if !strings.Contains(msg, "Nitrogen") {
		t.Fatalf("expected error naming Nitrogen, got %q", msg)
	}
	if _, ok := decodeBody(t, resp)["prediction"]; ok {
		t.Fatalf("expected no partial result")
	}
}

func TestPredictCropAPIRejectsOversizedBody(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	body := `{"Nitrogen":90,"padding":"` + strings.Repeat("x", maxFieldsBody) + `"}`
	resp := srv.do(jsonRequest("/api/predict_crop", body))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != errBodyTooLarge.Error() {
		t.Fatalf("unexpected error %v", got)
	}
	if srv.crop.calls != 0 {
		t.Fatalf("expected no predictor calls, got %d", srv.crop.calls)
	}
}

func TestPredictCropAPIRejectsNonObjectBody(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(jsonRequest("/api/predict_crop", `[1,2,3]`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestPredictYieldAPIReturnsScalar(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(jsonRequest("/api/predict_yield",
		`{"Year":1990,"average_rain_fall_mm_per_year":1485,"pesticides_tonnes":121,"avg_temp":16.37,"Area":"Albania","Item":"Maize"}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}
	if got := decodeBody(t, resp)["prediction"]; got != 36613.5 {
		t.Fatalf("expected 36613.5, got %v", got)
	}
}

func TestPredictCropPageRendersResult(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	form := "Nitrogen=90&Phosphorus=42&Potassium=43&Temperature=20.8&Humidity=82&pH=6.5&Rainfall=202.9"
	req := httptest.NewRequest(http.MethodPost, "/predict_crop", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := srv.do(req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Rice is the best crop to be cultivated right there.") {
		t.Fatalf("expected rendered result, got %s", resp.Body.String())
	}
}

func TestPredictCropPageAcceptsMultipartForm(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, kv := range [][2]string{
		{"Nitrogen", "90"}, {"Phosphorus", "42"}, {"Potassium", "43"}, {"Temperature", "20.8"},
		{"Humidity", "82"}, {"pH", "6.5"}, {"Rainfall", "202.9"},
	} {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict_crop", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := srv.do(req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "Rice is the best crop to be cultivated right there.") {
		t.Fatalf("expected rendered result, got %s", resp.Body.String())
	}
}

func TestCropPageListsSupportedCrops(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(httptest.NewRequest(http.MethodGet, "/crop", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Rice, Maize") || !strings.Contains(resp.Body.String(), "Coffee") {
		t.Fatalf("expected crop list in page, got %s", resp.Body.String())
	}
}

func TestPredictCropPageMissingFieldIsBadRequest(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	req := httptest.NewRequest(http.MethodPost, "/predict_crop", strings.NewReader("Nitrogen=90"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := srv.do(req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Phosphorus is required") {
		t.Fatalf("expected field error in page, got %s", resp.Body.String())
	}
}

func TestPredictDiseaseAPIBelowThreshold(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	body, contentType := buildMultipartBody(t, "leaf.png", "image/png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/predict_disease", body)
	req.Header.Set("Content-Type", contentType)
	resp := srv.do(req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}
	got := decodeBody(t, resp)
	if got["success"] != true {
		t.Fatalf("expected success flag, got %v", got)
	}
	pred, _ := json.Marshal(got["prediction"])
	if string(pred) != `{"confidence":0.55,"name":"Unknown / Not a plant"}` {
		t.Fatalf("unexpected prediction %s", pred)
	}
	assertUploadsEmpty(t, srv.uploads)
}

func TestPredictDiseaseAPIModelUnavailable(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: false})

	body, contentType := buildMultipartBody(t, "leaf.png", "image/png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/predict_disease", body)
	req.Header.Set("Content-Type", contentType)
	resp := srv.do(req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	pred, _ := json.Marshal(decodeBody(t, resp)["prediction"])
	if string(pred) != `{"confidence":0,"name":"Model not available"}` {
		t.Fatalf("unexpected prediction %s", pred)
	}
	if srv.disease.calls != 0 {
		t.Fatalf("expected no predictor calls, got %d", srv.disease.calls)
	}
}

func TestPredictDiseaseAPIMissingImage(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("other", "value")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/predict_disease", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := srv.do(req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != "No image file provided" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestPredictDiseaseAPIEmptyFilename(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	body, contentType := buildMultipartBody(t, "", "application/octet-stream", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/predict_disease", body)
	req.Header.Set("Content-Type", contentType)
	resp := srv.do(req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != "No image selected" {
		t.Fatalf("unexpected error %v", got)
	}
	assertUploadsEmpty(t, srv.uploads)
}

func TestPredictionFailures(t *testing.T) {
	cases := []struct {
		name        string
		path        string
		pipelineErr error
		diseaseErr  error
		cropErr     error
		status      int
		message     string
		keepsUpload bool
	}{
		{
			name:        "undecodable image on api",
			path:        "/api/predict_disease",
			pipelineErr: &prediction.TransformError{Stage: "decode image", Err: errors.New("unknown format")},
			status:      http.StatusInternalServerError,
			message:     "decode image: unknown format",
		},
		{
			name:       "predictor failure on api",
			path:       "/api/predict_disease",
			diseaseErr: errors.New("session closed"),
			status:     http.StatusInternalServerError,
			message:    "session closed",
		},
		{
			name:        "undecodable image on page",
			path:        "/upload/",
			pipelineErr: &prediction.TransformError{Stage: "decode image", Err: errors.New("unknown format")},
			status:      http.StatusBadRequest,
			message:     "decode image: unknown format",
			keepsUpload: true,
		},
		{
			name:    "crop predictor failure on api",
			path:    "/api/predict_crop",
			cropErr: errors.New("session closed"),
			status:  http.StatusBadRequest,
			message: "session closed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{withDisease: true})
			srv.pipeline.err = tc.pipelineErr
			srv.disease.err = tc.diseaseErr
			srv.crop.err = tc.cropErr

			var req *http.Request
			if tc.path == "/api/predict_crop" {
				req = jsonRequest(tc.path,
					`{"Nitrogen":90,"Phosphorus":42,"Potassium":43,"Temperature":20.8,"Humidity":82,"pH":6.5,"Rainfall":202.9}`)
			} else {
				body, contentType := buildMultipartBody(t, "leaf.png", "image/png", []byte("not-a-png"))
				req = httptest.NewRequest(http.MethodPost, tc.path, body)
				req.Header.Set("Content-Type", contentType)
			}
			resp := srv.do(req)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d (%s)", tc.status, resp.Code, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), tc.message) {
				t.Fatalf("expected %q in response, got %s", tc.message, resp.Body.String())
			}
			if strings.HasPrefix(tc.path, "/api/") {
				if _, ok := decodeBody(t, resp)["prediction"]; ok {
					t.Fatalf("expected no partial result")
				}
			}
			if tc.path == "/api/predict_disease" {
				assertUploadsEmpty(t, srv.uploads)
			}
			if tc.keepsUpload {
				entries, err := os.ReadDir(srv.uploads.Dir())
				if err != nil || len(entries) != 1 {
					t.Fatalf("expected stored upload, got %d (%v)", len(entries), err)
				}
			}
		})
	}
}

func TestPredictDiseaseRejectsLargeUpload(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true, maxUpload: 1024})

	body, contentType := buildMultipartBody(t, "leaf.png", "image/png", bytes.Repeat([]byte("a"), 1025))
	req := httptest.NewRequest(http.MethodPost, "/api/predict_disease", body)
	req.Header.Set("Content-Type", contentType)
	resp := srv.do(req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if srv.disease.calls != 0 {
		t.Fatalf("expected no predictor calls")
	}
}

func TestUploadPageKeepsImageAndRendersDiagnosis(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})
	srv.disease.out.Probabilities = []float32{0.9, 0.1}

	body, contentType := buildMultipartBody(t, "leaf.png", "image/png", []byte("\x89PNG\r\n\x1a\nrest"))
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	resp := srv.do(req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	page := resp.Body.String()
	if !strings.Contains(page, "Apple scab") || !strings.Contains(page, "Fungicide") {
		t.Fatalf("expected diagnosis in page, got %s", page)
	}

	entries, err := os.ReadDir(srv.uploads.Dir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one stored upload, got %d (%v)", len(entries), err)
	}
	name := entries[0].Name()
	if !strings.Contains(page, "/uploadimages/"+name) {
		t.Fatalf("expected image path in page")
	}

	img := srv.do(httptest.NewRequest(http.MethodGet, "/uploadimages/"+name, nil))
	if img.Code != http.StatusOK || img.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected stored png, got %d %q", img.Code, img.Header().Get("Content-Type"))
	}
}

func TestUploadedImageNotFound(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(httptest.NewRequest(http.MethodGet, "/uploadimages/missing.png", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestHealthReportsModelStatus(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: false})

	resp := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	models, _ := decodeBody(t, resp)["models"].(map[string]any)
	if models["crop"] != "ready" || models["disease"] != "unavailable" {
		t.Fatalf("unexpected model status %v", models)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true})

	resp := srv.do(httptest.NewRequest(http.MethodOptions, "/api/predict_crop", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard origin")
	}
}

func TestMarketPrices(t *testing.T) {
	query := "/api/market-prices?commodity=Onion&state=Maharashtra&district=Nashik&market=Lasalgaon"

	t.Run("missing param", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{market: stubMarket{}})
		resp := srv.do(httptest.NewRequest(http.MethodGet, "/api/market-prices?commodity=Onion", nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})
		resp := srv.do(httptest.NewRequest(http.MethodGet, query, nil))
		if resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.Code)
		}
	})

	t.Run("record", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{market: stubMarket{}})
		resp := srv.do(httptest.NewRequest(http.MethodGet, query, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
		}
		record, _ := decodeBody(t, resp)["record"].(map[string]any)
		if record["commodity"] != "Onion" || record["price"] != 1850.0 {
			t.Fatalf("unexpected record %v", record)
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{market: stubMarket{err: errors.New("quota exceeded")}})
		resp := srv.do(httptest.NewRequest(http.MethodGet, query, nil))
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
		}
	})
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, serverOptions{withDisease: true, adminAuth: auth.JWTMiddleware(testJWTSecret, "", auth.ScopePredictionsRead)})

	resp := srv.do(httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "ops", auth.ScopePredictionsRead))
	resp = srv.do(req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d without audit, got %d", http.StatusServiceUnavailable, resp.Code)
	}
}

func assertUploadsEmpty(t *testing.T, uploads *storage.UploadStore) {
	t.Helper()
	entries, err := os.ReadDir(uploads.Dir())
	if err != nil {
		t.Fatalf("failed to list uploads: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected uploads to be cleaned up, found %d", len(entries))
	}
}

func buildMultipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="img"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject, scope string) string {
	t.Helper()

	claims := auth.Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
