package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	"parts-tracker/pkg/customvalidator"
	"parts-tracker/pkg/database"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/filestorage"
	"parts-tracker/pkg/utils"
	"parts-tracker/pkg/websocket"
)

const (
	testAPIKey  = "test-key"
	testWipeKey = "wipe-me"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

type partBody struct {
	ID               int64  `json:"id"`
	PartID           string `json:"partId"`
	Category         string `json:"category"`
	Status           string `json:"status"`
	Assigned         string `json:"assigned"`
	File             string `json:"file"`
	HasModel         bool   `json:"hasModel"`
	ConversionStatus string `json:"conversionStatus"`
}

// PartsAPITestSuite drives the full HTTP stack against an in-memory SQLite
// database, local file storage and a fake converter.
type PartsAPITestSuite struct {
	suite.Suite
	Echo   *echo.Echo
	DB     *database.DB
	Bus    *eventbus.Bus
	cancel context.CancelFunc
}

func (suite *PartsAPITestSuite) SetupTest() {
	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	nopLogger := zap.NewNop()

	name := strings.ReplaceAll(suite.T().Name(), "/", "_")
	db, err := database.OpenAndMigrate(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nopLogger)
	suite.Require().NoError(err)
	suite.DB = db

	storage, err := filestorage.NewLocalFileStorage(suite.T().TempDir())
	suite.Require().NoError(err)

	cfg, err := config.Load("")
	suite.Require().NoError(err)
	cfg.Server.BasePath = "/api"
	cfg.Auth = config.AuthConfig{APIKey: testAPIKey, WipeKey: testWipeKey}
	cfg.JWT.SecretKey = "link-secret"
	cfg.Conversion.Mode = config.ConversionModeSync

	fake := converter.Func(func(ctx context.Context, stepPath, outPath string) error {
		return os.WriteFile(outPath, []byte("glTF-binary"), 0o644)
	})

	hub := websocket.NewHub(nopLogger)
	go hub.Run(ctx)
	suite.Bus = eventbus.New(nopLogger)

	e := echo.New()
	v, err := customvalidator.New()
	suite.Require().NoError(err)
	e.Validator = v
	e.HTTPErrorHandler = utils.HTTPErrorHandler(nopLogger)

	InitRouter(e, Infrastructure{
		DB:        db,
		Storage:   storage,
		Converter: fake,
		Bus:       suite.Bus,
		Hub:       hub,
	}, &Loggers{Main: nopLogger, Auth: nopLogger, Parts: nopLogger, Files: nopLogger}, cfg)
	suite.Echo = e
}

func (suite *PartsAPITestSuite) TearDownTest() {
	suite.Bus.Close()
	suite.cancel()
	suite.DB.Close()
}

func (suite *PartsAPITestSuite) request(method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	suite.Echo.ServeHTTP(rec, req)
	return rec
}

func (suite *PartsAPITestSuite) authed(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return suite.request(method, target, r, map[string]string{"X-API-Key": testAPIKey})
}

func (suite *PartsAPITestSuite) decode(rec *httptest.ResponseRecorder, dest interface{}) envelope {
	var env envelope
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dest != nil {
		suite.Require().NoError(json.Unmarshal(env.Body, dest))
	}
	return env
}

func (suite *PartsAPITestSuite) createPart(partID, partType string) partBody {
	rec := suite.authed(http.MethodPost, "/api/parts",
		fmt.Sprintf(`{"partId":%q,"type":%q,"name":"Bracket %s","subsystem":"Drive","material":"Aluminum"}`, partID, partType, partID))
	suite.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var part partBody
	suite.decode(rec, &part)
	return part
}

func (suite *PartsAPITestSuite) uploadFile(id int64, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	suite.Require().NoError(err)
	_, err = fw.Write(content)
	suite.Require().NoError(err)
	suite.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/parts/%d/upload", id), &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	suite.Echo.ServeHTTP(rec, req)
	return rec
}

func (suite *PartsAPITestSuite) TestHealthIsPublic() {
	rec := suite.request(http.MethodGet, "/api/health", nil, nil)
	suite.Equal(http.StatusOK, rec.Code)
}

func (suite *PartsAPITestSuite) TestRequiresAPIKey() {
	rec := suite.request(http.MethodGet, "/api/parts", nil, nil)
	suite.Equal(http.StatusUnauthorized, rec.Code)

	rec = suite.request(http.MethodGet, "/api/parts", nil, map[string]string{"X-API-Key": "wrong"})
	suite.Equal(http.StatusUnauthorized, rec.Code)

	rec = suite.request(http.MethodGet, "/api/parts?api_key="+testAPIKey, nil, nil)
	suite.Equal(http.StatusOK, rec.Code)

	rec = suite.request(http.MethodGet, "/api/parts", nil, map[string]string{"Authorization": "Bearer " + testAPIKey})
	suite.Equal(http.StatusOK, rec.Code)
}

func (suite *PartsAPITestSuite) TestCNCPartLifecycle() {
	part := suite.createPart("CNC-001", "cnc")
	suite.Equal("review", part.Category)
	suite.Equal("Pending", part.Status)

	base := fmt.Sprintf("/api/parts/%d", part.ID)

	rec := suite.authed(http.MethodPost, base+"/approve", `{"category":"hand"}`)
	suite.Equal(http.StatusConflict, rec.Code, "cnc parts cannot be approved into hand")

	rec = suite.authed(http.MethodPost, base+"/approve", `{"category":"cnc"}`)
	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	suite.decode(rec, &part)
	suite.Equal("cnc", part.Category)
	suite.Equal("Reviewed", part.Status)

	rec = suite.authed(http.MethodPost, base+"/assign", `{"assigned":"Ana"}`)
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.decode(rec, &part)
	suite.Equal("In Progress", part.Status)
	suite.Equal("Ana", part.Assigned)

	rec = suite.authed(http.MethodPost, base+"/complete", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.decode(rec, &part)
	suite.Equal("completed", part.Category)
	suite.Equal("Completed", part.Status)

	rec = suite.authed(http.MethodPost, base+"/revert", `{"category":"hand"}`)
	suite.Equal(http.StatusConflict, rec.Code)

	rec = suite.authed(http.MethodPost, base+"/revert", `{"category":"cnc"}`)
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.decode(rec, &part)
	suite.Equal("cnc", part.Category)
	suite.Equal("In Progress", part.Status)

	rec = suite.authed(http.MethodGet, "/api/parts/leaderboard", "")
	suite.Equal(http.StatusOK, rec.Code)
}

func (suite *PartsAPITestSuite) TestCreateValidation() {
	rec := suite.authed(http.MethodPost, "/api/parts", `{"partId":"X-1","subsystem":"Drive","material":"Steel"}`)
	suite.Equal(http.StatusBadRequest, rec.Code)

	rec = suite.authed(http.MethodPost, "/api/parts", `{"partId":"X-1","type":"laser","subsystem":"Drive","material":"Steel"}`)
	suite.Equal(http.StatusBadRequest, rec.Code)

	suite.createPart("X-1", "misc")
	rec = suite.authed(http.MethodPost, "/api/parts", `{"partId":"X-1","type":"misc","subsystem":"Drive","material":"Steel"}`)
	suite.Equal(http.StatusConflict, rec.Code)

	rec = suite.authed(http.MethodGet, "/api/parts/abc", "")
	suite.Equal(http.StatusBadRequest, rec.Code)

	rec = suite.authed(http.MethodGet, "/api/parts/999", "")
	suite.Equal(http.StatusNotFound, rec.Code)
}

func (suite *PartsAPITestSuite) TestListSearchAndCategories() {
	suite.createPart("A-1", "cnc")
	suite.createPart("B-2", "hand")
	suite.createPart("C-3", "misc")

	rec := suite.authed(http.MethodGet, "/api/parts?search=b-2", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		List       []partBody `json:"list"`
		Pagination struct {
			TotalCount int `json:"total_count"`
		} `json:"pagination"`
	}
	suite.decode(rec, &list)
	suite.Require().Len(list.List, 1)
	suite.Equal("B-2", list.List[0].PartID)
	suite.Equal(1, list.Pagination.TotalCount)

	rec = suite.authed(http.MethodGet, "/api/parts/categories/review?sort_by=partId&sort_order=desc", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.decode(rec, &list)
	suite.Require().Len(list.List, 3)
	suite.Equal("C-3", list.List[0].PartID)

	rec = suite.authed(http.MethodGet, "/api/parts/categories/bogus", "")
	suite.Equal(http.StatusBadRequest, rec.Code)

	rec = suite.authed(http.MethodGet, "/api/parts/stats", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	var stats struct {
		Total      int            `json:"total"`
		ByCategory map[string]int `json:"byCategory"`
	}
	suite.decode(rec, &stats)
	suite.Equal(3, stats.Total)
	suite.Equal(3, stats.ByCategory["review"])
}

func (suite *PartsAPITestSuite) TestUploadConvertAndDownload() {
	part := suite.createPart("S-1", "cnc")

	rec := suite.uploadFile(part.ID, "bracket.exe", []byte("MZ"))
	suite.Equal(http.StatusBadRequest, rec.Code)

	rec = suite.uploadFile(part.ID, "bracket.step", []byte("ISO-10303-21;\nHEADER;\nENDSEC;\n"))
	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	suite.decode(rec, &part)
	suite.Equal("bracket.step", part.File)
	suite.Equal("ready", part.ConversionStatus)
	suite.True(part.HasModel)

	modelURL := fmt.Sprintf("/api/parts/%d/model", part.ID)
	rec = suite.request(http.MethodGet, modelURL, nil, nil)
	suite.Equal(http.StatusUnauthorized, rec.Code)

	rec = suite.authed(http.MethodPost, "/api/parts/auth/token", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	var token struct {
		Token string `json:"token"`
	}
	suite.decode(rec, &token)
	suite.Require().NotEmpty(token.Token)

	rec = suite.request(http.MethodGet, modelURL+"?token="+token.Token, nil, nil)
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.Equal("glTF-binary", rec.Body.String())
	suite.Equal("model/gltf-binary", rec.Header().Get(echo.HeaderContentType))

	rec = suite.authed(http.MethodGet, fmt.Sprintf("/api/parts/%d/download", part.ID), "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.Contains(rec.Header().Get(echo.HeaderContentDisposition), "attachment")
	suite.Contains(rec.Body.String(), "ISO-10303-21")

	// Upload on a link token is not allowed.
	rec = suite.request(http.MethodPost, fmt.Sprintf("/api/parts/%d/upload?token=%s", part.ID, token.Token), nil, nil)
	suite.Equal(http.StatusUnauthorized, rec.Code)

	// A rejected replacement keeps the stored file and model.
	rec = suite.uploadFile(part.ID, "bracket.exe", []byte("MZ"))
	suite.Equal(http.StatusBadRequest, rec.Code)
	rec = suite.authed(http.MethodGet, fmt.Sprintf("/api/parts/%d", part.ID), "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	var after partBody
	suite.decode(rec, &after)
	suite.Equal("bracket.step", after.File)
	suite.True(after.HasModel)
	rec = suite.authed(http.MethodGet, fmt.Sprintf("/api/parts/%d/download", part.ID), "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.Contains(rec.Body.String(), "ISO-10303-21")
}

func (suite *PartsAPITestSuite) TestUploadWithKeyInFormField() {
	part := suite.createPart("F-1", "hand")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	suite.Require().NoError(w.WriteField("api_key", testAPIKey))
	fw, err := w.CreateFormFile("file", "drawing.pdf")
	suite.Require().NoError(err)
	_, err = fw.Write(append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 200<<10)...))
	suite.Require().NoError(err)
	suite.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/parts/%d/upload", part.ID), &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	suite.Echo.ServeHTTP(rec, req)

	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	suite.decode(rec, &part)
	suite.Equal("drawing.pdf", part.File)
}

func (suite *PartsAPITestSuite) TestPDFHasNoModel() {
	part := suite.createPart("P-1", "hand")
	rec := suite.uploadFile(part.ID, "drawing.pdf", []byte("%PDF-1.7\n%%EOF\n"))
	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	suite.decode(rec, &part)
	suite.Equal("none", part.ConversionStatus)

	rec = suite.authed(http.MethodGet, fmt.Sprintf("/api/parts/%d/model", part.ID), "")
	suite.Equal(http.StatusNotFound, rec.Code)

	rec = suite.authed(http.MethodGet, fmt.Sprintf("/api/parts/%d/file", part.ID), "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.Contains(rec.Header().Get(echo.HeaderContentDisposition), "inline")
	suite.Equal("application/pdf", rec.Header().Get(echo.HeaderContentType))
}

func (suite *PartsAPITestSuite) listPartIDs() []string {
	rec := suite.authed(http.MethodGet, "/api/parts?sort_by=partId", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		List []partBody `json:"list"`
	}
	suite.decode(rec, &list)
	ids := []string{}
	for _, p := range list.List {
		ids = append(ids, p.PartID)
	}
	return ids
}

func (suite *PartsAPITestSuite) TestWipe() {
	suite.createPart("W-1", "cnc")
	suite.createPart("W-2", "misc")

	rec := suite.authed(http.MethodPost, "/api/parts/wipe", `{}`)
	suite.Equal(http.StatusBadRequest, rec.Code)
	suite.Equal([]string{"W-1", "W-2"}, suite.listPartIDs())

	rec = suite.authed(http.MethodPost, "/api/parts/wipe", `{"confirmation":"nope"}`)
	suite.Equal(http.StatusUnauthorized, rec.Code)
	suite.Equal([]string{"W-1", "W-2"}, suite.listPartIDs())

	rec = suite.request(http.MethodPost, "/api/parts/wipe", nil, map[string]string{
		"X-API-Key":  testAPIKey,
		"X-Wipe-Key": testAPIKey,
	})
	suite.Equal(http.StatusUnauthorized, rec.Code, "the API key is not the wipe key")
	suite.Equal([]string{"W-1", "W-2"}, suite.listPartIDs())

	rec = suite.request(http.MethodPost, "/api/parts/wipe", nil, map[string]string{
		"X-API-Key":  testAPIKey,
		"X-Wipe-Key": testWipeKey,
	})
	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Deleted int `json:"deleted"`
	}
	suite.decode(rec, &result)
	suite.Equal(2, result.Deleted)
	suite.Empty(suite.listPartIDs())
}

func (suite *PartsAPITestSuite) TestExport() {
	suite.createPart("E-1", "cnc")

	rec := suite.authed(http.MethodGet, "/api/parts/export?format=csv", "")
	suite.Equal(http.StatusBadRequest, rec.Code)

	rec = suite.authed(http.MethodGet, "/api/parts/export?format=xlsx", "")
	suite.Require().Equal(http.StatusOK, rec.Code)
	suite.Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get(echo.HeaderContentType))
	suite.True(bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func (suite *PartsAPITestSuite) TestAuthCheck() {
	rec := suite.authed(http.MethodGet, "/api/parts/auth/check", "")
	suite.Equal(http.StatusOK, rec.Code)

	rec = suite.request(http.MethodGet, "/api/parts/auth/check", nil, map[string]string{"X-API-Key": "bad"})
	suite.Equal(http.StatusUnauthorized, rec.Code)
}

func TestPartsAPI(t *testing.T) {
	suite.Run(t, new(PartsAPITestSuite))
}
