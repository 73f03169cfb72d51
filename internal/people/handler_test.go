package people

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type personJSON struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Likes int      `json:"likes"`
	Tags  []string `json:"tags"`
}

func newTestAPI(t *testing.T) (*gin.Engine, *Collection) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := odm.NewConnectionManager(memstore.New().Dialer(), "people_test")
	coll := New(conn)
	require.NoError(t, coll.EnsureIndexes(context.Background()))
	g := gin.New()
	RegisterRoutes(g, coll)
	return g, coll
}

func do(t *testing.T, g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decodePerson(t *testing.T, w *httptest.ResponseRecorder) personJSON {
	t.Helper()
	var p personJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestPeopleHandler_Lifecycle(t *testing.T) {
	g, _ := newTestAPI(t)

	w := do(t, g, http.MethodPost, "/api/people", `{"name":"John","email":" John@Example.com "}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodePerson(t, w)
	require.Len(t, created.ID, 24)
	require.Equal(t, "john@example.com", created.Email)
	require.Equal(t, []string{}, created.Tags)

	w = do(t, g, http.MethodPost, "/api/people/"+created.ID+"/like", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, decodePerson(t, w).Likes)

	w = do(t, g, http.MethodPost, "/api/people/"+created.ID+"/tags", `{"tags":["hot","trendy","hot"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"hot", "trendy"}, decodePerson(t, w).Tags)

	w = do(t, g, http.MethodGet, "/api/people/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodePerson(t, w)
	require.Equal(t, 1, got.Likes)
	require.Equal(t, []string{"hot", "trendy"}, got.Tags)

	w = do(t, g, http.MethodDelete, "/api/people/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, g, http.MethodGet, "/api/people/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, g, http.MethodPost, "/api/people/"+created.ID+"/like", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPeopleHandler_CreateErrors(t *testing.T) {
	g, _ := newTestAPI(t)

	w := do(t, g, http.MethodPost, "/api/people", `{"email":"x@y.z"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), ErrNameRequired.Error())

	w = do(t, g, http.MethodPost, "/api/people", `{"name":"A","email":"nope"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, g, http.MethodPost, "/api/people", `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, g, http.MethodPost, "/api/people", `{"name":"A","email":"a@x.io"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, g, http.MethodPost, "/api/people", `{"name":"B","email":"A@x.io"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	// people without email do not collide on the sparse unique index
	w = do(t, g, http.MethodPost, "/api/people", `{"name":"C"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, g, http.MethodPost, "/api/people", `{"name":"D"}`)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestPeopleHandler_ListOrdersByPopularity(t *testing.T) {
	g, coll := newTestAPI(t)
	ctx := context.Background()
	for i, name := range []string{"ann", "bob", "cid"} {
		p, err := coll.Create(ctx, &Person{Name: name, Tags: []string{"all"}})
		require.NoError(t, err)
		_, err = p.Inc(ctx, "likes", i)
		require.NoError(t, err)
	}
	_, err := coll.Create(ctx, &Person{Name: "dee"})
	require.NoError(t, err)

	w := do(t, g, http.MethodGet, "/api/people?tag=all&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []personJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	require.Equal(t, "cid", list[0].Name)
	require.Equal(t, "bob", list[1].Name)

	w = do(t, g, http.MethodGet, "/api/people?tag=none", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	w = do(t, g, http.MethodGet, "/api/people?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeopleHandler_BadIDs(t *testing.T) {
	g, _ := newTestAPI(t)
	w := do(t, g, http.MethodGet, "/api/people/not-an-id", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, g, http.MethodGet, "/api/people/65f000000000000000000000", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, g, http.MethodPost, "/api/people/65f000000000000000000000/tags", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
