package localstore

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewsPath = "/api/v1/Tenants/tenant/Namespaces/" + testNamespace + "/DataViews/"

func fetchToken(t *testing.T, server *httptest.Server, id, secret string) (*http.Response, tokenResponse) {
	t.Helper()
	form := url.Values{"grant_type": {"client_credentials"}, "client_id": {id}, "client_secret": {secret}}
	res, err := http.PostForm(server.URL+"/identity/connect/token", form)
	require.NoError(t, err)
	defer res.Body.Close()
	var body tokenResponse
	if res.StatusCode == http.StatusOK {
		require.NoError(t, jsoncompat.NewDecoder(res.Body).Decode(&body))
	}
	return res, body
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), "tenant", map[string]string{"client": "pw"})
	signed, err := issuer.Issue("client")
	require.NoError(t, err)
	claims, err := issuer.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "client", claims["sub"])
	assert.Equal(t, "tenant", claims["tid"])
	assert.NotEmpty(t, claims["jti"])

	other := NewTokenIssuer([]byte("other"), "tenant", nil)
	_, err = other.Validate(signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHandlerRequiresToken(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	viewWithQuery(t, store)
	issuer := NewTokenIssuer([]byte("secret"), "tenant", map[string]string{"client": "pw"})
	server := httptest.NewServer(NewHandler(store, issuer))
	defer server.Close()

	res, err := http.Get(server.URL + viewsPath + "dv")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = fetchToken(t, server, "client", "wrong")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, token := fetchToken(t, server, "client", "pw")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	req, err := http.NewRequest(http.MethodGet, server.URL+viewsPath+"dv", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	view := &types.DataView{}
	require.NoError(t, jsoncompat.NewDecoder(res.Body).Decode(view))
	assert.Equal(t, "dvTank*", view.Queries[0].Value)
}

func TestHandlerMapsErrors(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	viewWithQuery(t, store)
	server := httptest.NewServer(NewHandler(store, nil))
	defer server.Close()

	res, err := http.Get(server.URL + viewsPath + "missing")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Post(server.URL+viewsPath+"dv", "application/json", strings.NewReader(`{"Id":"dv","Queries":[]}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, err = http.Post(server.URL+viewsPath+"other", "application/json", strings.NewReader(`{"Id":"dv"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestInterpolatedPaging(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	includeAll(t, store, viewWithQuery(t, store))
	server := httptest.NewServer(NewHandler(store, nil))
	defer server.Close()

	req := types.NewInterpolationRequest(sample.Start, sample.End, 20*time.Minute)
	req.Count = 3
	values, err := req.Values()
	require.NoError(t, err)
	assert.Equal(t, "00:20:00", values.Get("interval"))

	res, err := http.Get(fmt.Sprintf("%s%sdv/Data/Interpolated?%s", server.URL, viewsPath, values.Encode()))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var page types.Table
	require.NoError(t, jsoncompat.NewDecoder(res.Body).Decode(&page))
	assert.Len(t, page, 3)

	link := res.Header.Get("Link")
	require.Contains(t, link, `rel="next"`)
	next := strings.TrimPrefix(strings.SplitN(link, ">", 2)[0], "<")
	assert.Contains(t, next, "continuationToken=3")

	res2, err := http.Get(next)
	require.NoError(t, err)
	defer res2.Body.Close()
	var rest types.Table
	require.NoError(t, jsoncompat.NewDecoder(res2.Body).Decode(&rest))
	assert.Len(t, rest, 1)
	assert.Empty(t, res2.Header.Get("Link"))
}
