package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/pagination"
)

func TestParsePageParams(t *testing.T) {
	params, err := ParsePageParams(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=%20abc%20", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, params)

	params, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.DefaultLimit, params.Limit)

	_, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/?limit=0", nil))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/?cursor="+strings.Repeat("a", 300), nil))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
