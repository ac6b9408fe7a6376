package batch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remix-sync/internal/remix"
)

type fakeAPI struct {
	update    remix.Result
	save      remix.Result
	target    string
	targetErr error

	sent  [][][2]string
	saved []string
}

func (f *fakeAPI) UpdateTextures(_ context.Context, pairs [][2]string, _ bool) remix.Result {
	f.sent = append(f.sent, pairs)
	return f.update
}

func (f *fakeAPI) EditTarget(context.Context) (string, error) { return f.target, f.targetErr }

func (f *fakeAPI) SaveLayer(_ context.Context, id string) remix.Result {
	f.saved = append(f.saved, id)
	return f.save
}

var ok200 = remix.Result{Success: true, StatusCode: 200}

func TestCommitAllRelativeMakesNoRequest(t *testing.T) {
	api := &fakeAPI{update: ok200}
	res := New(api).Commit(context.Background(), []Binding{
		{Attribute: "/M/Shader.inputs:diffuse_texture", File: "rel/a.dds"},
		{Attribute: "/M/Shader.inputs:normalmap_texture", File: ""},
	})
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrNoValidBindings)
	assert.Len(t, res.Skipped, 2)
	assert.Empty(t, api.sent)
}

func TestCommitSkipsRelativeAndSendsRest(t *testing.T) {
	api := &fakeAPI{update: ok200}
	res := New(api).Commit(context.Background(), []Binding{
		{Attribute: "/M/Shader.inputs:diffuse_texture", File: "/out/a.a.rtex.dds"},
		{Attribute: "/M/Shader.inputs:normalmap_texture", File: "n.dds"},
		{Attribute: `\M\Shader.inputs:height_texture`, File: `C:\out\h.h.rtex.dds`},
	})
	require.True(t, res.OK())
	assert.Len(t, res.Skipped, 1)
	require.Len(t, api.sent, 1)
	assert.Equal(t, "/M/Shader.inputs:diffuse_texture", api.sent[0][0][0])
	assert.Equal(t, "/M/Shader.inputs:height_texture", api.sent[0][1][0])
	assert.Len(t, res.Committed, 2)
}

func TestCommit422IsMappingRejection(t *testing.T) {
	api := &fakeAPI{update: remix.Result{StatusCode: 422, Error: "API error (status 422): no such attribute"}}
	res := New(api).Commit(context.Background(), []Binding{{Attribute: "/M.inputs:x", File: "/a.dds"}})
	assert.ErrorIs(t, res.Err, ErrMappingRejected)
	assert.Empty(t, res.Committed)

	api.update = remix.Result{StatusCode: 500, Error: "API error (status 500): boom"}
	res = New(api).Commit(context.Background(), []Binding{{Attribute: "/M.inputs:x", File: "/a.dds"}})
	assert.False(t, errors.Is(res.Err, ErrMappingRejected))
	var apiErr *remix.Error
	require.ErrorAs(t, res.Err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestSaveEditTarget(t *testing.T) {
	api := &fakeAPI{target: "C:/proj/mod.usda", save: ok200}
	id, err := New(api).SaveEditTarget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C:/proj/mod.usda", id)
	assert.Equal(t, []string{"C:/proj/mod.usda"}, api.saved)

	api = &fakeAPI{targetErr: errors.New("no layer")}
	_, err = New(api).SaveEditTarget(context.Background())
	assert.Error(t, err)
	assert.Empty(t, api.saved)

	api = &fakeAPI{target: "/l.usda", save: remix.Result{StatusCode: 500, Error: "x"}}
	_, err = New(api).SaveEditTarget(context.Background())
	assert.Error(t, err)
}

// Saving the same layer twice against a service that always accepts is
// fine both times, through the real client.
func TestSaveLayerTwiceAgainstService(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.EscapedPath() == "/stagecraft/layers//abs/mod.usda/save" {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := remix.New(remix.Options{BaseURL: srv.URL, Prefix: "/stagecraft"})
	u := New(c)
	require.NoError(t, u.SaveLayer(context.Background(), "/abs/mod.usda"))
	require.NoError(t, u.SaveLayer(context.Background(), "/abs/mod.usda"))
	assert.EqualValues(t, 2, hits.Load())
}
