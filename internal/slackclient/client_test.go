package slackclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"goodnoodle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ClientTestSuite struct {
	suite.Suite
	server    *httptest.Server
	client    *Client
	mu        sync.Mutex
	calls     map[string]url.Values
	bodies    map[string][]byte
	responses map[string]string
}

func (suite *ClientTestSuite) SetupTest() {
	suite.calls = map[string]url.Values{}
	suite.bodies = map[string][]byte{}
	suite.responses = map[string]string{}
	suite.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		var raw []byte
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			raw, _ = io.ReadAll(r.Body)
		} else {
			_ = r.ParseForm()
		}
		suite.mu.Lock()
		suite.calls[method] = r.Form
		suite.bodies[method] = raw
		body, ok := suite.responses[method]
		suite.mu.Unlock()
		if !ok {
			body = `{"ok":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	suite.client = New(Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "https://example.test/slack/oauth_redirect",
		APIURL:       suite.server.URL + "/api/",
		HTTPClient:   &http.Client{Transport: rewriteTransport{target: suite.server.URL}},
	})
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *ClientTestSuite) call(method string) url.Values {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	return suite.calls[method]
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) TestAddReaction() {
	err := suite.client.AddReaction(context.Background(), "xoxb-1", "C1", "1.2", "thumbsup")
	require.NoError(suite.T(), err)

	form := suite.call("reactions.add")
	assert.Equal(suite.T(), "thumbsup", form.Get("name"))
	assert.Equal(suite.T(), "C1", form.Get("channel"))
	assert.Equal(suite.T(), "1.2", form.Get("timestamp"))
}

func (suite *ClientTestSuite) TestAddReaction_AlreadyReactedIsNotAnError() {
	suite.responses["reactions.add"] = `{"ok":false,"error":"already_reacted"}`
	assert.NoError(suite.T(), suite.client.AddReaction(context.Background(), "xoxb-1", "C1", "1.2", "eyes"))

	suite.responses["reactions.add"] = `{"ok":false,"error":"channel_not_found"}`
	assert.ErrorContains(suite.T(), suite.client.AddReaction(context.Background(), "xoxb-1", "C1", "1.2", "eyes"), "channel_not_found")
}

func (suite *ClientTestSuite) TestUserDisplayName() {
	suite.responses["users.profile.get"] = `{"ok":true,"profile":{"display_name":"ali","real_name":"Alice A"}}`
	name, err := suite.client.UserDisplayName(context.Background(), "xoxb-1", "UALICE00001")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "ali", name)
	assert.Equal(suite.T(), "UALICE00001", suite.call("users.profile.get").Get("user"))

	suite.responses["users.profile.get"] = `{"ok":true,"profile":{"display_name":"","real_name":"Alice A"}}`
	name, err = suite.client.UserDisplayName(context.Background(), "xoxb-1", "UALICE00001")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Alice A", name)

	suite.responses["users.profile.get"] = `{"ok":false,"error":"user_not_found"}`
	_, err = suite.client.UserDisplayName(context.Background(), "xoxb-1", "UALICE00001")
	assert.Error(suite.T(), err)
}

func (suite *ClientTestSuite) TestPublishHome() {
	suite.responses["views.publish"] = `{"ok":true,"view":{"id":"V1"}}`
	d := &models.Dashboard{Viewer: &models.User{SlackUserID: "UALICE00001"}, Marker: ":good-noodle:", Remaining: 5}

	require.NoError(suite.T(), suite.client.PublishHome(context.Background(), "xoxb-1", "UALICE00001", d))

	suite.mu.Lock()
	raw := suite.bodies["views.publish"]
	suite.mu.Unlock()
	var req struct {
		UserID string         `json:"user_id"`
		View   map[string]any `json:"view"`
	}
	require.NoError(suite.T(), json.Unmarshal(raw, &req))
	assert.Equal(suite.T(), "UALICE00001", req.UserID)
	assert.Equal(suite.T(), "home", req.View["type"])
}

func (suite *ClientTestSuite) TestBotUserID() {
	suite.responses["auth.test"] = `{"ok":true,"user_id":"UBOTUSER001","team_id":"T1"}`
	id, err := suite.client.BotUserID(context.Background(), "xoxb-1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "UBOTUSER001", id)
}

func (suite *ClientTestSuite) TestExchangeCode() {
	suite.responses["oauth.v2.access"] = `{
		"ok": true,
		"access_token": "xoxb-new",
		"token_type": "bot",
		"scope": "chat:write,reactions:write",
		"bot_user_id": "UBOTUSER001",
		"app_id": "A1",
		"team": {"id": "T1", "name": "Team"},
		"enterprise": {"id": "E1", "name": "Grid"},
		"is_enterprise_install": true,
		"authed_user": {"id": "UINSTALLER1"}
	}`

	inst, err := suite.client.ExchangeCode(context.Background(), "code-1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "E1", inst.EnterpriseID)
	assert.Equal(suite.T(), "T1", inst.TeamID)
	assert.True(suite.T(), inst.IsEnterpriseInstall)
	assert.Equal(suite.T(), "xoxb-new", inst.BotToken)
	assert.Equal(suite.T(), "UBOTUSER001", inst.BotUserID)
	assert.Equal(suite.T(), "UINSTALLER1", inst.InstallerUserID)
	assert.NotEmpty(suite.T(), inst.Payload)

	form := suite.call("oauth.v2.access")
	assert.Equal(suite.T(), "code-1", form.Get("code"))
}

func TestAuthorizeURL(t *testing.T) {
	c := New(Config{ClientID: "cid", RedirectURL: "https://example.test/cb"})
	u, err := url.Parse(c.AuthorizeURL("signed-state", []string{"chat:write", "reactions:write"}))
	require.NoError(t, err)
	assert.Equal(t, "slack.com", u.Host)
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "signed-state", u.Query().Get("state"))
	assert.Equal(t, "chat:write,reactions:write", u.Query().Get("scope"))
	assert.Equal(t, "https://example.test/cb", u.Query().Get("redirect_uri"))
}

// rewriteTransport sends every request to target, keeping the path.
type rewriteTransport struct {
	target string
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	u, err := url.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	r = r.Clone(r.Context())
	r.URL.Scheme = u.Scheme
	r.URL.Host = u.Host
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		r.URL.Path = "/api" + r.URL.Path
	}
	return http.DefaultTransport.RoundTrip(r)
}
