package push

import (
	"context"
	"errors"
	"testing"

	"github.com/bassista/go_pantry/internal/metrics"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Payload
	}{
		{"full", `{"title":"Milk","body":"Milk expires in 3 days"}`, Payload{"Milk", "Milk expires in 3 days"}},
		{"not json", `Milk expires`, Payload{DefaultTitle, DefaultBody}},
		{"empty", ``, Payload{DefaultTitle, DefaultBody}},
		{"missing body", `{"title":"Milk"}`, Payload{"Milk", DefaultBody}},
		{"missing title", `{"body":"Eggs expire in 3 days"}`, Payload{DefaultTitle, "Eggs expire in 3 days"}},
		{"blank fields", `{"title":"  ","body":""}`, Payload{DefaultTitle, DefaultBody}},
		{"wrong types", `{"title":5,"body":true}`, Payload{DefaultTitle, DefaultBody}},
		{"array", `["a","b"]`, Payload{DefaultTitle, DefaultBody}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodePayload([]byte(tt.data)))
		})
	}
}

func newPushHost(n runtime.Notifications) *runtime.Host {
	h := runtime.NewHost(context.Background(), nil, runtime.HostOptions{})
	h.OnPush(NewReceiver(n, Options{Renotify: true, Metrics: metrics.New()}).HandlePush)
	return h
}

func TestReceiver_ReplacesNotStacks(t *testing.T) {
	center := runtime.NewNotificationCenter()
	h := newPushHost(center)

	require.NoError(t, h.DispatchPush([]byte(`{"title":"Food Inventory","body":"Milk expires in 3 days"}`)))
	require.NoError(t, h.DispatchPush([]byte(`{"title":"Food Inventory","body":"Eggs, Butter expire in 3 days"}`)))

	visible, err := center.GetNotifications(context.Background(), DefaultTag)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Eggs, Butter expire in 3 days", visible[0].Body)
	assert.Equal(t, DefaultIcon, visible[0].Icon)
	assert.True(t, visible[0].Renotify)
	assert.Equal(t, map[string]any{"url": DefaultURL}, visible[0].Data)
	assert.Equal(t, 2, center.Alerts(), "renotify re-alerts on replacement")
}

func TestReceiver_MalformedPayloadShowsDefaults(t *testing.T) {
	center := runtime.NewNotificationCenter()
	h := newPushHost(center)

	require.NoError(t, h.DispatchPush([]byte(`{not json`)))

	visible, err := center.GetNotifications(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, DefaultTitle, visible[0].Title)
	assert.Equal(t, DefaultBody, visible[0].Body)
	assert.Equal(t, DefaultTag, visible[0].Tag)
}

func TestReceiver_DisplayFailureIsSwallowed(t *testing.T) {
	center := runtime.NewNotificationCenter()
	center.SetPermission(false)
	h := newPushHost(center)

	assert.NoError(t, h.DispatchPush([]byte(`{"title":"x","body":"y"}`)))
	visible, err := center.GetNotifications(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, visible)
}

type mockClients struct{ mock.Mock }

func (m *mockClients) MatchAll(ctx context.Context, opts runtime.MatchOptions) ([]runtime.Client, error) {
	args := m.Called(ctx, opts)
	clients, _ := args.Get(0).([]runtime.Client)
	return clients, args.Error(1)
}

func (m *mockClients) OpenWindow(ctx context.Context, url string) (runtime.Client, error) {
	args := m.Called(ctx, url)
	c, _ := args.Get(0).(runtime.Client)
	return c, args.Error(1)
}

func (m *mockClients) Claim(ctx context.Context, version string) error {
	return m.Called(ctx, version).Error(0)
}

type mockClient struct {
	mock.Mock
	id, url string
}

func (c *mockClient) ID() string               { return c.id }
func (c *mockClient) URL() string              { return c.url }
func (c *mockClient) Type() runtime.ClientType { return runtime.ClientTypeWindow }
func (c *mockClient) Controller() string       { return "" }

func (c *mockClient) Focus(ctx context.Context) error {
	return c.Called(ctx).Error(0)
}

var windowsIncludingUncontrolled = runtime.MatchOptions{Type: runtime.ClientTypeWindow, IncludeUncontrolled: true}

func clickHost(clients runtime.Clients, center *runtime.NotificationCenter) *runtime.Host {
	h := runtime.NewHost(context.Background(), nil, runtime.HostOptions{})
	h.OnNotificationClick(NewClickRouter(clients, center, DefaultURL, nil).HandleNotificationClick)
	return h
}

func TestClick_FocusesExistingDashboardWindow(t *testing.T) {
	settings := &mockClient{id: "w1", url: "http://app.local/settings"}
	dashboard := &mockClient{id: "w2", url: "http://app.local/dashboard?tab=expiring"}
	second := &mockClient{id: "w3", url: "http://app.local/dashboard"}
	dashboard.On("Focus", mock.Anything).Return(nil).Once()

	clients := &mockClients{}
	clients.On("MatchAll", mock.Anything, windowsIncludingUncontrolled).
		Return([]runtime.Client{settings, dashboard, second}, nil)

	center := runtime.NewNotificationCenter()
	n, err := center.ShowNotification(context.Background(), DefaultTitle, runtime.NotificationOptions{Tag: DefaultTag, Data: map[string]any{"url": "/dashboard"}})
	require.NoError(t, err)

	require.NoError(t, clickHost(clients, center).DispatchNotificationClick(n, ""))

	dashboard.AssertExpectations(t)
	second.AssertNotCalled(t, "Focus", mock.Anything)
	clients.AssertNotCalled(t, "OpenWindow", mock.Anything, mock.Anything)
	_, err = center.Get(n.ID)
	assert.ErrorIs(t, err, runtime.ErrNotificationNotFound, "clicked notification is closed")
}

func TestClick_OpensNewWindowWhenNoneMatches(t *testing.T) {
	opened := &mockClient{id: "new", url: "http://app.local/dashboard"}
	clients := &mockClients{}
	clients.On("MatchAll", mock.Anything, windowsIncludingUncontrolled).
		Return([]runtime.Client{&mockClient{id: "w1", url: "http://app.local/settings"}}, nil)
	clients.On("OpenWindow", mock.Anything, "/dashboard").Return(opened, nil).Once()

	require.NoError(t, clickHost(clients, runtime.NewNotificationCenter()).DispatchNotificationClick(runtime.Notification{}, ""))

	clients.AssertExpectations(t)
	clients.AssertNumberOfCalls(t, "OpenWindow", 1)
}

func TestClick_EnumerationFailureOpensWindow(t *testing.T) {
	clients := &mockClients{}
	clients.On("MatchAll", mock.Anything, windowsIncludingUncontrolled).Return(nil, errors.New("registry unavailable"))
	clients.On("OpenWindow", mock.Anything, "/pantry").Return(&mockClient{id: "new"}, nil).Once()

	n := runtime.Notification{Data: map[string]any{"url": "/pantry"}}
	require.NoError(t, clickHost(clients, runtime.NewNotificationCenter()).DispatchNotificationClick(n, ""))
	clients.AssertExpectations(t)
}

func TestClick_FocusFailureOpensWindow(t *testing.T) {
	dashboard := &mockClient{id: "w1", url: "http://app.local/dashboard"}
	dashboard.On("Focus", mock.Anything).Return(errors.New("window gone"))
	clients := &mockClients{}
	clients.On("MatchAll", mock.Anything, windowsIncludingUncontrolled).Return([]runtime.Client{dashboard}, nil)
	clients.On("OpenWindow", mock.Anything, "/dashboard").Return(&mockClient{id: "new"}, nil).Once()

	require.NoError(t, clickHost(clients, runtime.NewNotificationCenter()).DispatchNotificationClick(runtime.Notification{}, ""))
	clients.AssertExpectations(t)
}

func TestClick_WithMemoryClients(t *testing.T) {
	clients := runtime.NewMemoryClients(nil)
	clients.Register(runtime.ClientInfo{URL: "http://app.local/dashboard"})
	h := clickHost(clients, runtime.NewNotificationCenter())

	require.NoError(t, h.DispatchNotificationClick(runtime.Notification{Data: map[string]any{"url": "/dashboard"}}, ""))
	list := clients.List()
	require.Len(t, list, 1, "no duplicate window is opened")
	assert.True(t, list[0].Focused)

	require.NoError(t, clients.Remove(list[0].ID))
	require.NoError(t, h.DispatchNotificationClick(runtime.Notification{}, ""))
	list = clients.List()
	require.Len(t, list, 1)
	assert.Equal(t, "/dashboard", list[0].URL)
}

func TestTargetURL(t *testing.T) {
	assert.Equal(t, "/pantry", TargetURL(map[string]any{"url": "/pantry"}, DefaultURL))
	assert.Equal(t, DefaultURL, TargetURL(nil, DefaultURL))
	assert.Equal(t, DefaultURL, TargetURL(map[string]any{"url": 3}, DefaultURL))
	assert.Equal(t, DefaultURL, TargetURL(map[string]any{"url": ""}, DefaultURL))
}
