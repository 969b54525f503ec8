package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	require.Equal(t, "projects/hb-prod/topics/hb-notification-events", resourceName("hb-prod", "topics", " hb-notification-events "))
	require.Equal(t, "projects/other/subscriptions/x", resourceName("hb-prod", "subscriptions", "projects/other/subscriptions/x"))
	require.Equal(t, "", resourceName("", "topics", "hb-notification-events"))
	require.Equal(t, "", resourceName("hb-prod", "topics", ""))
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestSubscriptionNames(t *testing.T) {
	require.Equal(t, []string{"hb-notification-worker"}, subscriptionNames(config.PubSubConfig{NotificationSubscription: "hb-notification-worker"}))
	require.Empty(t, subscriptionNames(config.PubSubConfig{}))
}
