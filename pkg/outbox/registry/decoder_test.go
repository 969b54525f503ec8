package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

func TestDefaultDecoders(t *testing.T) {
	reg := DefaultDecoders()

	out, err := reg.Decode(enums.EventNotificationRequested, 1, json.RawMessage(`{"audience":"provider","category":"payment_received","title":"Paid"}`))
	require.NoError(t, err)
	notification, ok := out.(*payloads.NotificationRequestedEvent)
	require.True(t, ok)
	require.Equal(t, payloads.AudienceProvider, notification.Audience)
	require.Equal(t, "payment_received", notification.Category)

	_, err = reg.Decode(enums.EventWorkflowTriggered, 2, json.RawMessage(`{}`))
	require.Error(t, err)

	_, err = reg.Decode(enums.EventWorkflowTriggered, 1, json.RawMessage(`not-json`))
	require.Error(t, err)
}
