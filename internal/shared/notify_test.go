package shared_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobilsoft/backoffice/internal/shared"
)

func TestInboxDropsOldest(t *testing.T) {
	inbox := shared.NewInbox(2)
	for i := 1; i <= 3; i++ {
		inbox.Notify(shared.Notification{Level: shared.LevelInfo, Message: fmt.Sprint(i)})
	}
	assert.Equal(t, 2, inbox.Len())
	assert.Equal(t, []shared.Notification{
		{Level: shared.LevelInfo, Message: "2"},
		{Level: shared.LevelInfo, Message: "3"},
	}, inbox.Drain())
	assert.Zero(t, inbox.Len())
	assert.Empty(t, inbox.Drain())
}
