package firestore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/billing/storetest"
	"github.com/warp/voice-bridge/store/firestore"
)

// Runs against the emulator: FIRESTORE_EMULATOR_HOST=localhost:8080
func TestStoreContract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storetest.Run(t, func(t *testing.T) billing.Store {
		// a fresh project per subtest keeps documents apart
		project := fmt.Sprintf("voicebridge-test-%d", time.Now().UnixNano())
		store, err := firestore.New(context.Background(), project)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}
