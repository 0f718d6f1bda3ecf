package tradestore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testTradeID = "3b1e9f2a-9c1e-4b3a-8f3a-1e2d3c4b5a69"

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file": NewFileStore(t.TempDir()),
		"mem":  NewMemStore(),
	}
}

func TestWriteOnceDiscipline(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			has, err := store.Has(testTradeID, "1_offer")
			require.NoError(t, err)
			require.False(t, has)

			require.NoError(t, store.Put(testTradeID, "1_offer", []byte("payload")))

			has, err = store.Has(testTradeID, "1_offer")
			require.NoError(t, err)
			require.True(t, has)

			err = store.Put(testTradeID, "1_offer", []byte("replay"))
			require.ErrorIs(t, err, ErrSlotExists)

			got, err := store.Get(testTradeID, "1_offer")
			require.NoError(t, err)
			require.Equal(t, []byte("payload"), got)
		})
	}
}

func TestGetMissingSlot(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(testTradeID, "2_secret")
			require.ErrorIs(t, err, ErrSlotMissing)
		})
	}
}

func TestRejectsMalformedTradeIDAndSlot(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok := store.(*MemStore); ok {
				// MemStore has no filesystem path to traverse; the
				// traversal guard lives in FileStore only.
				return
			}
			err := store.Put("../../etc", "1_offer", []byte("x"))
			require.Error(t, err)

			err = store.Put(testTradeID, "../escape", []byte("x"))
			require.Error(t, err)
		})
	}
}
