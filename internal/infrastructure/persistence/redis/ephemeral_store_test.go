package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
)

// memHook answers GET, GETDEL, SET (plain and NX) and DEL from a map so the store
// can be exercised without a server.
type memHook struct {
	mu        sync.Mutex
	data      map[string][]byte
	getDelErr error
	commands  []string
}

func (h *memHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *memHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func (h *memHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		args := cmd.Args()
		key := fmt.Sprint(args[1])
		h.commands = append(h.commands, cmd.Name())

		switch c := cmd.(type) {
		case *goredis.StringCmd:
			if cmd.Name() == "getdel" && h.getDelErr != nil {
				c.SetErr(h.getDelErr)
				return h.getDelErr
			}
			v, ok := h.data[key]
			if !ok {
				c.SetErr(goredis.Nil)
				return goredis.Nil
			}
			if cmd.Name() == "getdel" {
				delete(h.data, key)
			}
			c.SetVal(string(v))
		case *goredis.BoolCmd:
			if _, ok := h.data[key]; ok {
				c.SetVal(false)
				return nil
			}
			h.data[key] = toBytes(args[2])
			c.SetVal(true)
		case *goredis.StatusCmd:
			h.data[key] = toBytes(args[2])
			c.SetVal("OK")
		case *goredis.IntCmd:
			var n int64
			if _, ok := h.data[key]; ok {
				delete(h.data, key)
				n = 1
			}
			c.SetVal(n)
		default:
			return fmt.Errorf("unexpected command %s", cmd.Name())
		}
		return nil
	}
}

func toBytes(v interface{}) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return []byte(fmt.Sprint(v))
}

func newHookedStore(t *testing.T, now time.Time) (*EphemeralStore, *memHook) {
	t.Helper()
	hook := &memHook{data: map[string][]byte{}}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(hook)
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewEphemeralStore(&Client{rdb: rdb})
	store.now = func() time.Time { return now }
	return store, hook
}

func storedDoc(t *testing.T, id string, expiresAt time.Time) []byte {
	t.Helper()
	raw, err := json.Marshal(entity.EphemeralDocument{ID: id, Filename: id + ".txt", FullText: "body", ExpiresAt: expiresAt})
	require.NoError(t, err)
	return raw
}

func TestEphemeralGetDropsExpiredKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, hook := newHookedStore(t, now)
	hook.data[ephemeralKey("old")] = storedDoc(t, "old", now.Add(-time.Minute))

	_, err := store.Get(ctx, "old")
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))
	assert.NotContains(t, hook.data, ephemeralKey("old"))
	assert.Contains(t, hook.commands, "getdel")

	_, err = store.Get(ctx, "old")
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
}

func TestEphemeralGetKeepsExpiredReportWhenDropFails(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, hook := newHookedStore(t, now)
	hook.data[ephemeralKey("old")] = storedDoc(t, "old", now.Add(-time.Minute))
	hook.getDelErr = errors.New("connection reset")

	_, err := store.Get(ctx, "old")
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))
	assert.Contains(t, hook.data, ephemeralKey("old"))
}

func TestDropExpiredRestoresReplacedDocument(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, hook := newHookedStore(t, now)
	fresh := storedDoc(t, "reused", now.Add(time.Hour))
	hook.data[ephemeralKey("reused")] = fresh

	store.dropExpired(ctx, "reused")

	assert.Equal(t, fresh, hook.data[ephemeralKey("reused")])
	assert.Equal(t, []string{"getdel", "set"}, hook.commands)
}

func TestEphemeralPutGetDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, _ := newHookedStore(t, now)

	require.NoError(t, store.Put(ctx, &entity.EphemeralDocument{ID: "d1", Filename: "a.txt", FullText: "hello", ExpiresAt: now.Add(time.Hour)}))

	doc, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.FullText)

	ok, err := store.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}
