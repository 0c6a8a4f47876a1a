package eventlog

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/gorm"

	"deficore/core/events"
	"deficore/crypto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

func note(typ string, height uint64, actor crypto.Address, amount int64) events.Notification {
	return events.Notification{
		Type:   typ,
		Height: height,
		Actor:  actor,
		Amount: big.NewInt(amount),
		Extra:  map[string]string{"memo": typ},
	}
}

func TestAppendAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice, bob := addr(1), addr(2)

	require.NoError(t, store.Append(ctx, []events.Event{
		note("token.transfer", 5, alice, 10),
		note("lending.supplied", 6, bob, 20),
		note("token.transfer", 9, bob, 30),
	}))

	all, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Sequence)
	require.Equal(t, "token", all[0].Module)
	require.Equal(t, "10", all[0].Amount)
	require.Equal(t, alice.String(), all[0].Actor)
	require.JSONEq(t, `{"memo":"token.transfer"}`, all[0].Extra)

	transfers, err := store.Query(ctx, Filter{Type: "token.transfer"})
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	byBob, err := store.Query(ctx, Filter{Actor: bob.String(), FromHeight: 7})
	require.NoError(t, err)
	require.Len(t, byBob, 1)
	require.Equal(t, "30", byBob[0].Amount)

	lending, err := store.Query(ctx, Filter{Module: "lending", ToHeight: 6})
	require.NoError(t, err)
	require.Len(t, lending, 1)

	after, err := store.Query(ctx, Filter{AfterSequence: 2})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, uint64(3), after[0].Sequence)
}

func TestRetriedInsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records, err := store.prepare([]events.Event{note("vesting.created", 1, addr(1), 100)})
	require.NoError(t, err)
	require.NoError(t, store.insert(ctx, records))

	// A retry carries fresh ids but the same digests.
	for i := range records {
		records[i].ID = uuid.New()
	}
	require.NoError(t, store.insert(ctx, records))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	first, err := NewStore(db)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), []events.Event{
		note("token.mint", 1, addr(1), 1),
		note("token.mint", 2, addr(1), 2),
	}))

	second, err := NewStore(db)
	require.NoError(t, err)
	require.Equal(t, uint64(3), second.next)
	t.Cleanup(func() { _ = second.Close() })
}

func TestWriterFlushesOnClose(t *testing.T) {
	store := newTestStore(t)
	w := NewWriter(store, 16, nil)
	for i := 0; i < 5; i++ {
		w.Emit(note("staking.staked", uint64(i+1), addr(3), int64(i+1)))
	}
	w.Emit(nil)
	w.Close()

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.Zero(t, w.Dropped())
}

func TestWriterFlushesOnInterval(t *testing.T) {
	store := newTestStore(t)
	w := NewWriter(store, 16, nil)
	t.Cleanup(w.Close)
	w.Emit(note("lending.borrowed", 1, addr(4), 7))

	require.Eventually(t, func() bool {
		n, err := store.Count(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestExportParquet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	batch := make([]events.Event, 0, 12)
	for i := 0; i < 12; i++ {
		batch = append(batch, note("token.transfer", uint64(i+1), addr(5), int64(i)))
	}
	batch = append(batch, note("lending.repaid", 20, addr(6), 1))
	require.NoError(t, store.Append(ctx, batch))

	path := filepath.Join(t.TempDir(), "events.parquet")
	written, err := store.ExportParquet(ctx, path, Filter{Type: "token.transfer"})
	require.NoError(t, err)
	require.Equal(t, 12, written)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(12), pr.GetNumRows())

	rows := make([]parquetRow, 12)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "token.transfer", rows[0].Type)
	require.Equal(t, int64(1), rows[0].Height)
	require.Equal(t, int64(12), rows[11].Height)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	require.Error(t, err)
}
