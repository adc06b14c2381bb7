package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/gateway"
	"github.com/time7/tagsync/pkg/polling"
	"github.com/time7/tagsync/pkg/reconcile"
	"github.com/time7/tagsync/pkg/search"
	"github.com/time7/tagsync/pkg/storage"
)

type stubFeed struct {
	snap     polling.Snapshot
	interval time.Duration
}

func (s *stubFeed) Snapshot() polling.Snapshot { return s.snap }

func (s *stubFeed) SetInterval(d time.Duration) error {
	if d <= 0 {
		return polling.ErrInvalidInterval
	}
	s.interval = d
	return nil
}

type stubRegistry struct {
	ids      []string
	upserted []storage.ProductRecord
	updated  []storage.ProductRecord
	photos   []storage.PhotoReference
	writeErr error
	scans    []storage.ScanLogEntry
}

func (s *stubRegistry) RegisteredIDs(ctx context.Context) ([]string, error) { return s.ids, nil }

func (s *stubRegistry) UpsertProduct(ctx context.Context, p storage.ProductRecord) error {
	s.upserted = append(s.upserted, p)
	s.ids = append(s.ids, p.TID)
	return nil
}

func (s *stubRegistry) UpdateProduct(ctx context.Context, p storage.ProductRecord) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.updated = append(s.updated, p)
	return nil
}

func (s *stubRegistry) AddPhoto(ctx context.Context, identifier string, photo storage.PhotoReference) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.photos = append(s.photos, photo)
	return nil
}

func (s *stubRegistry) RecentScans(ctx context.Context, limit int) ([]storage.ScanLogEntry, error) {
	return s.scans, nil
}

func newTestConsole(t *testing.T, snap polling.Snapshot, registered ...string) (*console, *bytes.Buffer, *stubFeed, *stubRegistry, *search.MockStore) {
	t.Helper()
	reg := &stubRegistry{ids: registered}
	rec := reconcile.New(reg)
	require.NoError(t, rec.Mount(context.Background()))

	store := search.NewMockStore(gomock.NewController(t))
	feed := &stubFeed{snap: snap}
	out := &bytes.Buffer{}
	return &console{
		log:        zap.NewNop(),
		engine:     feed,
		reconciler: rec,
		resolver:   search.New(store),
		out:        out,
	}, out, feed, reg, store
}

func liveSnapshot(scans ...gateway.ScanRecord) polling.Snapshot {
	return polling.Snapshot{Status: polling.StatusLive, Scans: scans, ReaderConnected: true}
}

func TestConsole_ScansOffline(t *testing.T) {
	c, out, _, _, _ := newTestConsole(t, polling.Snapshot{Status: polling.StatusError, Error: "Gateway error: 503"})
	c.handle(context.Background(), "scans")
	assert.Equal(t, "Gateway Offline (Gateway error: 503)\n", out.String())
}

func TestConsole_ScansLive(t *testing.T) {
	c, out, _, _, _ := newTestConsole(t, liveSnapshot(
		gateway.ScanRecord{TIDHex: "E001", EPCHex: "3000AA", Auth: true},
		gateway.ScanRecord{TIDHex: "E002", EPCHex: "3000AB", Auth: false},
	), "E001")

	c.handle(context.Background(), "scans")
	assert.Contains(t, out.String(), "E001  epc=3000AA  authentic  registered")
	assert.Contains(t, out.String(), "E002  epc=3000AB  NOT AUTHENTIC  unregistered")
}

func TestConsole_ScansEmpty(t *testing.T) {
	c, out, _, _, _ := newTestConsole(t, liveSnapshot())
	c.handle(context.Background(), "scans")
	assert.Equal(t, "No item in range\n", out.String())
}

func TestConsole_OpenUnauthenticated(t *testing.T) {
	c, out, _, _, _ := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E002", Auth: false}))
	c.handle(context.Background(), "open e002")
	assert.Contains(t, out.String(), "not authentic")
}

func TestConsole_OpenRegisteredShowsProduct(t *testing.T) {
	c, out, _, _, store := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E001", Auth: true}), "E001")

	store.EXPECT().FindProduct(gomock.Any(), storage.FieldTID, "E001").
		Return(storage.ProductRecord{TID: "E001", EPC: "3000AA", Description: "Pinot noir", Origin: "New Zealand",
			ProducedOn: time.Date(1980, 12, 18, 0, 0, 0, 0, time.UTC)}, nil)
	store.EXPECT().LatestPhoto(gomock.Any(), "E001").Return(storage.PhotoReference{}, storage.ErrNotFound)

	c.handle(context.Background(), "open E001")
	assert.Contains(t, out.String(), "Pinot noir")
	assert.Contains(t, out.String(), "New Zealand  18 Dec 1980")
}

func TestConsole_Register(t *testing.T) {
	c, out, _, reg, _ := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E005", EPCHex: "3000EE", Auth: true}))

	c.handle(context.Background(), "open E005")
	assert.Contains(t, out.String(), "is not registered")

	out.Reset()
	c.handle(context.Background(), "register E005 NZ Handpressed pinot")
	assert.Equal(t, "E005 registered\n", out.String())
	require.Len(t, reg.upserted, 1)
	assert.Equal(t, "3000EE", reg.upserted[0].EPC)
	assert.Equal(t, "Handpressed pinot", reg.upserted[0].Description)

	out.Reset()
	c.handle(context.Background(), "register E005 NZ again")
	assert.Equal(t, "E005 cannot be registered\n", out.String())
}

func TestConsole_EditKeepsProductionDate(t *testing.T) {
	c, out, _, reg, store := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E001", EPCHex: "3000AA", Auth: true}), "E001")

	produced := time.Date(1980, 12, 18, 0, 0, 0, 0, time.UTC)
	store.EXPECT().FindProduct(gomock.Any(), storage.FieldTID, "E001").
		Return(storage.ProductRecord{TID: "E001", EPC: "3000AA", Description: "old", ProducedOn: produced}, nil)
	store.EXPECT().LatestPhoto(gomock.Any(), "E001").Return(storage.PhotoReference{}, storage.ErrNotFound)

	c.handle(context.Background(), "edit E001 Germany Dry riesling")
	assert.Equal(t, "E001 updated\n", out.String())
	require.Len(t, reg.updated, 1)
	assert.Equal(t, "Germany", reg.updated[0].Origin)
	assert.Equal(t, "Dry riesling", reg.updated[0].Description)
	assert.Equal(t, produced, reg.updated[0].ProducedOn)
}

func TestConsole_EditReportsStoreErrors(t *testing.T) {
	c, out, _, reg, store := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E001", Auth: true}), "E001")
	store.EXPECT().FindProduct(gomock.Any(), storage.FieldTID, "E001").
		Return(storage.ProductRecord{TID: "E001"}, nil).Times(2)
	store.EXPECT().LatestPhoto(gomock.Any(), "E001").Return(storage.PhotoReference{}, storage.ErrNotFound).Times(2)

	reg.writeErr = storage.ErrNotFound
	c.handle(context.Background(), "edit E001 NZ gone")
	assert.Equal(t, "E001 is no longer registered\n", out.String())

	out.Reset()
	reg.writeErr = &storage.Error{Op: "update product", Err: errors.New("connection reset")}
	c.handle(context.Background(), "edit E001 NZ retry")
	assert.Contains(t, out.String(), "edit failed, try again")
}

func TestConsole_EditUnregistered(t *testing.T) {
	c, out, _, reg, _ := newTestConsole(t, liveSnapshot(gateway.ScanRecord{TIDHex: "E005", Auth: true}))

	c.handle(context.Background(), "edit E005 NZ something")
	assert.Equal(t, "E005 cannot be edited\n", out.String())
	assert.Empty(t, reg.updated)
}

func TestConsole_Photo(t *testing.T) {
	c, out, _, reg, _ := newTestConsole(t, liveSnapshot(
		gateway.ScanRecord{TIDHex: "E001", Auth: true},
		gateway.ScanRecord{TIDHex: "E005", Auth: true},
	), "E001")

	c.handle(context.Background(), "photo e001 https://cdn/p/1.jpg")
	assert.Equal(t, "photo added to E001\n", out.String())
	require.Len(t, reg.photos, 1)
	assert.Equal(t, "https://cdn/p/1.jpg", reg.photos[0].PhotoURL)

	out.Reset()
	c.handle(context.Background(), "photo E005 https://cdn/p/2.jpg")
	assert.Equal(t, "E005 is not registered\n", out.String())
	assert.Len(t, reg.photos, 1)
}

func TestConsole_SearchNoMatch(t *testing.T) {
	c, out, _, _, store := newTestConsole(t, liveSnapshot())
	store.EXPECT().FindProduct(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(storage.ProductRecord{}, storage.ErrNotFound).AnyTimes()

	c.handle(context.Background(), "nothing-here")
	assert.Equal(t, "No match\n", out.String())
}

func TestConsole_SearchError(t *testing.T) {
	c, out, _, _, store := newTestConsole(t, liveSnapshot())
	store.EXPECT().FindProduct(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(storage.ProductRecord{}, errors.New("registry down"))

	c.handle(context.Background(), "search E001")
	assert.Contains(t, out.String(), "search failed: registry down")
}

func TestConsole_Interval(t *testing.T) {
	c, out, feed, _, _ := newTestConsole(t, liveSnapshot())

	c.handle(context.Background(), "interval 250")
	assert.Equal(t, 250*time.Millisecond, feed.interval)
	assert.Empty(t, out.String())

	c.handle(context.Background(), "interval soon")
	assert.Contains(t, out.String(), "invalid interval")
}

func TestPrintHistory(t *testing.T) {
	info := "Genuine"
	reg := &stubRegistry{scans: []storage.ScanLogEntry{
		{TID: "E002", SeenAt: time.Date(2025, 2, 13, 10, 0, 1, 0, time.UTC), Auth: true, Info: &info},
	}}
	out := &bytes.Buffer{}

	require.NoError(t, printHistory(context.Background(), out, reg, 10))
	assert.Equal(t, "2025-02-13T10:00:01Z  E002  auth=true  Genuine\n", out.String())

	out.Reset()
	require.NoError(t, printHistory(context.Background(), out, &stubRegistry{}, 10))
	assert.Equal(t, "No logs yet\n", out.String())
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"E001", "E002"}, splitIDs(" E001, ,E002,"))
}
