package models

import (
	"context"
	"testing"

	"github.com/dgnsrekt/voxkit/internal/objectstore"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreSource(t *testing.T) {
	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	ns := test.RunServer(&opts)
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(js, "voxkit-models")
	require.NoError(t, err)

	desc := tts.ModelDescriptor{ID: "demo", DownloadURL: "https://example.com/demo.tar.gz", RequiredFiles: testFiles}
	archive := tarball(t, "", map[string]string{"tts.json": "{}", "voice_styles/F1.json": "{}"})
	require.NoError(t, store.UploadBytes(context.Background(), ObjectKey(desc, ""), archive))

	dl, s := newDownloader(t, &ObjectStoreSource{Store: store})
	ch, err := dl.Download(context.Background(), desc)
	require.NoError(t, err)

	all := collect(t, ch)
	last := all[len(all)-1]
	require.Equal(t, StateComplete, last.State, "final progress %+v", last)
	require.EqualValues(t, len(archive), last.Total)
	require.NotEmpty(t, s.ModelPath("demo"))

	missing := tts.ModelDescriptor{ID: "absent", DownloadURL: "https://example.com/absent.tgz"}
	ch, err = dl.Download(context.Background(), missing)
	require.NoError(t, err)
	all = collect(t, ch)
	last = all[len(all)-1]
	require.Equal(t, StateFailed, last.State)
	require.Equal(t, tts.KindModelDownloadFailed, tts.KindOf(last.Err))
}
