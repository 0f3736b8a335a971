package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/voxrelay/internal/orchestration/events"
	"github.com/relaylabs/voxrelay/internal/orchestration/orchestrationtest"
)

func TestOutputGatewayTranslatesASRPartial(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn()
	NewOutput(fb, conn, nil)

	fb.Publish(context.Background(), events.NewASRResult("hel", false, 0.5), false)

	require.Len(t, conn.Written, 1)
	var sig asrSignal
	require.NoError(t, json.Unmarshal(conn.Written[0], &sig))
	assert.Equal(t, "update_asr", sig.Action)
	assert.Equal(t, "hel", sig.Data.Text)
	assert.False(t, sig.Data.IsFinal)
}

func TestOutputGatewayTranslatesASRFinal(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn()
	NewOutput(fb, conn, nil)

	fb.Publish(context.Background(), events.NewASRResult("hello", true, 0.9), false)

	require.Len(t, conn.Written, 1)
	var sig asrSignal
	require.NoError(t, json.Unmarshal(conn.Written[0], &sig))
	assert.Equal(t, "finish_asr", sig.Action)
	assert.True(t, sig.Data.IsFinal)
}

func TestOutputGatewayTranslatesTTSResponseUpdateAndFinish(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn()
	NewOutput(fb, conn, nil)

	fb.Publish(context.Background(), events.NewTTSResponseUpdate("partial", 1), false)
	fb.Publish(context.Background(), events.NewTTSResponseFinish("final", 1), false)

	require.Len(t, conn.Written, 2)

	var update respSignal
	require.NoError(t, json.Unmarshal(conn.Written[0], &update))
	assert.Equal(t, "update_resp", update.Action)
	assert.Equal(t, "partial", update.Data.Text)

	var finish respSignal
	require.NoError(t, json.Unmarshal(conn.Written[1], &finish))
	assert.Equal(t, "finish_resp", finish.Action)
	assert.Equal(t, "final", finish.Data.Text)
}

func TestOutputGatewayForwardsTTSChunkAsBinary(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn()
	NewOutput(fb, conn, nil)

	fb.Publish(context.Background(), events.NewTTSChunkGenerated([]byte{9, 8, 7}, 1, "hi"), false)

	require.Len(t, conn.Binaries, 1)
	assert.Equal(t, []byte{9, 8, 7}, conn.Binaries[0])
	assert.Empty(t, conn.Written)
}
