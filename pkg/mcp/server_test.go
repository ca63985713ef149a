package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/extractor"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/testhelpers"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := testhelpers.NewSQLiteStore(t)
	testhelpers.Seed(t, store, testhelpers.Note{
		ID: "IN-1", FactoryID: "FAC_M16", ProcessID: "PROC_PH", Start: "2024-05-01 10:00:00", Minutes: 30,
	})
	b := querybuilder.NewBuilder(store, querybuilder.DefaultConfig(), zap.NewNop())
	ex := extractor.New(extractor.WithClock(func() time.Time { return time.Date(2024, 5, 15, 9, 0, 0, 0, time.Local) }))

	return NewServer("test", Deps{
		Store: store,
		Ask:   services.NewAskService(ex, b, store, nil, zap.NewNop()),
		Stats: services.NewStatsService(b, store, zap.NewNop()),
	}, zap.NewNop())
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.MCP())
	require.NotNil(t, s.NewStreamableHTTPServer())

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Annotations struct {
					ReadOnlyHint *bool `json:"readOnlyHint"`
				} `json:"annotations"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))

	readOnly := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		readOnly[tool.Name] = tool.Annotations.ReadOnlyHint != nil && *tool.Annotations.ReadOnlyHint
	}
	assert.Len(t, readOnly, 4)
	assert.True(t, readOnly["analyze_question"])
	assert.True(t, readOnly["ask_downtime"])
}

func TestServer_AskDowntimeEndToEnd(t *testing.T) {
	s := newTestServer(t)

	msg := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ask_downtime","arguments":{"question":"FAC_M16 공장 다운타임"}}}`
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(msg)))
	require.NoError(t, err)

	assert.Contains(t, string(raw), "IN-1")
	assert.Contains(t, string(raw), `\"source\":\"database\"`)
}
