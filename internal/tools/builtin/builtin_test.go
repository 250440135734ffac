package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalculateMath(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2+2*3", "8"},
		{"(2+2)*3", "12"},
		{"10/4", "2.5"},
		{"-3 + 5", "2"},
		{"18% 250", "45"},
		{"50%", "0.5"},
		{" 7 - -2 ", "9"},
	}
	tool := NewCalculateMathTool()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), map[string]any{"expression": tt.expr})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateMath_Errors(t *testing.T) {
	tool := NewCalculateMathTool()
	for _, expr := range []string{"", "1/0", "2+", "(1+2", "import os"} {
		_, err := tool.Execute(context.Background(), map[string]any{"expression": expr})
		require.Error(t, err, expr)
	}
}

func TestCurrentTime(t *testing.T) {
	tool := &CurrentTimeTool{now: func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}}

	got, err := tool.Execute(context.Background(), map[string]any{"timezone": "UTC"})
	require.NoError(t, err)
	require.Equal(t, "2025-03-01 12:00:00 (UTC, Saturday)", got)

	_, err = tool.Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"})
	require.Error(t, err)
}

func TestOpenWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":{"TRY":32.5}}`))
	}))
	defer srv.Close()

	got, err := NewOpenWebsiteTool(0).Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.Contains(t, got, `"TRY": 32.5`)
}

func TestOpenWebsite_RejectsScheme(t *testing.T) {
	_, err := NewOpenWebsiteTool(0).Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	require.Error(t, err)
}

func TestAllNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range All() {
		require.False(t, seen[tool.Name()], tool.Name())
		seen[tool.Name()] = true
	}
	require.Len(t, seen, 3)
}
