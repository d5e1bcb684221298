package sink_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
)

func TestExpandPath(t *testing.T) {
	vars := map[string]string{
		"session": "ses-1a2b3c4d",
		"date":    "2026-08-23",
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "single placeholder",
			path: "trace-${session}.csv",
			want: "trace-ses-1a2b3c4d.csv",
		},
		{
			name: "multiple placeholders",
			path: "${date}/${session}.db",
			want: "2026-08-23/ses-1a2b3c4d.db",
		},
		{
			name: "unknown placeholder kept",
			path: "trace-${host}.csv",
			want: "trace-${host}.csv",
		},
		{
			name: "no placeholders",
			path: "trace.csv",
			want: "trace.csv",
		},
		{
			name: "empty",
			path: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sink.ExpandPath(tt.path, vars))
		})
	}
}

func TestPathVars(t *testing.T) {
	now := time.Date(2026, 8, 23, 14, 30, 5, 0, time.UTC)
	vars := sink.PathVars("ses-1a2b3c4d", "fuse", now)

	assert.Equal(t, "ses-1a2b3c4d", vars["session"])
	assert.Equal(t, "fuse", vars["profile"])
	assert.Equal(t, "2026-08-23", vars["date"])
	assert.Equal(t, "143005", vars["time"])
	assert.NotEmpty(t, vars["pid"])
}
