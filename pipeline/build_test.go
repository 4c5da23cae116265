package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/dest"
	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/interpreters"
	"github.com/OverOrion/axosyslog/logmsg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildConfig(t *testing.T, src string) *config.Config {
	cfg, err := config.Parse([]byte(src))
	require.NoError(t, err)
	return cfg
}

func sshd(program, text string) *logmsg.LogMessage {
	m := logmsg.NewWithText(text)
	m.SetValue("PROGRAM", program, logmsg.TypeString)
	return m
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.log")
	full := filepath.Join(dir, "full.json")

	cfg := buildConfig(t, fmt.Sprintf(`
workers: 2
rules:
  - name: sshd-only
    source: |
      $PROGRAM == "sshd"
      $seen = true
  - interpreter: cel
    source: msg.MESSAGE.startsWith("Accepted")
destinations:
  - name: short
    type: file
    batch_lines: 10
    options: {path: %q, template: "$PROGRAM $seen $MESSAGE"}
  - type: file
    options: {path: %q}
`, short, full))
	cfg.Filename = "fx.yaml"

	p, err := Build(context.Background(), cfg, interpreters.Standard(), dest.Standard())
	require.NoError(t, err)
	assert.Equal(t, "fx.yaml", p.Name)
	assert.Equal(t, 2, p.Workers)

	first := p.head.(*FilterXPipe)
	assert.Equal(t, "sshd-only", first.Name)
	assert.Equal(t, "fx.yaml", first.Location().File)
	second := first.Next().(*FilterXPipe)
	assert.Equal(t, "#anon-filter0", second.Name)

	var acks atomic.Int32
	p.OnAck = func(m *logmsg.LogMessage, a logmsg.AckType) {
		assert.Equal(t, logmsg.AckProcessed, a)
		acks.Add(1)
	}

	th := filterx.NewThread(0)
	assert.True(t, p.Process(th, sshd("sshd", "Accepted password for alice")))
	assert.False(t, p.Process(th, sshd("cron", "Accepted nothing")))
	assert.False(t, p.Process(th, sshd("sshd", "Failed password for bob")))
	assert.True(t, p.Process(th, sshd("sshd", "Accepted publickey for carol")))

	stats := p.DestinationStats()
	assert.Len(t, stats, 2)
	assert.Equal(t, uint64(2), stats["short"].Queued)

	p.Free()
	assert.Equal(t, int32(4), acks.Load())

	bs, err := os.ReadFile(short)
	require.NoError(t, err)
	assert.Equal(t, "sshd true Accepted password for alice\nsshd true Accepted publickey for carol\n", string(bs))

	bs, err = os.ReadFile(full)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"MESSAGE":"Accepted password for alice","PROGRAM":"sshd","seen":true}`, lines[0])

	s := p.Stats()
	assert.Equal(t, uint64(4), s.Processed)
	assert.Equal(t, uint64(2), s.Forwarded)
	assert.Equal(t, uint64(2), s.Unmatched)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown interpreter",
			src:  `rules: [{interpreter: cobol, source: "true"}]`,
			want: `rule 0: unknown interpreter "cobol"`,
		},
		{
			name: "compile error",
			src:  `rules: [{name: broken, source: "$A = "}]`,
			want: "rule 0: broken: ",
		},
		{
			name: "unknown destination",
			src:  `{rules: [], destinations: [{type: kafka}]}`,
			want: `destination 0: unknown destination type "kafka"`,
		},
		{
			name: "bad destination options",
			src:  `{rules: [], destinations: [{type: file, options: {colour: red}}]}`,
			want: "destination 0: file: ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildConfig(t, tt.src)
			_, err := Build(context.Background(), cfg, interpreters.Standard(), dest.Standard())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildNoDestinations(t *testing.T) {
	cfg := buildConfig(t, `rules: [{source: '$PROGRAM == "sshd"'}]`)
	p, err := Build(context.Background(), cfg, interpreters.Standard(), dest.Standard())
	require.NoError(t, err)
	defer p.Free()

	assert.Equal(t, "fx", p.Name)
	assert.Equal(t, 1, p.Workers)
	assert.Empty(t, p.DestinationStats())
	assert.True(t, p.Process(filterx.NewThread(0), sshd("sshd", "x")))
}
