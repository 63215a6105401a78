package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContentAccumulator_SplitAcrossChunks(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())

	// one JSON line delivered in three chunks
	acc.Write([]byte(`{"message":{"role":"assistant","con`))
	acc.Write([]byte(`tent":"Hel`))
	acc.Write([]byte("lo\"},\"done\":false}\n"))
	acc.Write([]byte(`{"message":{"content":" world"},"done":true}` + "\n"))

	require.Equal(t, "Hello world", acc.Reply())
	require.Equal(t, "assistant", acc.Role())
	require.True(t, acc.done)
}

func TestContentAccumulator_MalformedLineIsDropped(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())

	acc.Write([]byte(`{"message":{"content":"a"}}` + "\n"))
	acc.Write([]byte("not json\n"))
	acc.Write([]byte(`{"message":{"content":"b"},"done":true}` + "\n"))

	require.Equal(t, "ab", acc.Reply())
}

func TestContentAccumulator_FlushParsesTrailingLine(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())

	// final line arrives without a trailing newline
	acc.Write([]byte(`{"message":{"content":"tail"},"done":true}`))
	require.Equal(t, "", acc.Reply())

	acc.Flush()
	require.Equal(t, "tail", acc.Reply())
}

func TestContentAccumulator_ErrorLineIsTerminal(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())

	acc.Write([]byte(`{"message":{"content":"partial"},"done":false}` + "\n"))
	acc.Write([]byte(`{"error":"model runner crashed"}` + "\n"))
	acc.Flush()

	require.Equal(t, "model runner crashed", acc.Err())
	require.False(t, acc.Done())
}

func TestContentAccumulator_DoneOnlyAfterFinalChunk(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())

	acc.Write([]byte(`{"message":{"content":"a"},"done":false}` + "\n"))
	require.False(t, acc.Done())

	acc.Write([]byte(`{"message":{"content":"b"},"done":true}` + "\n"))
	require.True(t, acc.Done())
	require.Empty(t, acc.Err())
}

func TestContentAccumulator_DefaultRole(t *testing.T) {
	acc := newContentAccumulator(zap.NewNop())
	acc.Write([]byte(`{"message":{"content":"x"},"done":true}` + "\n"))
	require.Equal(t, "assistant", acc.Role())
}
