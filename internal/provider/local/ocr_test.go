package local

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/provider"
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("fake image payload")...)

type stubRunner struct {
	stdout []byte
	err    error
	calls  int
}

func (r *stubRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
	r.calls++
	return r.stdout, nil, r.err
}

func tsvFor(words ...string) []byte {
	out := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"
	for i, w := range words {
		out += "5\t1\t1\t1\t" + string(rune('1'+i)) + "\t1\t0\t0\t10\t10\t92\t" + w + "\n"
	}
	return []byte(out)
}

func TestExtractImage(t *testing.T) {
	runner := &stubRunner{stdout: tsvFor("MegaMart", "2026-03-14", "TOTAL", "5.25")}
	e := NewExtractor(Config{WorkDir: t.TempDir()}, nil, WithRunner(runner))

	res, err := e.Extract(context.Background(), provider.Request{Data: pngBytes, Kind: constants.KindReceipt})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, res.Fields, "merchant_name")
	assert.Contains(t, res.Fields, "total_amount")
	for name, conf := range res.Confidences {
		assert.Greater(t, conf, float32(0), "field %s", name)
		assert.LessOrEqual(t, conf, float32(1), "field %s", name)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewExtractor(Config{WorkDir: t.TempDir()}, nil, WithRunner(&stubRunner{}))
	_, err := e.Extract(context.Background(), provider.Request{Data: []byte("not an image"), Kind: constants.KindReceipt})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeUnsupportedDocument, provider.CodeOf(err))
}

func TestExtractNoText(t *testing.T) {
	runner := &stubRunner{stdout: []byte("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n")}
	e := NewExtractor(Config{WorkDir: t.TempDir()}, nil, WithRunner(runner))
	_, err := e.Extract(context.Background(), provider.Request{Data: pngBytes, Kind: constants.KindReceipt})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodePoorQuality, provider.CodeOf(err))
}

func TestExtractCommandFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("binary not found")}
	e := NewExtractor(Config{WorkDir: t.TempDir()}, nil, WithRunner(runner))
	_, err := e.Extract(context.Background(), provider.Request{Data: pngBytes, Kind: constants.KindReceipt})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeInternalError, provider.CodeOf(err))
}
