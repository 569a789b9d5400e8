package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/llm"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/telemetry"
)

const boletoText = "COMPROVANTE DE PAGAMENTO\n" +
	"PAGADOR: MARIA SILVA CPF 529.982.247-25\n" +
	"VALOR COBRADO R$ 1.234,56\n" +
	"PAGO EM 05/03/2024\n"

// MockSource is a mock implementation of pdftext.Source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Extract(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// MockRetriever is a mock implementation of knowledge.Retriever.
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) ([]knowledge.Hit, error) {
	args := m.Called(ctx, query, k)
	if hits := args.Get(0); hits != nil {
		return hits.([]knowledge.Hit), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockModel is a mock implementation of extraction.RecordExtractor.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Extract(ctx context.Context, fileName, text, know string) (extraction.DocumentRecord, error) {
	args := m.Called(ctx, fileName, text, know)
	return args.Get(0).(extraction.DocumentRecord), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

func writeInbox(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644))
	}
	return dir
}

func TestListInbox(t *testing.T) {
	dir := writeInbox(t, "b.pdf", "a.PDF", "notes.txt", "c.pdf")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	o := New(nil, nil, nil, Options{}, nil)
	files, err := o.ListInbox(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.pdf"),
	}, files)

	o = New(nil, nil, nil, Options{Extensions: []string{".pdf", ".TXT"}}, nil)
	files, err = o.ListInbox(dir)
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestListInbox_Missing(t *testing.T) {
	o := New(nil, nil, nil, Options{}, nil)
	files, err := o.ListInbox(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestProcessDocument_LLM(t *testing.T) {
	src := new(MockSource)
	src.On("Extract", mock.Anything, "/inbox/a.pdf").Return(boletoText, nil)

	hits := []knowledge.Hit{
		{Text: "CPF tem 11 digitos", Source: "data/knowledge/rules.txt", Chunk: 0},
		{Text: "boleto pago exige data", Source: "data/knowledge/rules.txt", Chunk: 1},
	}
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, "custom query", 2).Return(hits, nil)

	paid := extraction.StatusPaid
	model := new(MockModel)
	model.On("Extract", mock.Anything, "a.pdf", boletoText, knowledge.FormatHits(hits)).
		Return(extraction.DocumentRecord{
			FileName:      "a.pdf",
			DocType:       extraction.DocType,
			CPF:           ptr("529.982.247-25"),
			TotalValue:    ptr(1234.56),
			PaymentStatus: &paid,
		}, nil)

	o := New(src, ret, model, Options{KnowledgeQuery: "custom query", TopK: 2}, nil)
	res := o.ProcessDocument(context.Background(), "/inbox/a.pdf")

	assert.Equal(t, "529.982.247-25", *res.Record.CPF)
	assert.Equal(t, []string{extraction.IssueWeakEvidence, extraction.TagLLM}, res.Issues)
	assert.Equal(t, []string{"data/knowledge/rules.txt"}, res.KnowledgeSources)
	assert.Equal(t, extraction.TagLLM, res.Method())
	mock.AssertExpectationsForObjects(t, src, ret, model)
}

func TestProcessDocument_LLMFailureFallsBack(t *testing.T) {
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).Return(boletoText, nil)
	model := new(MockModel)
	model.On("Extract", mock.Anything, mock.Anything, mock.Anything, "").
		Return(extraction.DocumentRecord{}, &llm.Error{Kind: llm.KindTimeout, Provider: "openai", Err: errors.New("deadline")})

	logger := logging.NewTestLogger()
	o := New(src, nil, model, Options{}, logger.Logger)
	res := o.ProcessDocument(context.Background(), "/inbox/a.pdf")

	require.NotNil(t, res.Record.CPF)
	assert.Equal(t, "529.982.247-25", *res.Record.CPF)
	require.NotNil(t, res.Record.TotalValue)
	assert.InDelta(t, 1234.56, *res.Record.TotalValue, 0.001)
	assert.Equal(t, "LLM failed, falling back to regex: TimeoutError", res.Issues[0])
	assert.Equal(t, extraction.TagRegexFallback, res.Issues[len(res.Issues)-1])
	assert.Empty(t, res.KnowledgeSources)
	logger.AssertLogged(t, zapcore.WarnLevel, "language model extraction failed")
	logger.AssertField(t, "language model extraction failed, using regex", "document", "a.pdf")
}

func TestProcessDocument_RegexOnly(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		model bool
	}{
		{"no model", boletoText, false},
		{"blank text skips model", "   \n\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := new(MockSource)
			src.On("Extract", mock.Anything, mock.Anything).Return(tt.text, nil)
			model := new(MockModel)

			var o *Orchestrator
			if tt.model {
				o = New(src, nil, model, Options{}, nil)
			} else {
				o = New(src, nil, nil, Options{}, nil)
			}
			res := o.ProcessDocument(context.Background(), "/inbox/a.pdf")

			assert.Equal(t, extraction.TagRegexFallback, res.Method())
			assert.Equal(t, "a.pdf", res.Record.FileName)
			model.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessDocument_TextFailure(t *testing.T) {
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).Return("", errors.New("corrupt xref"))
	model := new(MockModel)

	o := New(src, nil, model, Options{}, nil)
	res := o.ProcessDocument(context.Background(), "/inbox/broken.pdf")

	assert.Equal(t, []string{
		"text extraction failed: corrupt xref",
		extraction.IssueCPFMissing,
		extraction.IssueValueMissing,
		extraction.TagRegexFallback,
	}, res.Issues)
	model.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDocument_RetrievalFailure(t *testing.T) {
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).Return(boletoText, nil)
	ret := new(MockRetriever)
	ret.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("store offline"))
	model := new(MockModel)
	model.On("Extract", mock.Anything, "a.pdf", boletoText, "").
		Return(extraction.DocumentRecord{FileName: "a.pdf", CPF: ptr("52998224725"), TotalValue: ptr(10.0)}, nil)

	logger := logging.NewTestLogger()
	o := New(src, ret, model, Options{}, logger.Logger)
	res := o.ProcessDocument(context.Background(), "/inbox/a.pdf")

	assert.Equal(t, []string{extraction.TagLLM}, res.Issues)
	assert.Empty(t, res.KnowledgeSources)
	logger.AssertLogged(t, zapcore.WarnLevel, "knowledge retrieval failed")
}

func TestProcessDocument_ClipsModelInput(t *testing.T) {
	long := boletoText + strings.Repeat("filler line\n", 20)
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).Return(long, nil)
	model := new(MockModel)
	model.On("Extract", mock.Anything, "a.pdf", extraction.Clip(long, 50), "").
		Return(extraction.DocumentRecord{FileName: "a.pdf"}, nil)

	o := New(src, nil, model, Options{MaxDocChars: 50}, nil)
	o.ProcessDocument(context.Background(), "/inbox/a.pdf")
	model.AssertExpectations(t)
}

func TestProcessInbox_OrderAcrossWorkers(t *testing.T) {
	dir := writeInbox(t, "c.pdf", "a.pdf", "b.pdf", "d.pdf", "e.pdf")

	var inFlight, peak atomic.Int32
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return(boletoText, nil)

	o := New(src, nil, nil, Options{Workers: 3}, nil)
	results, err := o.ProcessInbox(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.Record.FileName)
	}
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}, names)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestProcessInbox_Empty(t *testing.T) {
	logger := logging.NewTestLogger()
	o := New(new(MockSource), nil, nil, Options{}, logger.Logger)

	results, err := o.ProcessInbox(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, results)
	logger.AssertLogged(t, zapcore.WarnLevel, "inbox has no documents")
}

func TestProcessInbox_Canceled(t *testing.T) {
	dir := writeInbox(t, "a.pdf", "b.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(new(MockSource), nil, nil, Options{}, nil)
	_, err := o.ProcessInbox(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessInbox_Spans(t *testing.T) {
	rec := telemetry.NewSpanRecorder(t)
	dir := writeInbox(t, "a.pdf")
	src := new(MockSource)
	src.On("Extract", mock.Anything, mock.Anything).Return(boletoText, nil)

	o := New(src, nil, nil, Options{}, nil)
	_, err := o.ProcessInbox(context.Background(), dir)
	require.NoError(t, err)

	docs := rec.ByName("Orchestrator.ProcessDocument")
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", telemetry.Attr(docs[0], "document"))
	assert.Equal(t, extraction.TagRegexFallback, telemetry.Attr(docs[0], "extraction.method"))
	require.Len(t, rec.ByName("Orchestrator.ProcessInbox"), 1)
}
