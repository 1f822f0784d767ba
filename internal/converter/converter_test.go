package converter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/config"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
	"github.com/toricodesthings/document-conversion-service/internal/format"
)

type fakeDoc struct {
	dict map[string]any
	md   string
	err  error
}

func (d fakeDoc) ExportToDict() (map[string]any, error) { return d.dict, d.err }
func (d fakeDoc) ExportToMarkdown() (string, error)     { return d.md, d.err }

type fakeEngine struct {
	result *engine.Result
	err    error
	panic  any
	wait   bool

	calls  int
	stream engine.Stream
	opts   engine.Options
}

func (f *fakeEngine) Name() string                   { return "fake" }
func (f *fakeEngine) Version(context.Context) string { return "1.0" }

func (f *fakeEngine) Convert(ctx context.Context, in engine.Stream, opts engine.Options) (*engine.Result, error) {
	f.calls++
	f.stream, f.opts = in, opts
	if f.panic != nil {
		panic(f.panic)
	}
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func success(dict map[string]any, md string) *engine.Result {
	return &engine.Result{Status: engine.StatusSuccess, Document: fakeDoc{dict: dict, md: md}}
}

func cpuPreset() config.Preset {
	return config.DefaultPresets()[config.PresetCPU]
}

func pdf() *strings.Reader { return strings.NewReader("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n") }

func TestBuildOptions(t *testing.T) {
	cuda := accel.Device{Kind: accel.CUDA, Preference: accel.PreferGPU}
	presets := config.DefaultPresets()

	o := BuildOptions(presets[config.PresetCUDA], cuda)
	assert.True(t, o.OCR)
	assert.Equal(t, []string{"en", "id"}, o.Languages)
	assert.True(t, o.TableStructure)
	assert.True(t, o.CellMatching)
	assert.Equal(t, accel.CUDA, o.Device.Kind)
	assert.Equal(t, 4, o.PageBatchSize)
	assert.Equal(t, 4, o.PageBatchConcurrency)
	assert.Equal(t, engine.OutputJSON, o.Output)

	o = BuildOptions(presets[config.PresetMPS], cuda)
	assert.Equal(t, accel.CPU, o.Device.Kind, "metal preset on a cuda host")
	assert.False(t, o.CellMatching)

	o = BuildOptions(presets[config.PresetText], cuda)
	assert.False(t, o.OCR)
	assert.False(t, o.TableStructure)
	assert.Equal(t, accel.CPU, o.Device.Kind)
	assert.Equal(t, engine.OutputMarkdown, o.Output)
	assert.Equal(t, 2, o.DocBatchSize)

	o = BuildOptions(config.Preset{Languages: []string{" EN", "en", "", "Id"}, ImageScale: -1}, accel.Device{Kind: accel.CPU})
	assert.Equal(t, []string{"en", "id"}, o.Languages)
	assert.Equal(t, 1.0, o.ImageScale)
	assert.Equal(t, 1, o.DocBatchSize)
	assert.Equal(t, 1, o.DocBatchConcurrency)
	assert.Equal(t, 1, o.PageBatchSize)
	assert.Equal(t, 1, o.PageBatchConcurrency)
}

func TestParseOutput(t *testing.T) {
	m, ok := ParseOutput("Markdown")
	assert.True(t, ok)
	assert.Equal(t, engine.OutputMarkdown, m)

	m, ok = ParseOutput("json")
	assert.True(t, ok)
	assert.Equal(t, engine.OutputJSON, m)

	_, ok = ParseOutput("xml")
	assert.False(t, ok)
}

func TestConvertData(t *testing.T) {
	eng := &fakeEngine{result: success(map[string]any{"name": "report"}, "# report")}
	svc := New(eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, zap.NewNop())

	res := svc.Convert(context.Background(), "report.pdf", pdf())
	require.NotNil(t, res.Data)
	assert.Nil(t, res.Text)
	assert.Nil(t, res.Error)
	assert.Equal(t, "report", res.Data["name"])

	assert.Equal(t, 1, eng.calls)
	assert.Equal(t, format.PDF, eng.stream.Format)
	assert.Equal(t, "application/pdf", eng.stream.MIMEType)
	assert.Equal(t, "report.pdf", eng.stream.Name)
}

func TestConvertMarkdown(t *testing.T) {
	eng := &fakeEngine{result: success(map[string]any{"name": "report"}, "# report")}
	text := config.DefaultPresets()[config.PresetText]
	svc := New(eng, text, accel.Device{Kind: accel.CPU}, 0, zap.NewNop())

	res := svc.Convert(context.Background(), "report.pdf", pdf())
	require.NotNil(t, res.Text)
	assert.Equal(t, "# report", *res.Text)
	assert.Nil(t, res.Data)

	res = svc.ConvertAs(context.Background(), "report.pdf", pdf(), engine.OutputJSON)
	assert.NotNil(t, res.Data)
}

func TestConvertUnknownFormatDefaultsToPDF(t *testing.T) {
	eng := &fakeEngine{result: success(map[string]any{"name": "x"}, "")}
	svc := New(eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, zap.NewNop())

	svc.Convert(context.Background(), "notes", strings.NewReader("plain text"))
	assert.Equal(t, format.PDF, eng.stream.Format)
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name string
		eng  *fakeEngine
		want string
	}{
		{
			name: "first reported error",
			eng: &fakeEngine{result: &engine.Result{
				Status:   engine.StatusPartialSuccess,
				Errors:   []engine.ErrorItem{{Message: "page 2 unreadable"}, {Message: "page 3 unreadable"}},
				Document: fakeDoc{dict: map[string]any{"name": "partial"}},
			}},
			want: "page 2 unreadable",
		},
		{
			name: "engine error",
			eng:  &fakeEngine{err: errors.New("open report.pdf: cannot open document")},
			want: "open report.pdf: cannot open document",
		},
		{
			name: "panic",
			eng:  &fakeEngine{panic: "index out of range"},
			want: "index out of range",
		},
		{
			name: "failure without message",
			eng:  &fakeEngine{result: &engine.Result{Status: engine.StatusFailure}},
			want: "conversion failed",
		},
		{
			name: "no document",
			eng:  &fakeEngine{result: &engine.Result{Status: engine.StatusSuccess}},
			want: ErrEmptyDocument.Error(),
		},
		{
			name: "nil result",
			eng:  &fakeEngine{},
			want: ErrEmptyDocument.Error(),
		},
		{
			name: "export failure",
			eng:  &fakeEngine{result: &engine.Result{Status: engine.StatusSuccess, Document: fakeDoc{err: errors.New("dangling ref")}}},
			want: "dangling ref",
		},
		{
			name: "empty tree",
			eng:  &fakeEngine{result: success(map[string]any{}, "")},
			want: "engine returned an empty document",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(tt.eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, zap.NewNop())
			res := svc.Convert(context.Background(), "report.pdf", pdf())

			require.NotNil(t, res.Error)
			assert.Equal(t, tt.want, *res.Error)
			assert.Nil(t, res.Data)
			assert.Nil(t, res.Text)
		})
	}
}

func TestConvertTimeout(t *testing.T) {
	eng := &fakeEngine{wait: true}
	svc := New(eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 20*time.Millisecond, zap.NewNop())

	res := svc.Convert(context.Background(), "report.pdf", pdf())
	require.NotNil(t, res.Error)
	assert.Equal(t, "conversion timed out after 20ms", *res.Error)
}

func TestConvertLoggingDoesNotChangeResult(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	for _, eng := range []*fakeEngine{
		{result: success(map[string]any{"name": "report"}, "")},
		{err: errors.New("boom")},
	} {
		quiet := New(eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, zap.NewNop()).
			Convert(context.Background(), "report.pdf", pdf())
		loud := New(eng, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, zap.New(core)).
			Convert(context.Background(), "report.pdf", pdf())
		assert.Equal(t, quiet, loud)
	}

	started := logs.FilterMessage("conversion started").All()
	require.Len(t, started, 2)
	fields := started[0].ContextMap()
	assert.Equal(t, true, fields["ocr"])
	assert.Equal(t, "cpu", fields["preset"])
	assert.NotEmpty(t, fields["conversion_id"])

	assert.Len(t, logs.FilterMessage("conversion finished").All(), 1)
	assert.Len(t, logs.FilterMessage("conversion failed").All(), 1)
}

func TestEngineVersion(t *testing.T) {
	svc := New(&fakeEngine{}, cpuPreset(), accel.Device{Kind: accel.CPU}, 0, nil)
	assert.Equal(t, "fake 1.0", svc.EngineVersion(context.Background()))
}

func TestConvertReclaimsDeviceFirst(t *testing.T) {
	eng := &fakeEngine{result: success(map[string]any{"name": "report"}, "")}
	cuda := accel.Device{Kind: accel.CUDA, Preference: accel.PreferGPU}
	svc := New(eng, config.DefaultPresets()[config.PresetCUDA], cuda, 0, zap.NewNop())

	var reclaims, callsAtReclaim int
	svc.reclaim = func() {
		reclaims++
		callsAtReclaim = eng.calls
	}

	res := svc.Convert(context.Background(), "report.pdf", pdf())
	require.False(t, res.Failed(), res.ErrorMessage())
	assert.Equal(t, 1, reclaims)
	assert.Zero(t, callsAtReclaim, "memory is reclaimed before the engine runs")
	assert.Equal(t, 1, eng.calls)
	assert.Equal(t, accel.CUDA, eng.opts.Device.Kind)
}
