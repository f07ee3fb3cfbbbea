package download

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"shuttle/internal/assemble"
	"shuttle/internal/config"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// Factory builds engines for persisted missions using configuration defaults.
type Factory struct {
	cfg       *config.Config
	assembler assemble.Assembler
	logger    *slog.Logger
	secure    *http.Client
	insecure  *http.Client
}

// NewFactory shares one HTTP client per TLS mode across engines.
func NewFactory(cfg *config.Config, assembler assemble.Assembler, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:       cfg,
		assembler: assembler,
		logger:    logger,
		secure:    NewHTTPClient(false),
		insecure:  NewHTTPClient(true),
	}
}

// New returns an idle engine for m that reports to observer.
func (f *Factory) New(m *queue.Mission, observer Observer) (*Engine, error) {
	if m == nil {
		return nil, services.Wrap(services.ErrValidation, "download", "factory", "mission is nil", nil)
	}
	opts := OptionsFromConfig(f.cfg).WithOverrides(m.Options)

	encode, err := f.encodeOptions(m.Preset)
	if err != nil {
		return nil, err
	}

	client := f.secure
	if opts.InsecureTLS {
		client = f.insecure
	}
	return New(Request{
		UID:        m.UID,
		URL:        m.URL,
		WorkDir:    m.WorkDir,
		OutputPath: m.OutputPath,
		Format:     m.OutputFormat,
		Encode:     encode,
		UserAgent:  m.UserAgent,
		Headers:    m.Headers,
	}, opts, Deps{
		Client:    client,
		Assembler: f.assembler,
		Logger:    f.logger,
	}, observer)
}

func (f *Factory) encodeOptions(name string) (assemble.EncodeOptions, error) {
	name = strings.TrimSpace(name)
	if name == "" || f.cfg == nil {
		return assemble.EncodeOptions{}, nil
	}
	preset, ok := f.cfg.Preset(name)
	if !ok {
		return assemble.EncodeOptions{}, services.Wrap(services.ErrValidation, "download", "factory", fmt.Sprintf("unknown preset %q", name), nil)
	}
	return EncodeOptionsFromPreset(preset), nil
}

// EncodeOptionsFromPreset maps a configured preset onto assembler options.
func EncodeOptionsFromPreset(p config.Preset) assemble.EncodeOptions {
	return assemble.EncodeOptions{
		VideoCodec:   p.VideoCodec,
		AudioCodec:   p.AudioCodec,
		VideoBitrate: p.VideoBitrate,
		AudioBitrate: p.AudioBitrate,
		Resolution:   p.Resolution,
		FrameRate:    p.FrameRate,
		ExtraArgs:    append([]string(nil), p.ExtraArgs...),
	}
}
