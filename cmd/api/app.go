package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"voice-assistant/internal/audiocache"
	"voice-assistant/internal/calls"
	"voice-assistant/internal/company"
	"voice-assistant/internal/config"
	"voice-assistant/internal/events"
	"voice-assistant/internal/llm"
	"voice-assistant/internal/reporting"
	"voice-assistant/internal/routing"
	"voice-assistant/internal/session"
	"voice-assistant/internal/stt"
	"voice-assistant/internal/tts"
	"voice-assistant/pkg/metrics"
	"voice-assistant/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app holds the wired services shared by the route handlers.
type app struct {
	engine *session.Engine
	stats  *reporting.Service
	calls  calls.Store
	audio  audiocache.Store
	events *events.Publisher
	db     *sql.DB
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics, rdb *redis.Client) (*app, error) {
	a := &app{}

	switch cfg.Store.Driver {
	case "postgres":
		db, err := utils.OpenPostgres(ctx, utils.PostgresOptions{DSN: cfg.PostgresDSN(), Schema: calls.Schema})
		if err != nil {
			return nil, err
		}
		a.db = db
		a.calls = calls.NewPostgresStore(db)
	default:
		a.calls = calls.NewMemoryStore()
	}

	var locker calls.Locker = calls.NewKeyedMutex()
	if rdb != nil {
		locker = calls.NewRedisLocker(rdb, 30*time.Second, log)
	}

	dir := company.NewMemoryDirectory()
	if cfg.Session.CompaniesFile != "" {
		d, err := company.LoadDirectoryFile(cfg.Session.CompaniesFile)
		if err != nil {
			a.close()
			return nil, err
		}
		dir = d
	} else {
		log.Warn("COMPANIES_FILE not set, every inbound number is unknown")
	}

	var sinks []events.Sink
	if rdb != nil {
		sinks = append(sinks, events.NewRedisSink(rdb))
	}
	a.events = events.NewPublisher(events.NewMemoryRepo(), log, sinks...)

	model := llm.NewRouter(llm.RouterOptions{
		DefaultModel: cfg.LLM.DefaultModel,
		Timeout:      cfg.LLM.Timeout,
		Logger:       log,
		Metrics:      m,
	},
		llm.NewOpenAI(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, ""),
		llm.NewAnthropic(cfg.LLM.AnthropicKey, ""),
		llm.NewGroq(cfg.LLM.GroqKey, ""),
		llm.NewHuggingFace(cfg.LLM.HuggingFaceKey, cfg.LLM.HuggingFaceURL, ""),
	)

	transcriber := stt.NewPipeline(stt.Options{
		Language: cfg.STT.PrimaryLanguage,
		Timeout:  cfg.STT.Timeout,
		Logger:   log,
		Metrics:  m,
	},
		&stt.Vosk{ModelDir: cfg.STT.VoskModelDir, Script: cfg.STT.VoskScript, PythonBin: cfg.STT.PythonBin, Language: cfg.STT.PrimaryLanguage},
		stt.NewDeepgram(cfg.STT.DeepgramKey, cfg.STT.DeepgramModel, cfg.STT.PrimaryLanguage),
	)

	audioStore, err := openAudioStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.audio = audioStore

	cache, err := audiocache.New(audioStore, audiocache.Options{
		Timeout: cfg.TTS.Timeout,
		Redis:   rdb,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	speaker := tts.NewPipeline(cache, tts.Options{
		PublicBaseURL: cfg.App.PublicBaseURL,
		Defaults: tts.Voice{
			Provider: cfg.TTS.DefaultProvider,
			VoiceID:  cfg.TTS.DefaultVoice,
			Language: cfg.TTS.DefaultLanguage,
			Format:   cfg.TTS.Format,
		},
		Logger:  log,
		Metrics: m,
	},
		tts.NewElevenLabs(cfg.TTS.ElevenLabsKey, cfg.TTS.ElevenLabsModel, cfg.TTS.DefaultVoice),
		tts.NewDeepgram(cfg.TTS.DeepgramKey, ""),
	)

	engine, err := session.NewEngine(session.Deps{
		Calls:      a.calls,
		Locker:     locker,
		Directory:  dir,
		Model:      model,
		STT:        transcriber,
		Recordings: stt.NewRecordingFetcher(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken),
		TTS:        speaker,
		Routing:    routing.NewEngine(rand.New(rand.NewSource(time.Now().UnixNano()))),
		Events:     a.events,
		Metrics:    m,
		Logger:     log,
	}, session.Options{
		MaxReprompts:  cfg.Session.MaxReprompts,
		GatherTimeout: cfg.Session.GatherTimeout,
		SpeechAction:  cfg.App.PublicBaseURL + "/webhooks/twilio/speech",
		Language:      cfg.TTS.DefaultLanguage,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine
	a.stats = reporting.NewService(a.calls)
	return a, nil
}

func openAudioStore(ctx context.Context, cfg config.Config) (audiocache.Store, error) {
	if cfg.Storage.Endpoint != "" {
		s, err := audiocache.NewMinioStore(ctx, audiocache.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("audio store: %w", err)
		}
		return s, nil
	}
	s, err := audiocache.NewFileStore(cfg.TTS.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("audio store: %w", err)
	}
	return s, nil
}
