package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"call-audit-go/internal/audiometrics"
	"call-audit-go/internal/config"
	"call-audit-go/internal/logger"
	"call-audit-go/internal/metrics"
	"call-audit-go/internal/pipeline"
	"call-audit-go/internal/report"
	"call-audit-go/internal/rubric"
	"call-audit-go/internal/scorer"
	"call-audit-go/internal/store"
	"call-audit-go/internal/transcription"
	"call-audit-go/internal/triggers"
	"call-audit-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-audit-go").Info("starting service")

	cfg := config.Load()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer db.Close()
	log.WithField("db_path", cfg.DBPath).Info("job store ready")

	lexicons, err := triggers.LoadLexicons(cfg.LexiconDir)
	if err != nil {
		log.WithError(err).Fatal("failed to load lexicons")
	}
	log.WithField("categories", len(lexicons)).Info("lexicons loaded")

	orch := pipeline.NewOrchestrator(
		db,
		transcription.NewClient(cfg, log.WithComponent("transcription")),
		audiometrics.NewAnalyzer(cfg.FFmpegPath, cfg.SilenceMinGap, cfg.SilenceNoise, log.WithComponent("audiometrics")),
		triggers.NewDetector(cfg.TriggersEnabled, lexicons, log.WithComponent("triggers")),
		rubric.NewBuilder(log.WithComponent("rubric")),
		scorer.New(cfg, log.WithComponent("scorer")),
		report.NewAssembler(cfg),
		cfg.TranscribeTimeout,
		cfg.ScoreTimeout,
		log.WithComponent("pipeline"),
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		reqLog := log.WithRequest(r).WithField("handler", "create_job")
		reqLog.Info("upload received")

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			reqLog.WithError(err).Warn("bad multipart form")
			http.Error(w, "bad multipart form", http.StatusBadRequest)
			return
		}

		audioFile, audioHeader, err := r.FormFile("audio")
		if err != nil {
			reqLog.Warn("missing audio file")
			http.Error(w, "missing audio file", http.StatusBadRequest)
			return
		}
		defer audioFile.Close()

		jobID := uuid.New().String()
		jobDir := filepath.Join(cfg.DataDir, "jobs", jobID)
		if err := os.MkdirAll(jobDir, 0o755); err != nil {
			reqLog.WithError(err).Error("cannot create job directory")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}

		audioPath := filepath.Join(jobDir, "audio"+safeExt(audioHeader.Filename, ".wav"))
		if err := saveUpload(audioFile, audioPath); err != nil {
			reqLog.WithError(err).Error("cannot save audio upload")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}

		rubricPath := ""
		if f, h, err := r.FormFile("rubric"); err == nil {
			defer f.Close()
			rubricPath = filepath.Join(jobDir, "rubric"+safeExt(h.Filename, ".xlsx"))
			if err := saveUpload(f, rubricPath); err != nil {
				reqLog.WithError(err).Error("cannot save rubric upload")
				http.Error(w, "storage error", http.StatusInternalServerError)
				return
			}
		}

		language := strings.TrimSpace(r.FormValue("language"))
		if language == "" {
			language = "auto"
		}

		now := time.Now().UTC()
		job := types.Job{
			ID:         jobID,
			Status:     types.StatusUploaded,
			AudioPath:  audioPath,
			RubricPath: rubricPath,
			Language:   language,
			WebhookURL: strings.TrimSpace(r.FormValue("webhook_url")),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := db.CreateJob(r.Context(), job); err != nil {
			reqLog.WithError(err).Error("cannot create job")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}

		metrics.JobStarted()
		go func() {
			if err := orch.Run(context.Background(), jobID); err != nil {
				log.WithField("job_id", jobID).WithField("error", err.Error()).Warn("pipeline run finished with error")
			}
		}()

		reqLog.WithField("job_id", jobID).Info("job accepted")
		writeJSON(w, http.StatusAccepted, job)
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := db.GetJob(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.WithRequest(r).WithField("error", err.Error()).Error("job lookup failed")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("GET /jobs/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		rep, err := db.GetReport(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.WithRequest(r).WithField("error", err.Error()).Error("report lookup failed")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func saveUpload(src multipart.File, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Close()
}

// safeExt keeps only a plain extension from the uploaded filename.
func safeExt(filename, fallback string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return fallback
	}
	return ext
}
